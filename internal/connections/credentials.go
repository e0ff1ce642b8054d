package connections

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// CredentialSource supplies a password for a server that has none stored.
// ok is false when the source has nothing to offer.
type CredentialSource interface {
	Name() string
	Password(ctx context.Context, server Descriptor) (password string, ok bool, err error)
}

// EnvSource reads CLSLENS_PASSWORD_<SERVER>, with the server name
// upper-cased and every non-alphanumeric character replaced by '_'.
type EnvSource struct{}

// Name implements CredentialSource.
func (EnvSource) Name() string { return "env" }

// Password implements CredentialSource.
func (EnvSource) Password(_ context.Context, server Descriptor) (string, bool, error) {
	v, ok := os.LookupEnv(EnvVarFor(server.Name))
	return v, ok, nil
}

// EnvVarFor returns the environment variable consulted for a server.
func EnvVarFor(serverName string) string {
	var b strings.Builder
	b.WriteString("CLSLENS_PASSWORD_")
	for _, r := range strings.ToUpper(serverName) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SessionStore remembers passwords obtained during this process, keyed by
// server and user, so that an interactive prompt happens at most once.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{entries: make(map[string]string)}
}

func sessionKey(server Descriptor) string {
	return server.Name + "\x00" + strings.ToLower(server.User())
}

// Name implements CredentialSource.
func (s *SessionStore) Name() string { return "session" }

// Password implements CredentialSource.
func (s *SessionStore) Password(_ context.Context, server Descriptor) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[sessionKey(server)]
	return v, ok, nil
}

// Remember stores a password for the server's user.
func (s *SessionStore) Remember(server Descriptor, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionKey(server)] = password
}

// Forget drops the stored password, e.g. after the server rejected it.
func (s *SessionStore) Forget(server Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionKey(server))
}

// PromptSource asks on the terminal. It offers nothing when In is not a TTY,
// which is always the case under `clslens serve` where stdin carries the
// protocol.
type PromptSource struct {
	In  *os.File
	Out io.Writer

	// readPassword is replaced in tests.
	readPassword func(fd int) ([]byte, error)
	isTerminal   func(fd int) bool
}

// NewPromptSource prompts on stdin/stderr.
func NewPromptSource() *PromptSource {
	return &PromptSource{In: os.Stdin, Out: os.Stderr}
}

// Name implements CredentialSource.
func (p *PromptSource) Name() string { return "prompt" }

// Password implements CredentialSource.
func (p *PromptSource) Password(ctx context.Context, server Descriptor) (string, bool, error) {
	if p.In == nil {
		return "", false, nil
	}
	isTerminal := p.isTerminal
	if isTerminal == nil {
		isTerminal = term.IsTerminal
	}
	fd := int(p.In.Fd())
	if !isTerminal(fd) {
		return "", false, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	fmt.Fprintf(p.Out, "Password for %s@%s: ", server.User(), server.Name)
	read := p.readPassword
	if read == nil {
		read = term.ReadPassword
	}
	pw, err := read(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", false, fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(string(pw), "\r\n"), true, nil
}

// LineSource reads one password per request from a reader, for scripted use
// such as `clslens servers check --password-stdin`.
type LineSource struct {
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// NewLineSource creates a LineSource over r.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{scanner: bufio.NewScanner(r)}
}

// Name implements CredentialSource.
func (l *LineSource) Name() string { return "stdin" }

// Password implements CredentialSource.
func (l *LineSource) Password(_ context.Context, _ Descriptor) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.scanner.Scan() {
		return "", false, l.scanner.Err()
	}
	return l.scanner.Text(), true, nil
}
