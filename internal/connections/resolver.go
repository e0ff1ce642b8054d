package connections

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	lenserrors "clslens/internal/errors"
	"clslens/internal/paths"

	"go.lsp.dev/uri"
)

// Resolver picks the server for a document and completes its credentials.
type Resolver struct {
	file          *File
	workspaceRoot string
	sources       []CredentialSource
	session       *SessionStore
	logger        *slog.Logger
}

// NewResolver creates a resolver. Credential sources are consulted in order
// after the session store; obtained passwords are remembered in the session.
func NewResolver(file *File, workspaceRoot string, logger *slog.Logger, sources ...CredentialSource) *Resolver {
	if file == nil {
		file = &File{}
	}
	return &Resolver{
		file:          file,
		workspaceRoot: workspaceRoot,
		sources:       sources,
		session:       NewSessionStore(),
		logger:        logger,
	}
}

// Servers returns the configured servers.
func (r *Resolver) Servers() []Descriptor {
	return r.file.Servers
}

// Session exposes the session store, e.g. to forget a rejected password.
func (r *Resolver) Session() *SessionStore {
	return r.session
}

// Resolve returns the server that holds metadata for docURI: the xref
// server when configured, else the server whose folders contain the
// document, else the default.
func (r *Resolver) Resolve(ctx context.Context, docURI uri.URI) (Descriptor, error) {
	server, ok := r.selectServer(docURI)
	if !ok {
		return Descriptor{}, lenserrors.New(lenserrors.ConfigInvalid, "no metadata server configured", nil)
	}
	return r.complete(ctx, server), nil
}

// ResolveNamed returns the named server with credentials completed.
func (r *Resolver) ResolveNamed(ctx context.Context, name string) (Descriptor, error) {
	server, ok := r.file.Lookup(name)
	if !ok {
		return Descriptor{}, lenserrors.New(lenserrors.ConfigInvalid, "unknown server "+name, nil)
	}
	return r.complete(ctx, server), nil
}

func (r *Resolver) selectServer(docURI uri.URI) (Descriptor, bool) {
	if r.file.Xref != "" {
		return r.file.Lookup(r.file.Xref)
	}
	if docPath, ok := paths.FromURI(docURI); ok && r.workspaceRoot != "" {
		best, bestLen := Descriptor{}, -1
		for _, s := range r.file.Servers {
			for _, folder := range s.Folders {
				dir := folder
				if !filepath.IsAbs(dir) {
					dir = filepath.Join(r.workspaceRoot, folder)
				}
				if paths.IsWithin(docPath, dir) && len(dir) > bestLen {
					best, bestLen = s, len(dir)
				}
			}
		}
		if bestLen >= 0 {
			return best, true
		}
	}
	if r.file.Default != "" {
		return r.file.Lookup(r.file.Default)
	}
	return Descriptor{}, false
}

// complete runs the credential step. Failures leave the password absent and
// are logged; the request then proceeds unauthenticated.
func (r *Resolver) complete(ctx context.Context, server Descriptor) Descriptor {
	if !server.NeedsCredentials() {
		return server
	}

	sources := append([]CredentialSource{r.session}, r.sources...)
	for _, src := range sources {
		pw, ok, err := src.Password(ctx, server)
		if err != nil {
			r.logger.Warn("Credential source failed",
				"server", server.Name,
				"source", src.Name(),
				"error", err.Error(),
			)
			continue
		}
		if !ok {
			continue
		}
		if src != CredentialSource(r.session) {
			r.session.Remember(server, pw)
		}
		r.logger.Debug("Credentials obtained", "server", server.Name, "source", src.Name())
		return server.WithPassword(pw)
	}

	r.logger.Warn("No password available",
		"server", server.Name,
		"user", server.User(),
		"hint", "set "+EnvVarFor(server.Name)+" or a password in servers.toml",
	)
	return server
}

// Summary lists server names, marking the default and xref servers.
func (r *Resolver) Summary() string {
	var b strings.Builder
	for _, s := range r.file.Servers {
		b.WriteString(s.String())
		if s.Name == r.file.Default {
			b.WriteString(" [default]")
		}
		if s.Name == r.file.Xref {
			b.WriteString(" [xref]")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
