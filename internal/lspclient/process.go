package lspclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// State is the lifecycle state of the language server process.
type State string

const (
	// StateStarting indicates the process is being spawned
	StateStarting State = "starting"
	// StateInitializing indicates the initialize request is in flight
	StateInitializing State = "initializing"
	// StateReady indicates the process answers requests
	StateReady State = "ready"
	// StateUnhealthy indicates too many requests failed in a row
	StateUnhealthy State = "unhealthy"
	// StateDead indicates the process has terminated or was never started
	StateDead State = "dead"
)

const (
	// MaxConsecutiveFailures before the process is marked unhealthy
	MaxConsecutiveFailures = 3

	// BaseBackoff is the delay before the first restart
	BaseBackoff = time.Second

	// MaxBackoff caps the restart delay
	MaxBackoff = 30 * time.Second
)

// processStatus tracks health of the current process. All fields are
// guarded by mu.
type processStatus struct {
	mu                  sync.RWMutex
	state               State
	lastResponseTime    time.Time
	consecutiveFailures int
	restartCount        int
	nextRestartAt       time.Time
}

func (s *processStatus) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *processStatus) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *processStatus) recordSuccess(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponseTime = now
	s.consecutiveFailures = 0
}

// recordFailure counts a failed request and reports whether the process
// just became unhealthy.
func (s *processStatus) recordFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures && s.state == StateReady {
		s.state = StateUnhealthy
		return true
	}
	return false
}

func (s *processStatus) canRestart(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !now.Before(s.nextRestartAt)
}

// scheduleRestart bumps the restart count and sets the next allowed restart.
func (s *processStatus) scheduleRestart(now time.Time) (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartCount++
	s.consecutiveFailures = 0
	backoff := computeBackoff(s.restartCount)
	s.nextRestartAt = now.Add(backoff)
	return s.restartCount, backoff
}

// computeBackoff is BaseBackoff * 2^(restartCount-1), capped at MaxBackoff.
func computeBackoff(restartCount int) time.Duration {
	if restartCount <= 1 {
		return BaseBackoff
	}
	backoff := BaseBackoff
	for i := 1; i < restartCount; i++ {
		backoff *= 2
		if backoff >= MaxBackoff {
			return MaxBackoff
		}
	}
	return backoff
}

// Spawner starts a language server and returns its stdio as one stream.
// stop terminates the process.
type Spawner func(ctx context.Context, opts Options, logger *slog.Logger) (rwc io.ReadWriteCloser, stop func() error, err error)

// ExecSpawner runs opts.Command as a child process. stderr is forwarded to
// the logger at debug level.
func ExecSpawner(ctx context.Context, opts Options, logger *slog.Logger) (io.ReadWriteCloser, func() error, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.WorkspaceRoot

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start language server: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("Language server stderr", "line", scanner.Text())
		}
	}()

	stop := func() error {
		_ = stdin.Close()
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		return nil
	}
	return &stdio{r: stdout, w: stdin}, stop, nil
}

type stdio struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (s *stdio) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdio) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *stdio) Close() error {
	werr := s.w.Close()
	rerr := s.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
