// Package lspclient drives an external language server as a precise source
// of document symbols.
//
// The server is started as a child process speaking JSON-RPC over stdio. A
// supervisor loop restarts it with exponential backoff after it dies or
// fails too many requests in a row. While it is not ready, Precise reports
// false and callers fall back to the built-in outline.
package lspclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"clslens/internal/document"
	lenserrors "clslens/internal/errors"
	"clslens/internal/version"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

const (
	methodInitialize             = "initialize"
	methodInitialized            = "initialized"
	methodShutdown               = "shutdown"
	methodExit                   = "exit"
	methodDidOpen                = "textDocument/didOpen"
	methodDidChange              = "textDocument/didChange"
	methodDidClose               = "textDocument/didClose"
	methodDocumentSymbol         = "textDocument/documentSymbol"
	methodPublishDiagnostics     = "textDocument/publishDiagnostics"
	methodLogMessage             = "window/logMessage"
	methodShowMessage            = "window/showMessage"
	methodWorkDoneProgressCreate = "window/workDoneProgress/create"
	methodConfiguration          = "workspace/configuration"
	methodRegisterCapability     = "client/registerCapability"
	methodUnregisterCapability   = "client/unregisterCapability"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultHealthInterval = 2 * time.Second
)

// Options configures a Client.
type Options struct {
	Command       string
	Args          []string
	LanguageID    string
	WorkspaceRoot string
	Timeout       time.Duration

	// HealthInterval is how often the supervisor checks for a restart.
	HealthInterval time.Duration

	// Spawner defaults to ExecSpawner.
	Spawner Spawner
}

type openDoc struct {
	version int32
	text    string
}

// Client is a symbols provider backed by a language server process.
type Client struct {
	opts   Options
	logger *slog.Logger
	status processStatus
	now    func() time.Time

	mu      sync.Mutex
	conn    jsonrpc2.Conn
	stop    func() error
	cancel  context.CancelFunc
	docs    map[uri.URI]openDoc
	started bool
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a client. Nothing runs until Start.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.Spawner == nil {
		opts.Spawner = ExecSpawner
	}
	c := &Client{
		opts:   opts,
		logger: logger.With("component", "lspclient"),
		now:    time.Now,
		docs:   make(map[uri.URI]openDoc),
		done:   make(chan struct{}),
	}
	c.status.state = StateDead
	return c
}

// Enabled reports whether a language server command is configured.
func (c *Client) Enabled() bool {
	return c.opts.Command != ""
}

// State returns the process state.
func (c *Client) State() State {
	return c.status.State()
}

// Precise reports whether the language server is ready.
func (c *Client) Precise() bool {
	return c.status.State() == StateReady
}

// Stats summarizes the process health.
type Stats struct {
	State               State     `json:"state"`
	RestartCount        int       `json:"restartCount"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastResponse        time.Time `json:"lastResponse"`
}

// Stats returns the current health counters.
func (c *Client) Stats() Stats {
	c.status.mu.RLock()
	defer c.status.mu.RUnlock()
	return Stats{
		State:               c.status.state,
		RestartCount:        c.status.restartCount,
		ConsecutiveFailures: c.status.consecutiveFailures,
		LastResponse:        c.status.lastResponseTime,
	}
}

// Start launches the language server and its supervisor. A failed first
// launch is returned but the supervisor keeps retrying with backoff.
func (c *Client) Start(ctx context.Context) error {
	if !c.Enabled() {
		return lenserrors.New(lenserrors.BackendUnavailable, "no language server configured", nil)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return lenserrors.New(lenserrors.BackendUnavailable, "language server client is closed", nil)
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	err := c.startLocked(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.superviseLoop()
	return err
}

func (c *Client) startLocked(ctx context.Context) error {
	c.status.setState(StateStarting)
	rwc, stop, err := c.opts.Spawner(ctx, c.opts, c.logger)
	if err != nil {
		c.status.setState(StateDead)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	conn.Go(runCtx, c.handle)
	c.conn, c.stop, c.cancel = conn, stop, cancel
	c.docs = make(map[uri.URI]openDoc)

	c.status.setState(StateInitializing)
	if err := c.initialize(ctx, conn); err != nil {
		c.teardownLocked()
		c.status.setState(StateDead)
		return fmt.Errorf("failed to initialize language server: %w", err)
	}
	c.status.setState(StateReady)
	c.status.recordSuccess(c.now())

	go c.watch(conn)

	c.logger.Info("Started language server",
		"command", c.opts.Command,
		"languageId", c.opts.LanguageID,
	)
	return nil
}

func (c *Client) initialize(ctx context.Context, conn jsonrpc2.Conn) error {
	params := map[string]interface{}{
		"processId": os.Getpid(),
		"clientInfo": map[string]interface{}{
			"name":    "clslens",
			"version": version.Version,
		},
		"capabilities": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"documentSymbol": map[string]interface{}{
					"hierarchicalDocumentSymbolSupport": true,
				},
			},
		},
	}
	if c.opts.WorkspaceRoot != "" {
		params["rootUri"] = uri.File(c.opts.WorkspaceRoot)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	var result json.RawMessage
	if _, err := conn.Call(callCtx, methodInitialize, params, &result); err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	if err := conn.Notify(ctx, methodInitialized, map[string]interface{}{}); err != nil {
		return fmt.Errorf("initialized notification failed: %w", err)
	}
	return nil
}

// watch marks the process dead when its connection ends unexpectedly.
func (c *Client) watch(conn jsonrpc2.Conn) {
	<-conn.Done()
	c.mu.Lock()
	current := c.conn == conn
	c.mu.Unlock()
	if !current {
		return
	}
	c.status.setState(StateDead)
	errMsg := ""
	if err := conn.Err(); err != nil {
		errMsg = err.Error()
	}
	c.logger.Warn("Language server connection closed", "error", errMsg)
}

func (c *Client) superviseLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkHealth()
		case <-c.done:
			return
		}
	}
}

// checkHealth restarts a dead or unhealthy process once its backoff allows.
func (c *Client) checkHealth() {
	state := c.status.State()
	if state != StateDead && state != StateUnhealthy {
		return
	}
	now := c.now()
	if !c.status.canRestart(now) {
		return
	}
	count, backoff := c.status.scheduleRestart(now)
	c.logger.Info("Restarting language server",
		"restartCount", count,
		"backoff", backoff.String(),
		"previousState", string(state),
	)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.teardownLocked()
	if err := c.startLocked(ctx); err != nil {
		c.logger.Error("Failed to restart language server", "error", err.Error())
	}
}

func (c *Client) teardownLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.stop != nil {
		_ = c.stop()
	}
	c.conn, c.stop, c.cancel = nil, nil, nil
	c.docs = make(map[uri.URI]openDoc)
}

// Close shuts the language server down and stops the supervisor.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	ready := c.status.State() == StateReady
	c.mu.Unlock()

	if conn != nil && ready {
		callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		var result json.RawMessage
		if _, err := conn.Call(callCtx, methodShutdown, nil, &result); err == nil {
			_ = conn.Notify(callCtx, methodExit, nil)
		}
		cancel()
	}

	c.mu.Lock()
	c.teardownLocked()
	c.mu.Unlock()
	c.status.setState(StateDead)
	c.wg.Wait()
	return nil
}

// handle answers the few requests a language server sends to its client.
func (c *Client) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case methodLogMessage, methodShowMessage:
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(req.Params(), &msg)
		c.logger.Debug("Language server message", "message", msg.Message)
		return reply(ctx, nil, nil)
	case methodConfiguration:
		var p struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(req.Params(), &p)
		return reply(ctx, make([]interface{}, len(p.Items)), nil)
	case methodRegisterCapability, methodUnregisterCapability,
		methodWorkDoneProgressCreate, methodPublishDiagnostics:
		return reply(ctx, nil, nil)
	}
	return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
}

// connection returns the live connection, or an error while not ready.
func (c *Client) connection() (jsonrpc2.Conn, error) {
	if !c.Precise() {
		return nil, lenserrors.New(lenserrors.BackendUnavailable,
			fmt.Sprintf("language server is %s", c.status.State()), nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, lenserrors.New(lenserrors.BackendUnavailable, "language server is not running", nil)
	}
	return c.conn, nil
}

func (c *Client) fail(err error) {
	if c.status.recordFailure() {
		c.logger.Warn("Language server marked unhealthy",
			"consecutiveFailures", MaxConsecutiveFailures,
			"error", err.Error(),
		)
	}
}

// DocumentSymbols implements symbols.Provider. The document is mirrored to
// the server first.
func (c *Client) DocumentSymbols(ctx context.Context, doc *document.Document) ([]protocol.DocumentSymbol, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	if err := c.sync(ctx, conn, doc); err != nil {
		c.fail(err)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	params := protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(doc.URI)},
	}
	var raw json.RawMessage
	if _, err := conn.Call(callCtx, methodDocumentSymbol, params, &raw); err != nil {
		c.fail(err)
		return nil, fmt.Errorf("documentSymbol request failed: %w", err)
	}
	c.status.recordSuccess(c.now())
	return decodeSymbols(raw)
}

// sync sends didOpen for unseen documents and a full-text didChange when the
// version or text moved on.
func (c *Client) sync(ctx context.Context, conn jsonrpc2.Conn, doc *document.Document) error {
	text := doc.Text()
	c.mu.Lock()
	prev, opened := c.docs[doc.URI]
	c.docs[doc.URI] = openDoc{version: doc.Version, text: text}
	c.mu.Unlock()

	if !opened {
		languageID := c.opts.LanguageID
		if languageID == "" {
			languageID = doc.LanguageID
		}
		return conn.Notify(ctx, methodDidOpen, map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri":        doc.URI,
				"languageId": languageID,
				"version":    doc.Version,
				"text":       text,
			},
		})
	}
	if prev.version == doc.Version && prev.text == text {
		return nil
	}
	return conn.Notify(ctx, methodDidChange, map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri":     doc.URI,
			"version": doc.Version,
		},
		"contentChanges": []map[string]interface{}{{"text": text}},
	})
}

// CloseDocument mirrors didClose for a document sent earlier.
func (c *Client) CloseDocument(ctx context.Context, u uri.URI) {
	c.mu.Lock()
	_, opened := c.docs[u]
	delete(c.docs, u)
	conn := c.conn
	c.mu.Unlock()
	if !opened || conn == nil || !c.Precise() {
		return
	}
	err := conn.Notify(ctx, methodDidClose, map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": u},
	})
	if err != nil {
		c.logger.Debug("didClose failed", "uri", u, "error", err.Error())
	}
}

var errFlatSymbols = errors.New("language server returned flat symbol information")

// decodeSymbols accepts the hierarchical DocumentSymbol form only; the flat
// SymbolInformation form carries no selection range to anchor on.
func decodeSymbols(raw json.RawMessage) ([]protocol.DocumentSymbol, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode document symbols: %w", err)
	}
	if len(items) > 0 {
		if _, flat := items[0]["location"]; flat {
			return nil, errFlatSymbols
		}
	}
	var syms []protocol.DocumentSymbol
	if err := json.Unmarshal(raw, &syms); err != nil {
		return nil, fmt.Errorf("failed to decode document symbols: %w", err)
	}
	return syms, nil
}
