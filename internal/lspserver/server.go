// Package lspserver exposes the lens engine as a language server over
// JSON-RPC.
package lspserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"clslens/internal/lens"
	"clslens/internal/render"
	"clslens/internal/version"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Command ids handled by workspace/executeCommand.
const (
	CommandOpenOverride    = render.OverrideCommand
	CommandInvalidateCache = "clslens.invalidateCache"
)

const (
	methodInitialize      = "initialize"
	methodInitialized     = "initialized"
	methodShutdown        = "shutdown"
	methodExit            = "exit"
	methodDidOpen         = "textDocument/didOpen"
	methodDidChange       = "textDocument/didChange"
	methodDidSave         = "textDocument/didSave"
	methodDidClose        = "textDocument/didClose"
	methodCodeLens        = "textDocument/codeLens"
	methodReferences      = "textDocument/references"
	methodExecuteCommand  = "workspace/executeCommand"
	methodShowDocument    = "window/showDocument"
	methodCancelRequest   = "$/cancelRequest"
	methodSetTrace        = "$/setTrace"
	methodDidChangeConfig = "workspace/didChangeConfiguration"
)

// Options configures a Server.
type Options struct {
	// InvalidateOnSave drops a class's cached annotations when it is saved.
	InvalidateOnSave bool
}

// Server handles one editor connection.
type Server struct {
	engine *lens.Engine
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	conn        jsonrpc2.Conn
	initialized bool
	shutdown    bool
	exited      chan struct{}
	exitOnce    sync.Once
}

// NewServer creates a Server.
func NewServer(engine *lens.Engine, opts Options, logger *slog.Logger) *Server {
	return &Server{
		engine: engine,
		opts:   opts,
		logger: logger.With("component", "lspserver"),
		exited: make(chan struct{}),
	}
}

// Serve runs the protocol over rwc until the client sends exit, the stream
// ends, or ctx is done.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	conn.Go(ctx, jsonrpc2.AsyncHandler(s.handle))
	s.logger.Info("Language server started", "version", version.Version)

	select {
	case <-s.exited:
		_ = conn.Close()
		<-conn.Done()
		s.logger.Info("Language server exiting")
		return nil
	case <-conn.Done():
		err := conn.Err()
		if err == io.EOF {
			return nil
		}
		return err
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}
}

func (s *Server) state() (initialized, shutdown bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized, s.shutdown
}

func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	method := req.Method()
	s.logger.Debug("Handling message", "method", method)

	initialized, shutdown := s.state()
	switch {
	case method == methodExit:
		s.exitOnce.Do(func() { close(s.exited) })
		return reply(ctx, nil, nil)
	case method == methodInitialize:
		if initialized {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server already initialized"))
		}
		return s.initialize(ctx, reply, req)
	case !initialized:
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.ServerNotInitialized, "server not initialized"))
	case shutdown:
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server is shutting down"))
	}

	switch method {
	case methodInitialized:
		s.logger.Info("Client initialized")
		return reply(ctx, nil, nil)
	case methodShutdown:
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		return reply(ctx, nil, nil)
	case methodDidOpen:
		return s.didOpen(ctx, reply, req)
	case methodDidChange:
		return s.didChange(ctx, reply, req)
	case methodDidSave:
		return s.didSave(ctx, reply, req)
	case methodDidClose:
		return s.didClose(ctx, reply, req)
	case methodCodeLens:
		return s.codeLens(ctx, reply, req)
	case methodReferences:
		return s.references(ctx, reply, req)
	case methodExecuteCommand:
		return s.executeCommand(ctx, reply, req)
	case methodCancelRequest, methodSetTrace, methodDidChangeConfig:
		return reply(ctx, nil, nil)
	}
	return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
}

func decode(req jsonrpc2.Request, v interface{}) error {
	if err := json.Unmarshal(req.Params(), v); err != nil {
		return jsonrpc2.Errorf(jsonrpc2.InvalidParams, "invalid %s params: %v", req.Method(), err)
	}
	return nil
}

func (s *Server) initialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params struct {
		RootURI    uri.URI `json:"rootUri"`
		ClientInfo *struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if err := decode(req, &params); err != nil {
		return reply(ctx, nil, err)
	}
	client := ""
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name + " " + params.ClientInfo.Version
	}
	s.logger.Info("Initialize", "rootUri", params.RootURI, "client", client)

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	return reply(ctx, protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
				Save:      &protocol.SaveOptions{IncludeText: false},
			},
			CodeLensProvider:   &protocol.CodeLensOptions{ResolveProvider: false},
			ReferencesProvider: true,
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{CommandOpenOverride, CommandInvalidateCache},
			},
		},
		ServerInfo: &protocol.ServerInfo{Name: "clslens", Version: version.Version},
	}, nil)
}
