package lspserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"clslens/internal/annotations"
	"clslens/internal/document"
	"clslens/internal/lens"
	"clslens/internal/queries"
	"clslens/internal/references"
	"clslens/internal/slogutil"
	"clslens/internal/symbols"
	"clslens/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// editor is the client side of a test session.
type editor struct {
	conn    jsonrpc2.Conn
	querier *testutil.FakeQuerier
	ws      *testutil.Workspace
	child   uri.URI
	base    uri.URI
	served  chan error

	mu    sync.Mutex
	shown []showDocumentParams
}

func (e *editor) handler(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if req.Method() == methodShowDocument {
		var p showDocumentParams
		if err := json.Unmarshal(req.Params(), &p); err != nil {
			return reply(ctx, nil, err)
		}
		e.mu.Lock()
		e.shown = append(e.shown, p)
		e.mu.Unlock()
		return reply(ctx, showDocumentResult{Success: true}, nil)
	}
	return reply(ctx, nil, nil)
}

func (e *editor) shownDocuments() []showDocumentParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]showDocumentParams(nil), e.shown...)
}

func (e *editor) call(t *testing.T, method string, params, result interface{}) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.conn.Call(ctx, method, params, result)
	return err
}

func (e *editor) notify(t *testing.T, method string, params interface{}) {
	t.Helper()
	require.NoError(t, e.conn.Notify(context.Background(), method, params))
}

func (e *editor) initialize(t *testing.T) protocol.InitializeResult {
	t.Helper()
	var result protocol.InitializeResult
	require.NoError(t, e.call(t, methodInitialize, map[string]interface{}{
		"processId":    nil,
		"rootUri":      string(uri.File(e.ws.Root)),
		"capabilities": map[string]interface{}{},
		"clientInfo":   map[string]string{"name": "test", "version": "1"},
	}, &result))
	e.notify(t, methodInitialized, map[string]interface{}{})
	return result
}

func newEditor(t *testing.T) *editor {
	t.Helper()
	ws := testutil.NewWorkspace(t, map[string]string{
		"Demo.Child": testutil.ChildClass,
		"Demo.Base":  testutil.BaseClass,
	})
	logger := slogutil.NewDiscardLogger()
	locator := document.Locator{SourceRoot: ws.SrcDir}
	catalog, err := queries.ForDialect("iris")
	require.NoError(t, err)
	q := &testutil.FakeQuerier{Results: testutil.ChildResults()}
	conns := testutil.FakeConnections{}
	chain := symbols.NewChainProvider(nil, symbols.OutlineProvider{}, symbols.DefaultDocCommentPrefix, logger)
	builder := annotations.NewBuilder(annotations.NewMemoryCache(), q, conns, catalog, locator, annotations.Options{SingleFlight: true}, logger)
	engine := lens.NewEngine(lens.Deps{
		Store:   document.NewStore(),
		Locator: locator,
		Builder: builder,
		Finder:  references.NewFinder(conns, q, catalog, locator, chain, logger),
		Symbols: chain,
	}, lens.Options{}, logger)

	srv := NewServer(engine, Options{InvalidateOnSave: true}, logger)
	serverSide, clientSide := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	e := &editor{
		querier: q,
		ws:      ws,
		child:   locator.URIForClass("Demo.Child"),
		base:    locator.URIForClass("Demo.Base"),
		served:  make(chan error, 1),
	}
	go func() { e.served <- srv.Serve(ctx, serverSide) }()

	e.conn = jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	e.conn.Go(ctx, e.handler)
	t.Cleanup(func() {
		cancel()
		_ = e.conn.Close()
	})
	return e
}

func codeOf(t *testing.T, err error) jsonrpc2.Code {
	t.Helper()
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr), "expected a JSON-RPC error, got %v", err)
	return rpcErr.Code
}

func TestServer_RejectsRequestsBeforeInitialize(t *testing.T) {
	e := newEditor(t)
	var lenses []protocol.CodeLens
	err := e.call(t, methodCodeLens, protocol.CodeLensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)},
	}, &lenses)
	require.Error(t, err)
	assert.Equal(t, jsonrpc2.ServerNotInitialized, codeOf(t, err))
}

func TestServer_InitializeAdvertisesCapabilities(t *testing.T) {
	e := newEditor(t)
	result := e.initialize(t)

	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "clslens", result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.CodeLensProvider)
	assert.NotNil(t, result.Capabilities.ExecuteCommandProvider)
	assert.ElementsMatch(t,
		[]string{CommandOpenOverride, CommandInvalidateCache},
		result.Capabilities.ExecuteCommandProvider.Commands)

	var again protocol.InitializeResult
	err := e.call(t, methodInitialize, map[string]interface{}{"capabilities": map[string]interface{}{}}, &again)
	require.Error(t, err)
	assert.Equal(t, jsonrpc2.InvalidRequest, codeOf(t, err))
}

func TestServer_CodeLensForOpenDocument(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	e.notify(t, methodDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentURI(e.child),
			LanguageID: document.ClassLanguageID,
			Version:    1,
			Text:       testutil.ChildClass,
		},
	})

	var lenses []protocol.CodeLens
	require.NoError(t, e.call(t, methodCodeLens, protocol.CodeLensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)},
	}, &lenses))

	titles := make(map[uint32][]string)
	for _, l := range lenses {
		require.NotNil(t, l.Command)
		titles[l.Range.Start.Line] = append(titles[l.Range.Start.Line], l.Command.Title)
	}
	require.Len(t, titles[8], 2)
	assert.Contains(t, titles[8][1], "Overridden 2")
	require.Len(t, titles[12], 1)
	assert.Contains(t, titles[12][0], "Xref 7")
	assert.Equal(t, 1, e.querier.Calls(queries.NameOrigins))
}

func TestServer_IncrementalChangeAtDocumentStart(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	e.notify(t, methodDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentURI(e.child),
			LanguageID: document.ClassLanguageID,
			Version:    1,
			Text:       testutil.ChildClass,
		},
	})
	e.notify(t, methodDidChange, map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": string(e.child), "version": 2},
		"contentChanges": []map[string]interface{}{{
			"range": map[string]interface{}{
				"start": map[string]int{"line": 0, "character": 0},
				"end":   map[string]int{"line": 0, "character": 0},
			},
			"text": "\n\n",
		}},
	})

	var lenses []protocol.CodeLens
	require.NoError(t, e.call(t, methodCodeLens, protocol.CodeLensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)},
	}, &lenses))

	titles := make(map[uint32][]string)
	for _, l := range lenses {
		require.NotNil(t, l.Command)
		titles[l.Range.Start.Line] = append(titles[l.Range.Start.Line], l.Command.Title)
	}
	assert.Empty(t, titles[12], "markers move with the inserted lines")
	require.Len(t, titles[14], 1)
	assert.Contains(t, titles[14][0], "Xref 7")
}

func TestServer_CodeLensForUnsupportedLanguage(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	e.notify(t, methodDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentURI(e.child),
			LanguageID: "plaintext",
			Version:    1,
			Text:       testutil.ChildClass,
		},
	})

	var lenses []protocol.CodeLens
	require.NoError(t, e.call(t, methodCodeLens, protocol.CodeLensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)},
	}, &lenses))
	assert.Empty(t, lenses)
	assert.Equal(t, 0, e.querier.Calls(queries.NameOrigins))
}

func TestServer_References(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	var locs []protocol.Location
	require.NoError(t, e.call(t, methodReferences, protocol.ReferenceParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)},
			Position:     protocol.Position{Line: 8, Character: 8},
		},
	}, &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, uint32(2), locs[0].Range.Start.Line)
	assert.Equal(t, uint32(1), locs[0].Range.Start.Character)
}

func TestServer_OpenOverrideShowsDocument(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	var loc protocol.Location
	require.NoError(t, e.call(t, methodExecuteCommand, map[string]interface{}{
		"command":   CommandOpenOverride,
		"arguments": []string{"Demo.Base", "Run"},
	}, &loc))
	assert.Equal(t, protocol.DocumentURI(e.base), loc.URI)
	assert.Equal(t, uint32(4), loc.Range.Start.Line)

	require.Eventually(t, func() bool { return len(e.shownDocuments()) == 1 }, 2*time.Second, 10*time.Millisecond)
	shown := e.shownDocuments()[0]
	assert.Equal(t, protocol.DocumentURI(e.base), shown.URI)
	assert.True(t, shown.TakeFocus)
	require.NotNil(t, shown.Selection)
	assert.Equal(t, uint32(4), shown.Selection.Start.Line)
}

func TestServer_OpenOverrideRejectsBadArguments(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	var loc protocol.Location
	err := e.call(t, methodExecuteCommand, map[string]interface{}{
		"command":   CommandOpenOverride,
		"arguments": []string{"Demo.Base"},
	}, &loc)
	require.Error(t, err)
	assert.Equal(t, jsonrpc2.InvalidParams, codeOf(t, err))

	err = e.call(t, methodExecuteCommand, map[string]interface{}{"command": "clslens.nope"}, &loc)
	require.Error(t, err)
	assert.Equal(t, jsonrpc2.InvalidParams, codeOf(t, err))
}

func TestServer_InvalidateCache(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	params := protocol.CodeLensParams{TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)}}
	var lenses []protocol.CodeLens
	require.NoError(t, e.call(t, methodCodeLens, params, &lenses))

	var removed int
	require.NoError(t, e.call(t, methodExecuteCommand, map[string]interface{}{
		"command":   CommandInvalidateCache,
		"arguments": []string{"Demo.Child"},
	}, &removed))
	assert.Equal(t, 1, removed)

	require.NoError(t, e.call(t, methodCodeLens, params, &lenses))
	assert.Equal(t, 2, e.querier.Calls(queries.NameOrigins))

	require.NoError(t, e.call(t, methodExecuteCommand, map[string]interface{}{"command": CommandInvalidateCache}, &removed))
	assert.Equal(t, 1, removed)
}

func TestServer_SaveInvalidatesClass(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	params := protocol.CodeLensParams{TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)}}
	var lenses []protocol.CodeLens
	require.NoError(t, e.call(t, methodCodeLens, params, &lenses))

	e.notify(t, methodDidSave, protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)},
	})
	require.NoError(t, e.call(t, methodCodeLens, params, &lenses))
	assert.Equal(t, 2, e.querier.Calls(queries.NameOrigins))
}

func TestServer_UnknownMethod(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	var out interface{}
	err := e.call(t, "textDocument/hover", map[string]interface{}{}, &out)
	require.Error(t, err)
	assert.Equal(t, jsonrpc2.MethodNotFound, codeOf(t, err))
}

func TestServer_ShutdownThenExit(t *testing.T) {
	e := newEditor(t)
	e.initialize(t)

	var out interface{}
	require.NoError(t, e.call(t, methodShutdown, nil, &out))

	var lenses []protocol.CodeLens
	err := e.call(t, methodCodeLens, protocol.CodeLensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(e.child)},
	}, &lenses)
	require.Error(t, err)
	assert.Equal(t, jsonrpc2.InvalidRequest, codeOf(t, err))

	e.notify(t, methodExit, nil)
	select {
	case err := <-e.served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after exit")
	}
}
