package lens

import (
	"context"
	"sync"
	"testing"

	"clslens/internal/annotations"
	"clslens/internal/document"
	"clslens/internal/queries"
	"clslens/internal/references"
	"clslens/internal/render"
	"clslens/internal/slogutil"
	"clslens/internal/symbols"
	"clslens/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

type countingObserver struct {
	mu    sync.Mutex
	kinds map[string]int
}

func (o *countingObserver) ObserveMarker(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds[kind]++
}

type fixture struct {
	engine   *Engine
	querier  *testutil.FakeQuerier
	ws       *testutil.Workspace
	childURI uri.URI
	observer *countingObserver
}

func newFixture(t *testing.T) *fixture {
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
	chain := symbols.NewChainProvider(nil, symbols.OutlineProvider{}, "///", logger)
	builder := annotations.NewBuilder(annotations.NewMemoryCache(), q, conns, catalog, locator, annotations.Options{SingleFlight: true}, logger)
	finder := references.NewFinder(conns, q, catalog, locator, chain, logger)
	obs := &countingObserver{kinds: make(map[string]int)}

	engine := NewEngine(Deps{
		Store:   document.NewStore(),
		Locator: locator,
		Builder: builder,
		Finder:  finder,
		Symbols: chain,
	}, Options{Observer: obs}, logger)

	return &fixture{
		engine:   engine,
		querier:  q,
		ws:       ws,
		childURI: locator.URIForClass("Demo.Child"),
		observer: obs,
	}
}

func TestCodeLenses_EndToEnd(t *testing.T) {
	f := newFixture(t)
	lenses, err := f.engine.CodeLenses(context.Background(), f.childURI)
	require.NoError(t, err)

	titles := make(map[uint32][]string)
	for _, l := range lenses {
		titles[l.Range.Start.Line] = append(titles[l.Range.Start.Line], l.Command.Title)
	}
	assert.Equal(t, map[uint32][]string{
		4:  {"Override"},
		8:  {"Override", "Overridden 2"},
		12: {"Xref 7"},
	}, titles)

	assert.Equal(t, 1, f.querier.Calls(queries.NameOrigins))
	assert.Equal(t, 1, f.querier.Calls(queries.NameCrossRefs))
	assert.Equal(t, 2, f.observer.kinds[string(render.KindOverride)])

	// second render is served from the cache
	_, err = f.engine.CodeLenses(context.Background(), f.childURI)
	require.NoError(t, err)
	assert.Equal(t, 1, f.querier.Calls(queries.NameOrigins))
}

func TestCodeLenses_OpenDocumentWins(t *testing.T) {
	f := newFixture(t)
	f.engine.Store().Open(document.New(f.childURI, document.ClassLanguageID, 3,
		"Class Demo.Child\n{\n\nProperty Name As %String;\n}\n"))

	lenses, err := f.engine.CodeLenses(context.Background(), f.childURI)
	require.NoError(t, err)
	require.Len(t, lenses, 1)
	assert.Equal(t, uint32(3), lenses[0].Range.Start.Line)
}

func TestMarkers_Filtered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := document.New(f.childURI, "objectscript", 1, testutil.ChildClass)
	assert.Empty(t, f.engine.Markers(ctx, other), "wrong language")

	noClass := document.New(f.childURI, document.ClassLanguageID, 1, "ROUTINE X\n")
	assert.Empty(t, f.engine.Markers(ctx, noClass))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	doc := document.New(f.childURI, document.ClassLanguageID, 1, testutil.ChildClass)
	assert.Empty(t, f.engine.Markers(cancelled, doc))

	assert.Zero(t, f.querier.Calls(queries.NameOrigins), "no queries for filtered documents")
}

func TestAccepts(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.engine.Accepts(document.New("file:///a/B.cls", "", 0, "")))
	assert.False(t, f.engine.Accepts(document.New("file:///a/B.mac", "", 0, "")))
	assert.True(t, f.engine.Accepts(document.New("file:///a/B", document.ClassLanguageID, 0, "")))
}

func TestReferences(t *testing.T) {
	f := newFixture(t)
	locs, err := f.engine.References(context.Background(), f.childURI, protocol.Position{Line: 8, Character: 2})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, uint32(2), locs[0].Range.Start.Line)
	assert.Equal(t, uint32(1), locs[0].Range.Start.Character)
}

func TestOverrideTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	loc, err := f.engine.OverrideTarget(ctx, "Demo.Base", "RUN")
	require.NoError(t, err)
	assert.Equal(t, f.ws.ClassPath("Demo.Base"), uri.URI(loc.URI).Filename())
	assert.Equal(t, uint32(4), loc.Range.Start.Line)
	assert.Equal(t, uint32(7), loc.Range.Start.Character)

	loc, err = f.engine.OverrideTarget(ctx, "Demo.Base", "Missing")
	require.NoError(t, err)
	assert.Equal(t, protocol.Range{}, loc.Range)

	loc, err = f.engine.OverrideTarget(ctx, "%Library.Persistent", "%Save")
	assert.Error(t, err)
	assert.Equal(t, protocol.Range{}, loc.Range)
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.CodeLenses(ctx, f.childURI)
	require.NoError(t, err)

	doc, err := f.engine.Document(f.childURI)
	require.NoError(t, err)
	assert.True(t, f.engine.InvalidateDocument(doc, "save"))
	_, err = f.engine.CodeLenses(ctx, f.childURI)
	require.NoError(t, err)
	assert.Equal(t, 2, f.querier.Calls(queries.NameOrigins))

	assert.Equal(t, 1, f.engine.InvalidateAll("command"))
	assert.False(t, f.engine.Invalidate("Demo.Child", "command"))
}

func TestAnnotate(t *testing.T) {
	f := newFixture(t)
	doc, err := f.engine.Document(f.childURI)
	require.NoError(t, err)

	report, err := f.engine.Annotate(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Demo.Child", report.Class)
	assert.Equal(t, "outline", report.SymbolSource)
	assert.Equal(t, "comment-skip", report.AnchorStrategy)
	require.Len(t, report.Members, 3)
	assert.Equal(t, MemberReport{
		Member: "Run", Key: " RUN", AnchorLine: 8,
		OriginClass: "Demo.Base", OriginMember: "Run", MemberKind: "method",
		OverrideCount: 2, Annotated: true,
	}, report.Members[1])
	assert.Len(t, report.Markers, 4)

	_, err = f.engine.Annotate(context.Background(), document.New(f.childURI, document.ClassLanguageID, 1, "x\n"))
	assert.Error(t, err)
}
