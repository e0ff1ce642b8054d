// Package lens answers code lens, reference and override-navigation
// requests for class documents.
package lens

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"clslens/internal/annotations"
	"clslens/internal/document"
	"clslens/internal/references"
	"clslens/internal/render"
	"clslens/internal/symbols"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// MarkerObserver counts rendered markers.
type MarkerObserver interface {
	ObserveMarker(kind string)
}

// DocumentCloser is told when the editor closes a document.
type DocumentCloser interface {
	CloseDocument(ctx context.Context, u uri.URI)
}

// Options configures an Engine.
type Options struct {
	// LanguageIDs are the document languages that get markers. Documents
	// without a language id are accepted by .cls extension.
	LanguageIDs []string
	Lens        render.LensOptions
	Observer    MarkerObserver
	Closer      DocumentCloser
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store   *document.Store
	Locator document.Locator
	Builder *annotations.Builder
	Finder  *references.Finder
	Symbols *symbols.ChainProvider
}

// Engine ties documents, symbols and annotations together per request.
type Engine struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, opts Options, logger *slog.Logger) *Engine {
	if len(opts.LanguageIDs) == 0 {
		opts.LanguageIDs = []string{document.ClassLanguageID}
	}
	return &Engine{deps: deps, opts: opts, logger: logger}
}

// Store returns the open document store.
func (e *Engine) Store() *document.Store {
	return e.deps.Store
}

// Accepts reports whether doc gets markers.
func (e *Engine) Accepts(doc *document.Document) bool {
	if doc.LanguageID == "" {
		p := string(doc.URI)
		return strings.EqualFold(filepath.Ext(p), ".cls")
	}
	for _, id := range e.opts.LanguageIDs {
		if doc.LanguageID == id {
			return true
		}
	}
	return false
}

// Document returns the open document for u, or loads it from disk.
func (e *Engine) Document(u uri.URI) (*document.Document, error) {
	return e.deps.Locator.Load(e.deps.Store, u)
}

// CodeLenses returns the code lenses of an open or on-disk document.
func (e *Engine) CodeLenses(ctx context.Context, u uri.URI) ([]protocol.CodeLens, error) {
	doc, err := e.Document(u)
	if err != nil {
		return nil, err
	}
	return render.CodeLenses(e.Markers(ctx, doc), e.opts.Lens), nil
}

// Markers renders the markers of doc. Unsupported documents, documents
// without a class declaration or symbols, and cancelled requests yield
// nothing. Cancellation is only observed around the symbol fetch; once the
// annotation queries start they run to completion.
func (e *Engine) Markers(ctx context.Context, doc *document.Document) []render.Marker {
	report, ok := e.prepare(ctx, doc)
	if !ok {
		return nil
	}
	return report.Markers
}

// prepare runs the full pipeline and keeps the intermediate results.
func (e *Engine) prepare(ctx context.Context, doc *document.Document) (Report, bool) {
	if !e.Accepts(doc) {
		e.logger.Debug("Document language not valid", "uri", doc.URI, "languageId", doc.LanguageID)
		return Report{}, false
	}
	className := doc.ClassName()
	if className == "" {
		e.logger.Debug("Class name not found", "uri", doc.URI)
		return Report{}, false
	}
	if ctx.Err() != nil {
		return Report{}, false
	}

	res, err := e.deps.Symbols.Resolve(ctx, doc)
	if err != nil || len(res.Symbols) == 0 || ctx.Err() != nil {
		e.logger.Debug("No symbols or request cancelled", "uri", doc.URI)
		return Report{}, false
	}
	members := symbols.Members(res.Symbols)

	annotationMap := e.deps.Builder.Resolve(ctx, className, doc.URI)
	anchors := symbols.Anchors(members, doc, res.Strategy)
	markers := render.Render(anchors, annotationMap)
	if e.opts.Observer != nil {
		for _, m := range markers {
			e.opts.Observer.ObserveMarker(string(m.Kind))
		}
	}
	return newReport(className, res, anchors, annotationMap, markers), true
}

// References returns the call-sites of the member anchored at pos.
func (e *Engine) References(ctx context.Context, u uri.URI, pos protocol.Position) ([]protocol.Location, error) {
	doc, err := e.Document(u)
	if err != nil {
		return nil, err
	}
	if !e.Accepts(doc) {
		return nil, nil
	}
	return e.deps.Finder.FindReferences(ctx, doc, pos), nil
}

// OverrideTarget locates a member of an origin class. When the class
// document or the member cannot be found, the start of the class document
// is returned; err is set only when the document could not be read.
func (e *Engine) OverrideTarget(ctx context.Context, className, memberName string) (protocol.Location, error) {
	u := e.deps.Locator.URIForClass(className)
	loc := protocol.Location{URI: protocol.DocumentURI(u)}

	doc, err := e.Document(u)
	if err != nil {
		e.logger.Warn("Origin class document not readable", "class", className, "error", err.Error())
		return loc, err
	}
	res, err := e.deps.Symbols.Resolve(ctx, doc)
	if err != nil {
		return loc, nil
	}
	want := annotations.MemberKey(memberName)
	for _, sym := range symbols.Members(res.Symbols) {
		if annotations.MemberKey(sym.Name) != want {
			continue
		}
		line := res.Strategy.AnchorLine(sym, doc)
		loc.Range = protocol.Range{
			Start: protocol.Position{Line: line},
			End:   protocol.Position{Line: line},
		}
		if sym.SelectionRange.Start.Line == line {
			loc.Range = sym.SelectionRange
		}
		return loc, nil
	}
	e.logger.Debug("Origin member not found, using document start", "class", className, "member", memberName)
	return loc, nil
}

// CloseDocument forgets an open document.
func (e *Engine) CloseDocument(ctx context.Context, u uri.URI) {
	e.deps.Store.Close(u)
	if e.opts.Closer != nil {
		e.opts.Closer.CloseDocument(ctx, u)
	}
}

// Invalidate drops the cached annotations of a class.
func (e *Engine) Invalidate(className, reason string) bool {
	return e.deps.Builder.Invalidate(className, reason)
}

// InvalidateDocument drops the cached annotations of the class doc declares.
func (e *Engine) InvalidateDocument(doc *document.Document, reason string) bool {
	className := doc.ClassName()
	if className == "" {
		className = e.deps.Locator.ClassForURI(doc.URI)
	}
	if className == "" {
		return false
	}
	return e.Invalidate(className, reason)
}

// InvalidateAll drops every cached class.
func (e *Engine) InvalidateAll(reason string) int {
	return e.deps.Builder.InvalidateAll(reason)
}
