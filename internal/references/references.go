// Package references finds the call-sites of the member under the cursor.
package references

import (
	"context"
	"log/slog"

	"clslens/internal/annotations"
	"clslens/internal/document"
	"clslens/internal/queries"
	"clslens/internal/remote"
	"clslens/internal/symbols"

	"go.lsp.dev/protocol"
)

// Finder runs the call-site query for a member.
type Finder struct {
	conns   annotations.ConnectionSource
	querier annotations.Querier
	catalog queries.Catalog
	locator annotations.ClassLocator
	symbols *symbols.ChainProvider
	logger  *slog.Logger
}

// NewFinder creates a Finder.
func NewFinder(conns annotations.ConnectionSource, querier annotations.Querier, catalog queries.Catalog,
	locator annotations.ClassLocator, provider *symbols.ChainProvider, logger *slog.Logger) *Finder {
	return &Finder{
		conns:   conns,
		querier: querier,
		catalog: catalog,
		locator: locator,
		symbols: provider,
		logger:  logger,
	}
}

// FindReferences returns the call-sites of the member anchored at pos.Line.
// Only the anchor line of a member matches; a cursor anywhere else in the
// member body finds nothing. Every failure yields an empty result.
func (f *Finder) FindReferences(ctx context.Context, doc *document.Document, pos protocol.Position) []protocol.Location {
	className := doc.ClassName()
	if className == "" {
		f.logger.Debug("No class declaration", "uri", doc.URI)
		return nil
	}

	res, err := f.symbols.Resolve(ctx, doc)
	if err != nil || ctx.Err() != nil {
		return nil
	}
	members := symbols.Members(res.Symbols)
	if len(members) == 0 {
		return nil
	}

	member, ok := symbols.MemberAt(members, doc, res.Strategy, pos.Line)
	if !ok {
		f.logger.Debug("Cursor is not on a member anchor line",
			"class", className,
			"line", pos.Line,
			"strategy", res.Strategy.Name(),
		)
		return nil
	}
	return f.CallSites(ctx, doc, className, member.Name)
}

// CallSites runs the call-site query for className.memberName. The query is
// not cancelled once issued.
func (f *Finder) CallSites(ctx context.Context, doc *document.Document, className, memberName string) []protocol.Location {
	ctx = context.WithoutCancel(ctx)
	conn, err := f.conns.Resolve(ctx, doc.URI)
	if err != nil {
		f.logger.Warn("No connection for reference lookup", "class", className, "error", err.Error())
		return nil
	}

	f.logger.Debug("Looking up call-sites", "class", className, "member", memberName, "server", conn.Name)
	rs, err := f.querier.Query(ctx, conn, f.catalog.CallSites(conn.Namespace, className, memberName))
	if err != nil {
		f.logger.Warn("Call-sites failed to load",
			"class", className,
			"member", memberName,
			"error", err.Error(),
		)
		return nil
	}
	rows, skipped := remote.DecodeCallSiteRows(rs)
	if skipped > 0 {
		f.logger.Debug("Skipped malformed rows", "query", queries.NameCallSites, "rows", skipped)
	}

	out := make([]protocol.Location, 0, len(rows))
	for _, row := range rows {
		line := row.Line - 1
		if line < 0 {
			line = 0
		}
		p := protocol.Position{Line: uint32(line), Character: 1}
		out = append(out, protocol.Location{
			URI:   protocol.DocumentURI(f.locator.URIForClass(row.CallingClass)),
			Range: protocol.Range{Start: p, End: p},
		})
	}
	return out
}
