package annotations

import (
	"context"
	"errors"
	"log/slog"

	"clslens/internal/connections"
	"clslens/internal/queries"
	"clslens/internal/remote"

	"go.lsp.dev/uri"
	"golang.org/x/sync/singleflight"
)

// Querier runs one metadata query.
type Querier interface {
	Query(ctx context.Context, conn connections.Descriptor, req remote.Request) (*remote.ResultSet, error)
}

// ConnectionSource resolves the server for a document.
type ConnectionSource interface {
	Resolve(ctx context.Context, docURI uri.URI) (connections.Descriptor, error)
}

// Observer receives cache events.
type Observer interface {
	ObserveCacheLookup(hit bool)
	ObserveInvalidation(reason string, entries int)
}

// Options configures a Builder.
type Options struct {
	// SingleFlight coalesces concurrent resolves of the same class into one
	// pair of queries.
	SingleFlight bool
	Observer     Observer
}

// Builder resolves the MemberMap of a class, querying the metadata service
// on a cache miss.
type Builder struct {
	cache   Cache
	querier Querier
	conns   ConnectionSource
	catalog queries.Catalog
	locator ClassLocator
	opts    Options
	group   singleflight.Group
	logger  *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(cache Cache, querier Querier, conns ConnectionSource, catalog queries.Catalog, locator ClassLocator, opts Options, logger *slog.Logger) *Builder {
	return &Builder{
		cache:   cache,
		querier: querier,
		conns:   conns,
		catalog: catalog,
		locator: locator,
		opts:    opts,
		logger:  logger,
	}
}

// Cache returns the underlying cache.
func (b *Builder) Cache() Cache {
	return b.cache
}

// Resolve returns the MemberMap for className. A cached map is returned as
// is, even an empty one from an earlier failed load. On a miss both queries
// run; a failure in either is logged and contributes nothing, and the result
// is committed regardless.
//
// The queries are detached from ctx cancellation: once issued they run to
// completion, bounded by the client timeout.
func (b *Builder) Resolve(ctx context.Context, className string, docURI uri.URI) MemberMap {
	if m, ok := b.Cached(className); ok {
		b.observeLookup(true)
		return m
	}
	key := ClassKey(className)
	b.observeLookup(false)

	if !b.opts.SingleFlight {
		return b.cache.PutIfAbsent(key, b.load(context.WithoutCancel(ctx), className, docURI))
	}

	v, _, shared := b.group.Do(key, func() (interface{}, error) {
		if m, ok := b.Cached(className); ok {
			return m, nil
		}
		return b.cache.PutIfAbsent(key, b.load(context.WithoutCancel(ctx), className, docURI)), nil
	})
	if shared {
		b.logger.Debug("Shared in-flight resolve", "class", className)
	}
	return v.(MemberMap)
}

// Cached returns the committed map without querying.
func (b *Builder) Cached(className string) (MemberMap, bool) {
	return b.cache.Get(ClassKey(className))
}

// Invalidate drops the entry for className so the next Resolve queries again.
func (b *Builder) Invalidate(className, reason string) bool {
	removed := b.cache.Invalidate(ClassKey(className))
	if removed {
		b.logger.Info("Invalidated class annotations", "class", className, "reason", reason)
		if b.opts.Observer != nil {
			b.opts.Observer.ObserveInvalidation(reason, 1)
		}
	}
	return removed
}

// InvalidateAll drops every entry and returns how many were removed.
func (b *Builder) InvalidateAll(reason string) int {
	n := b.cache.InvalidateAll()
	b.logger.Info("Invalidated all annotations", "entries", n, "reason", reason)
	if b.opts.Observer != nil && n > 0 {
		b.opts.Observer.ObserveInvalidation(reason, n)
	}
	return n
}

func (b *Builder) load(ctx context.Context, className string, docURI uri.URI) MemberMap {
	conn, err := b.conns.Resolve(ctx, docURI)
	if err != nil {
		b.logger.Warn("No connection for class, caching empty annotations",
			"class", className,
			"error", err.Error(),
		)
		return MemberMap{}
	}

	b.logger.Info("Loading origins from server", "class", className, "server", conn.Name)

	var origins []remote.OriginRow
	if rs, err := b.querier.Query(ctx, conn, b.catalog.Origins(className)); err != nil {
		b.logQueryError("Origins failed to load", className, conn, err)
	} else {
		var skipped int
		origins, skipped = remote.DecodeOriginRows(rs)
		b.logSkipped(queries.NameOrigins, className, skipped)
	}

	var xrefs []remote.CrossRefRow
	if rs, err := b.querier.Query(ctx, conn, b.catalog.CrossRefs(conn.Namespace, className)); err != nil {
		b.logQueryError("Cross-references failed to load", className, conn, err)
	} else {
		var skipped int
		xrefs, skipped = remote.DecodeCrossRefRows(rs)
		b.logSkipped(queries.NameCrossRefs, className, skipped)
	}

	m := Merge(origins, xrefs, MergeContext{DocumentURI: docURI, Locator: b.locator})
	b.logger.Debug("Resolved class annotations",
		"class", className,
		"origins", len(origins),
		"crossrefs", len(xrefs),
		"members", len(m),
	)
	return m
}

// logQueryError logs a failed query. Rejected credentials get their own
// message since no later query on the server can succeed either.
func (b *Builder) logQueryError(msg, className string, conn connections.Descriptor, err error) {
	var qe *remote.QueryError
	if errors.As(err, &qe) && qe.Unauthorized() {
		b.logger.Warn("Server rejected credentials",
			"class", className,
			"server", conn.Name,
			"user", conn.User(),
			"hint", "check "+connections.EnvVarFor(conn.Name)+" or the password in servers.toml",
		)
		return
	}
	b.logger.Warn(msg, "class", className, "error", err.Error())
}

func (b *Builder) logSkipped(query, className string, skipped int) {
	if skipped > 0 {
		b.logger.Debug("Skipped malformed rows", "query", query, "class", className, "rows", skipped)
	}
}

func (b *Builder) observeLookup(hit bool) {
	if b.opts.Observer != nil {
		b.opts.Observer.ObserveCacheLookup(hit)
	}
}
