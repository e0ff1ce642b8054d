package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"clslens/internal/annotations"
	"clslens/internal/config"
	"clslens/internal/connections"
	"clslens/internal/document"
	"clslens/internal/lens"
	"clslens/internal/lspclient"
	"clslens/internal/metrics"
	"clslens/internal/queries"
	"clslens/internal/references"
	"clslens/internal/remote"
	"clslens/internal/render"
	"clslens/internal/symbols"
)

// appOptions controls how the components are assembled.
type appOptions struct {
	Config *config.Config
	Logger *slog.Logger
	// Stdio is set under serve, where stdin carries the protocol and no
	// password prompt is possible.
	Stdio bool
	// PasswordInput supplies passwords line by line, e.g. from stdin.
	PasswordInput io.Reader
	// Recorder receives metrics when set.
	Recorder *metrics.Recorder
}

// app holds the assembled components of one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	servers  *connections.File
	resolver *connections.Resolver
	client   *remote.Client
	catalog  queries.Catalog
	locator  document.Locator
	builder  *annotations.Builder
	lsp      *lspclient.Client
	engine   *lens.Engine
}

// newApp wires config, connections, the query client, the annotation cache,
// symbol providers and the lens engine together.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, logger := opts.Config, opts.Logger

	servers, err := connections.LoadFile(cfg.ResolvePath(cfg.Connections.File))
	if err != nil {
		return nil, fmt.Errorf("failed to load servers: %w", err)
	}

	sources := []connections.CredentialSource{connections.EnvSource{}}
	if opts.PasswordInput != nil {
		sources = append(sources, connections.NewLineSource(opts.PasswordInput))
	}
	if cfg.Connections.Interactive && !opts.Stdio {
		sources = append(sources, connections.NewPromptSource())
	}
	resolver := connections.NewResolver(servers, cfg.WorkspaceRoot, logger, sources...)

	catalog, err := queries.ForDialect(cfg.Query.Dialect)
	if err != nil {
		return nil, err
	}

	var (
		queryObserver  remote.Observer
		cacheObserver  annotations.Observer
		markerObserver lens.MarkerObserver
	)
	if opts.Recorder != nil {
		queryObserver, cacheObserver, markerObserver = opts.Recorder, opts.Recorder, opts.Recorder
	}

	client := remote.NewClient(remote.Options{
		MaxBodySize: cfg.Query.MaxBodyBytes,
		APIVersion:  cfg.Query.APIVersion,
		Timeout:     time.Duration(cfg.Query.TimeoutMs) * time.Millisecond,
		Observer:    queryObserver,
	}, logger)

	locator := document.Locator{SourceRoot: cfg.ResolvePath(cfg.SourceDir)}
	builder := annotations.NewBuilder(
		annotations.NewMemoryCache(),
		client,
		resolver,
		catalog,
		locator,
		annotations.Options{SingleFlight: cfg.Cache.SingleFlight, Observer: cacheObserver},
		logger,
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		servers:  servers,
		resolver: resolver,
		client:   client,
		catalog:  catalog,
		locator:  locator,
		builder:  builder,
	}

	var (
		primary symbols.Provider
		closer  lens.DocumentCloser
	)
	if ls := cfg.Symbols.LanguageServer; ls.Command != "" {
		a.lsp = lspclient.New(lspclient.Options{
			Command:       ls.Command,
			Args:          ls.Args,
			LanguageID:    ls.LanguageID,
			WorkspaceRoot: cfg.WorkspaceRoot,
			Timeout:       time.Duration(ls.TimeoutMs) * time.Millisecond,
		}, logger)
		if err := a.lsp.Start(ctx); err != nil {
			logger.Warn("Language server not available, using outline symbols", "command", ls.Command, "error", err.Error())
		}
		primary, closer = a.lsp, a.lsp
	}

	chain := symbols.NewChainProvider(primary, symbols.OutlineProvider{DocCommentPrefix: cfg.Symbols.DocCommentPrefix},
		cfg.Symbols.DocCommentPrefix, logger)
	a.engine = lens.NewEngine(lens.Deps{
		Store:   document.NewStore(),
		Locator: locator,
		Builder: builder,
		Finder:  references.NewFinder(resolver, client, catalog, locator, chain, logger),
		Symbols: chain,
	}, lens.Options{
		LanguageIDs: cfg.Lens.LanguageIDs,
		Lens: render.LensOptions{
			ReferencesCommand: cfg.Lens.ReferencesCommand,
			Width:             uint32(cfg.Lens.MarkerWidth),
		},
		Observer: markerObserver,
		Closer:   closer,
	}, logger)

	return a, nil
}

// Close stops the external language server, if any.
func (a *app) Close(ctx context.Context) error {
	if a.lsp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return a.lsp.Close(ctx)
}
