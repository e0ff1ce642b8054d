package symbols

import (
	"context"
	"log/slog"

	"clslens/internal/document"

	"go.lsp.dev/protocol"
)

// Provider returns the symbol tree of a document.
type Provider interface {
	DocumentSymbols(ctx context.Context, doc *document.Document) ([]protocol.DocumentSymbol, error)
	// Precise reports whether selection ranges point at declaration lines.
	Precise() bool
}

// Result is a symbol tree with the anchor strategy that fits its provider.
type Result struct {
	Symbols  []protocol.DocumentSymbol
	Strategy AnchorStrategy
	Source   string
}

// ChainProvider asks the precise provider when it is available and falls
// back to the outline provider otherwise.
type ChainProvider struct {
	primary          Provider
	fallback         Provider
	docCommentPrefix string
	logger           *slog.Logger
}

// NewChainProvider creates a chain. primary may be nil.
func NewChainProvider(primary, fallback Provider, docCommentPrefix string, logger *slog.Logger) *ChainProvider {
	return &ChainProvider{
		primary:          primary,
		fallback:         fallback,
		docCommentPrefix: docCommentPrefix,
		logger:           logger,
	}
}

// Precise reports whether the primary provider is ready.
func (c *ChainProvider) Precise() bool {
	return c.primary != nil && c.primary.Precise()
}

// DocumentSymbols implements Provider.
func (c *ChainProvider) DocumentSymbols(ctx context.Context, doc *document.Document) ([]protocol.DocumentSymbol, error) {
	res, err := c.Resolve(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.Symbols, nil
}

// Resolve returns the symbols and the strategy to anchor them with. The
// strategy follows the provider that actually answered.
func (c *ChainProvider) Resolve(ctx context.Context, doc *document.Document) (Result, error) {
	if c.Precise() {
		syms, err := c.primary.DocumentSymbols(ctx, doc)
		switch {
		case err != nil:
			c.logger.Warn("Precise symbol provider failed, using outline",
				"uri", doc.URI,
				"error", err.Error(),
			)
		case len(syms) > 0:
			return Result{Symbols: syms, Strategy: PreciseStrategy{}, Source: "languageServer"}, nil
		}
	}
	syms, err := c.fallback.DocumentSymbols(ctx, doc)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Symbols:  syms,
		Strategy: StrategyFor(false, c.docCommentPrefix),
		Source:   "outline",
	}, nil
}
