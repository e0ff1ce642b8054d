// Package symbols turns a document's symbol tree into member anchor lines.
package symbols

import (
	"strings"

	"clslens/internal/document"

	"go.lsp.dev/protocol"
)

// DefaultDocCommentPrefix marks class documentation lines.
const DefaultDocCommentPrefix = "///"

// Anchor is the line a member's markers attach to.
type Anchor struct {
	Name string
	Line uint32
}

// AnchorStrategy picks the anchor line of a member symbol.
type AnchorStrategy interface {
	Name() string
	AnchorLine(sym protocol.DocumentSymbol, doc *document.Document) uint32
}

// PreciseStrategy trusts the selection range of a symbol. Use it only with a
// provider whose selection ranges sit on the declaration line.
type PreciseStrategy struct{}

func (PreciseStrategy) Name() string { return "precise" }

func (PreciseStrategy) AnchorLine(sym protocol.DocumentSymbol, _ *document.Document) uint32 {
	return sym.SelectionRange.Start.Line
}

// CommentSkipStrategy scans forward from the start of a symbol's range past
// the doc-comment lines above the declaration.
type CommentSkipStrategy struct {
	Prefix string
}

func (CommentSkipStrategy) Name() string { return "comment-skip" }

func (s CommentSkipStrategy) AnchorLine(sym protocol.DocumentSymbol, doc *document.Document) uint32 {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultDocCommentPrefix
	}
	start := int(sym.Range.Start.Line)
	anchor := start
	for l := start; l < doc.LineCount(); l++ {
		anchor = l
		if !strings.HasPrefix(doc.LineAt(l), prefix) {
			break
		}
	}
	return uint32(anchor)
}

// StrategyFor selects the strategy for one render or lookup.
func StrategyFor(precise bool, docCommentPrefix string) AnchorStrategy {
	if precise {
		return PreciseStrategy{}
	}
	return CommentSkipStrategy{Prefix: docCommentPrefix}
}

// Members returns the member symbols of a class document: the children of
// the first root symbol.
func Members(tree []protocol.DocumentSymbol) []protocol.DocumentSymbol {
	if len(tree) == 0 {
		return nil
	}
	return tree[0].Children
}

// Anchors computes the anchor of every member, in document order.
func Anchors(members []protocol.DocumentSymbol, doc *document.Document, strategy AnchorStrategy) []Anchor {
	out := make([]Anchor, 0, len(members))
	for _, m := range members {
		out = append(out, Anchor{Name: m.Name, Line: strategy.AnchorLine(m, doc)})
	}
	return out
}

// MemberAt returns the member anchored at line.
func MemberAt(members []protocol.DocumentSymbol, doc *document.Document, strategy AnchorStrategy, line uint32) (protocol.DocumentSymbol, bool) {
	for _, m := range members {
		if strategy.AnchorLine(m, doc) == line {
			return m, true
		}
	}
	return protocol.DocumentSymbol{}, false
}
