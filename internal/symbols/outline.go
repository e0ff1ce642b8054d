package symbols

import (
	"context"
	"regexp"
	"strings"

	"clslens/internal/document"

	"go.lsp.dev/protocol"
)

var memberPattern = regexp.MustCompile(`(?i)^(ClassMethod|Method|Property|Relationship|Parameter|Query|Index|Trigger|ForeignKey|Projection|XData|Storage)\s+("[^"]+"|%?\w+)`)

var memberKinds = map[string]protocol.SymbolKind{
	"classmethod":  protocol.SymbolKindMethod,
	"method":       protocol.SymbolKindMethod,
	"property":     protocol.SymbolKindProperty,
	"relationship": protocol.SymbolKindProperty,
	"parameter":    protocol.SymbolKindConstant,
	"query":        protocol.SymbolKindFunction,
	"index":        protocol.SymbolKindKey,
	"trigger":      protocol.SymbolKindEvent,
	"foreignkey":   protocol.SymbolKindField,
	"projection":   protocol.SymbolKindInterface,
	"xdata":        protocol.SymbolKindStruct,
	"storage":      protocol.SymbolKindStruct,
}

// OutlineProvider parses member declarations out of the class text. Member
// ranges start at the doc comment above the declaration, so it is paired with
// CommentSkipStrategy.
type OutlineProvider struct {
	DocCommentPrefix string
}

// Precise implements Provider.
func (OutlineProvider) Precise() bool { return false }

// DocumentSymbols implements Provider. Documents without a class declaration
// have no symbols.
func (p OutlineProvider) DocumentSymbols(ctx context.Context, doc *document.Document) ([]protocol.DocumentSymbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	className, classLine := doc.ClassDeclaration()
	if classLine < 0 {
		return nil, nil
	}
	prefix := p.DocCommentPrefix
	if prefix == "" {
		prefix = DefaultDocCommentPrefix
	}

	last := uint32(0)
	if n := doc.LineCount(); n > 0 {
		last = uint32(n - 1)
	}
	nameStart := uint32(strings.Index(doc.LineAt(classLine), className))
	root := protocol.DocumentSymbol{
		Name:   className,
		Detail: "Class",
		Kind:   protocol.SymbolKindClass,
		Range:  lineRange(uint32(classLine), last, doc),
		SelectionRange: protocol.Range{
			Start: protocol.Position{Line: uint32(classLine), Character: nameStart},
			End:   protocol.Position{Line: uint32(classLine), Character: nameStart + uint32(len(className))},
		},
	}

	inComment := false
	for i := classLine + 1; i < doc.LineCount(); i++ {
		line := doc.LineAt(i)
		if inComment {
			if strings.Contains(line, "*/") {
				inComment = false
			}
			continue
		}
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "/*") {
			inComment = !strings.Contains(trimmed[2:], "*/")
			continue
		}
		m := memberPattern.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		keyword := line[m[2]:m[3]]
		name := line[m[4]:m[5]]

		start := i
		for start > classLine+1 && strings.HasPrefix(doc.LineAt(start-1), prefix) {
			start--
		}
		root.Children = append(root.Children, protocol.DocumentSymbol{
			Name:   name,
			Detail: keyword,
			Kind:   memberKinds[strings.ToLower(keyword)],
			Range:  lineRange(uint32(start), uint32(i), doc),
			SelectionRange: protocol.Range{
				Start: protocol.Position{Line: uint32(i), Character: uint32(m[4])},
				End:   protocol.Position{Line: uint32(i), Character: uint32(m[5])},
			},
		})
	}
	closeRanges(root.Children, last, doc)
	return []protocol.DocumentSymbol{root}, nil
}

// closeRanges extends each member range to the line before the next member.
func closeRanges(members []protocol.DocumentSymbol, last uint32, doc *document.Document) {
	for i := range members {
		end := last
		if i+1 < len(members) && members[i+1].Range.Start.Line > 0 {
			end = members[i+1].Range.Start.Line - 1
		}
		if end < members[i].SelectionRange.Start.Line {
			end = members[i].SelectionRange.Start.Line
		}
		members[i].Range = lineRange(members[i].Range.Start.Line, end, doc)
	}
}

func lineRange(start, end uint32, doc *document.Document) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: start},
		End:   protocol.Position{Line: end, Character: uint32(len(doc.LineAt(int(end))))},
	}
}
