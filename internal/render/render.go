// Package render joins a class's member annotations with member anchors and
// produces markers and code lenses.
package render

import (
	"fmt"

	"clslens/internal/annotations"
	"clslens/internal/symbols"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Kind identifies a marker.
type Kind string

const (
	KindOverride   Kind = "override"
	KindOverridden Kind = "overridden"
	KindXref       Kind = "xref"
)

// Command ids attached to code lenses.
const (
	OverrideCommand          = "clslens.openOverride"
	DefaultReferencesCommand = "references-view.findReferences"
	DefaultWidth             = 80
)

// OverridePayload identifies the ancestor member a member overrides.
type OverridePayload struct {
	ClassName  string `json:"className"`
	MemberName string `json:"memberName"`
}

// ReferencePayload is the location a reference search starts from.
type ReferencePayload struct {
	URI    uri.URI `json:"uri"`
	Line   uint32  `json:"line"`
	Column uint32  `json:"column"`
}

// Marker is one annotation attached to a member's anchor line. Exactly one of
// Override and Reference is set.
type Marker struct {
	Kind      Kind              `json:"kind"`
	Member    string            `json:"member"`
	Line      uint32            `json:"line"`
	Count     int               `json:"count,omitempty"`
	Override  *OverridePayload  `json:"override,omitempty"`
	Reference *ReferencePayload `json:"reference,omitempty"`
}

// Title is the text shown for the marker.
func (m Marker) Title() string {
	switch m.Kind {
	case KindOverride:
		return "Override"
	case KindOverridden:
		return fmt.Sprintf("Overridden %d", m.Count)
	default:
		return fmt.Sprintf("Xref %d", m.Count)
	}
}

// Render emits markers for each anchored member in order: Override when the
// member has an origin, then Overridden and Xref for nonzero counts. Members
// without an annotation produce nothing.
func Render(anchors []symbols.Anchor, members annotations.MemberMap) []Marker {
	var out []Marker
	for _, a := range anchors {
		ann, ok := members.Lookup(a.Name)
		if !ok {
			continue
		}
		if ann.Overrides() {
			out = append(out, Marker{
				Kind:   KindOverride,
				Member: a.Name,
				Line:   a.Line,
				Override: &OverridePayload{
					ClassName:  ann.OriginClassName,
					MemberName: ann.OriginMemberName,
				},
			})
		}
		if ann.OverrideCount != 0 {
			out = append(out, referenceMarker(KindOverridden, a, ann, ann.OverrideCount))
		}
		if ann.XrefCount != 0 {
			out = append(out, referenceMarker(KindXref, a, ann, ann.XrefCount))
		}
	}
	return out
}

func referenceMarker(kind Kind, a symbols.Anchor, ann annotations.MemberAnnotation, count int) Marker {
	return Marker{
		Kind:   kind,
		Member: a.Name,
		Line:   a.Line,
		Count:  count,
		Reference: &ReferencePayload{
			URI:    ann.LocationURI,
			Line:   a.Line,
			Column: 1,
		},
	}
}

// LensOptions controls code lens conversion.
type LensOptions struct {
	ReferencesCommand string
	Width             uint32
}

// CodeLenses converts markers to code lenses spanning (line,0)-(line,width).
func CodeLenses(markers []Marker, opts LensOptions) []protocol.CodeLens {
	if opts.ReferencesCommand == "" {
		opts.ReferencesCommand = DefaultReferencesCommand
	}
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	out := make([]protocol.CodeLens, 0, len(markers))
	for _, m := range markers {
		lens := protocol.CodeLens{
			Range: protocol.Range{
				Start: protocol.Position{Line: m.Line},
				End:   protocol.Position{Line: m.Line, Character: opts.Width},
			},
		}
		switch {
		case m.Override != nil:
			lens.Command = &protocol.Command{
				Title:     m.Title(),
				Command:   OverrideCommand,
				Arguments: []interface{}{m.Override.ClassName, m.Override.MemberName},
			}
		case m.Reference != nil:
			lens.Command = &protocol.Command{
				Title:   m.Title(),
				Command: opts.ReferencesCommand,
				Arguments: []interface{}{
					m.Reference.URI,
					protocol.Position{Line: m.Reference.Line, Character: m.Reference.Column},
				},
			}
		}
		out = append(out, lens)
	}
	return out
}
