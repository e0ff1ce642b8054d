package lens

import (
	"context"
	"fmt"

	"clslens/internal/annotations"
	"clslens/internal/document"
	"clslens/internal/render"
	"clslens/internal/symbols"
)

// MemberReport is one member row of a Report.
type MemberReport struct {
	Member        string `json:"member" yaml:"member"`
	Key           string `json:"key" yaml:"key"`
	AnchorLine    uint32 `json:"anchorLine" yaml:"anchorLine"`
	OriginClass   string `json:"originClass,omitempty" yaml:"originClass,omitempty"`
	OriginMember  string `json:"originMember,omitempty" yaml:"originMember,omitempty"`
	MemberKind    string `json:"memberKind,omitempty" yaml:"memberKind,omitempty"`
	OverrideCount int    `json:"overrideCount" yaml:"overrideCount"`
	XrefCount     int    `json:"xrefCount" yaml:"xrefCount"`
	Annotated     bool   `json:"annotated" yaml:"annotated"`
}

// Report is the full annotation picture of one document.
type Report struct {
	Class          string          `json:"class" yaml:"class"`
	SymbolSource   string          `json:"symbolSource" yaml:"symbolSource"`
	AnchorStrategy string          `json:"anchorStrategy" yaml:"anchorStrategy"`
	Members        []MemberReport  `json:"members" yaml:"members"`
	Markers        []render.Marker `json:"markers" yaml:"-"`
}

func newReport(className string, res symbols.Result, anchors []symbols.Anchor, m annotations.MemberMap, markers []render.Marker) Report {
	r := Report{
		Class:          className,
		SymbolSource:   res.Source,
		AnchorStrategy: res.Strategy.Name(),
		Members:        make([]MemberReport, 0, len(anchors)),
		Markers:        markers,
	}
	for _, a := range anchors {
		row := MemberReport{Member: a.Name, Key: annotations.MemberKey(a.Name), AnchorLine: a.Line}
		if ann, ok := m.Lookup(a.Name); ok {
			row.Annotated = true
			row.OriginClass = ann.OriginClassName
			row.OriginMember = ann.OriginMemberName
			row.MemberKind = ann.MemberKind
			row.OverrideCount = ann.OverrideCount
			row.XrefCount = ann.XrefCount
		}
		r.Members = append(r.Members, row)
	}
	return r
}

// Annotate builds the report for doc.
func (e *Engine) Annotate(ctx context.Context, doc *document.Document) (Report, error) {
	report, ok := e.prepare(ctx, doc)
	if !ok {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		return Report{}, fmt.Errorf("no class members found in %s", doc.URI)
	}
	return report, nil
}
