package render

import (
	"testing"

	"clslens/internal/annotations"
	"clslens/internal/symbols"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

var (
	baseURI  = uri.File("/src/Demo/Base.cls")
	childURI = uri.File("/src/Demo/Child.cls")
)

func sampleMap() annotations.MemberMap {
	return annotations.MemberMap{
		" FOO": {LocationURI: baseURI, OriginClassName: "Demo.Base", OriginMemberName: "Foo", OverrideCount: 2, XrefCount: 5},
		" BAR": {LocationURI: childURI, XrefCount: 1},
		" BAZ": {LocationURI: baseURI, OriginClassName: "Demo.Base", OriginMemberName: "Baz"},
		" NIL": {LocationURI: childURI},
	}
}

func TestRender(t *testing.T) {
	anchors := []symbols.Anchor{
		{Name: "Foo", Line: 6},
		{Name: "Bar", Line: 11},
		{Name: "Baz", Line: 14},
		{Name: "Nil", Line: 16},
		{Name: "Missing", Line: 20},
	}
	markers := Render(anchors, sampleMap())
	require.Len(t, markers, 5)

	assert.Equal(t, KindOverride, markers[0].Kind)
	assert.Equal(t, &OverridePayload{ClassName: "Demo.Base", MemberName: "Foo"}, markers[0].Override)
	assert.Equal(t, KindOverridden, markers[1].Kind)
	assert.Equal(t, "Overridden 2", markers[1].Title())
	assert.Equal(t, &ReferencePayload{URI: baseURI, Line: 6, Column: 1}, markers[1].Reference)
	assert.Equal(t, KindXref, markers[2].Kind)
	assert.Equal(t, "Xref 5", markers[2].Title())
	for _, m := range markers[:3] {
		assert.Equal(t, uint32(6), m.Line, "markers share the anchor line")
	}

	assert.Equal(t, KindXref, markers[3].Kind)
	assert.Equal(t, childURI, markers[3].Reference.URI)
	assert.Equal(t, uint32(11), markers[3].Line)

	assert.Equal(t, KindOverride, markers[4].Kind)
	assert.Equal(t, "Override", markers[4].Title())
	assert.Nil(t, markers[4].Reference)
}

func TestRender_CaseAndQuotes(t *testing.T) {
	m := annotations.MemberMap{" ODD NAME": {LocationURI: childURI, XrefCount: 3}}
	markers := Render([]symbols.Anchor{{Name: `"Odd Name"`, Line: 2}}, m)
	require.Len(t, markers, 1)
	assert.Equal(t, 3, markers[0].Count)
}

func TestRender_Empty(t *testing.T) {
	assert.Empty(t, Render([]symbols.Anchor{{Name: "Foo", Line: 1}}, annotations.MemberMap{}))
	assert.Empty(t, Render(nil, sampleMap()))
}

func TestCodeLenses(t *testing.T) {
	markers := Render([]symbols.Anchor{{Name: "Foo", Line: 6}}, sampleMap())
	lenses := CodeLenses(markers, LensOptions{})
	require.Len(t, lenses, 3)

	for _, l := range lenses {
		assert.Equal(t, protocol.Range{
			Start: protocol.Position{Line: 6},
			End:   protocol.Position{Line: 6, Character: 80},
		}, l.Range)
	}
	assert.Equal(t, "Override", lenses[0].Command.Title)
	assert.Equal(t, OverrideCommand, lenses[0].Command.Command)
	assert.Equal(t, []interface{}{"Demo.Base", "Foo"}, lenses[0].Command.Arguments)

	assert.Equal(t, DefaultReferencesCommand, lenses[1].Command.Command)
	assert.Equal(t, []interface{}{baseURI, protocol.Position{Line: 6, Character: 1}}, lenses[1].Command.Arguments)

	custom := CodeLenses(markers, LensOptions{ReferencesCommand: "editor.action.showReferences", Width: 40})
	assert.Equal(t, "editor.action.showReferences", custom[2].Command.Command)
	assert.Equal(t, uint32(40), custom[2].Range.End.Character)
}
