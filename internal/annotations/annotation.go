// Package annotations builds and caches, per class, the map from member name
// to its origin and cross-reference counts.
package annotations

import (
	"clslens/internal/names"
	"clslens/internal/remote"

	"go.lsp.dev/uri"
)

// MemberAnnotation is what the metadata service knows about one member.
type MemberAnnotation struct {
	// LocationURI is the origin class document, or the annotated document
	// itself when no origin is known.
	LocationURI uri.URI `json:"locationUri" yaml:"locationUri"`

	// OriginClassName is empty when the member overrides nothing.
	OriginClassName  string `json:"originClassName,omitempty" yaml:"originClassName,omitempty"`
	OriginMemberName string `json:"originMemberName,omitempty" yaml:"originMemberName,omitempty"`
	MemberKind       string `json:"memberKind,omitempty" yaml:"memberKind,omitempty"`

	OverrideCount int `json:"overrideCount" yaml:"overrideCount"`
	XrefCount     int `json:"xrefCount" yaml:"xrefCount"`
}

// Overrides reports whether the member overrides an ancestor's member.
func (a MemberAnnotation) Overrides() bool {
	return a.OriginClassName != ""
}

// MemberMap maps normalized member names to annotations. A committed map is
// never modified.
type MemberMap map[string]MemberAnnotation

// Lookup finds the annotation for a member name as written in a document,
// quoted or not.
func (m MemberMap) Lookup(memberName string) (MemberAnnotation, bool) {
	a, ok := m[MemberKey(memberName)]
	return a, ok
}

// MemberKey is the map key for a member name as written in a document.
func MemberKey(memberName string) string {
	return names.Normalize(names.QuoteIdentifier(memberName, names.RemoveQuotes))
}

// ClassKey is the cache key for a class name.
func ClassKey(className string) string {
	return names.Normalize(className)
}

// ClassLocator maps a class name to its document.
type ClassLocator interface {
	URIForClass(className string) uri.URI
}

// MergeContext supplies the locations used by Merge.
type MergeContext struct {
	// DocumentURI is used for members only the count query knows about.
	DocumentURI uri.URI
	Locator     ClassLocator
}

// Merge combines origin rows and cross-reference rows into a new map.
//
// For origin rows the first row per member wins; later rows for the same
// member, e.g. the same name reported under another member kind, are
// ignored. Cross-reference rows then refine existing entries by setting only
// the matching count, or add an entry with no origin located at the
// annotated document.
func Merge(origins []remote.OriginRow, xrefs []remote.CrossRefRow, mc MergeContext) MemberMap {
	m := make(MemberMap, len(origins)+len(xrefs))

	for _, row := range origins {
		key := names.NormalizeKey(row.Key)
		if _, ok := m[key]; ok {
			continue
		}
		loc := mc.DocumentURI
		if mc.Locator != nil {
			loc = mc.Locator.URIForClass(row.Origin)
		}
		m[key] = MemberAnnotation{
			LocationURI:      loc,
			OriginClassName:  row.Origin,
			OriginMemberName: row.MemberName,
			MemberKind:       row.MemberType,
		}
	}

	for _, row := range xrefs {
		key := names.NormalizeKey(row.Key)
		a, ok := m[key]
		if !ok {
			a = MemberAnnotation{LocationURI: mc.DocumentURI}
		}
		if row.Relation == remote.RelationOverridden {
			a.OverrideCount = row.Count
		} else {
			a.XrefCount = row.Count
		}
		m[key] = a
	}

	return m
}
