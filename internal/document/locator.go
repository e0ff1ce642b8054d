package document

import (
	"clslens/internal/paths"

	"go.lsp.dev/uri"
)

// Locator maps class names to files under a source root.
type Locator struct {
	SourceRoot string
}

// URIForClass returns the file URI of a class: A.B.C is <root>/A/B/C.cls.
func (l Locator) URIForClass(className string) uri.URI {
	return uri.File(paths.ClassFile(l.SourceRoot, className))
}

// ClassForURI is the inverse of URIForClass. It returns "" for documents
// outside the source root.
func (l Locator) ClassForURI(u uri.URI) string {
	p, ok := paths.FromURI(u)
	if !ok {
		return ""
	}
	return paths.ClassFromFile(l.SourceRoot, p)
}

// Load returns the open document for u, or reads it from disk.
func (l Locator) Load(store *Store, u uri.URI) (*Document, error) {
	if store != nil {
		if doc, ok := store.Get(u); ok {
			return doc, nil
		}
	}
	p, ok := paths.FromURI(u)
	if !ok {
		return nil, errNotFile(u)
	}
	return FromFile(p)
}

type errNotFile uri.URI

func (e errNotFile) Error() string {
	return "not a file uri: " + string(e)
}
