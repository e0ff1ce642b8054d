package document

import (
	"fmt"
	"sync"

	"go.lsp.dev/uri"
)

// Store holds the documents currently open in the editor.
type Store struct {
	mu   sync.RWMutex
	docs map[uri.URI]*Document
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[uri.URI]*Document)}
}

// Open records a newly opened document.
func (s *Store) Open(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.URI] = doc
}

// Update applies changes to an open document.
func (s *Store) Update(u uri.URI, version int32, changes []Change) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[u]
	if !ok {
		return nil, fmt.Errorf("document %s is not open", u)
	}
	next, err := doc.Apply(version, changes)
	if err != nil {
		return nil, err
	}
	s.docs[u] = next
	return next, nil
}

// Close forgets a document.
func (s *Store) Close(u uri.URI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, u)
}

// Get returns an open document.
func (s *Store) Get(u uri.URI) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[u]
	return doc, ok
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
