package testutil

import (
	"context"
	"sync"

	"clslens/internal/connections"
	"clslens/internal/remote"

	"go.lsp.dev/uri"
)

// FakeConnections resolves every document to one server.
type FakeConnections struct {
	Descriptor connections.Descriptor
	Err        error
}

// DevServer is the descriptor FakeConnections returns by default.
var DevServer = connections.Descriptor{Name: "dev", Host: "localhost", Namespace: "USER"}

// Resolve implements annotations.ConnectionSource.
func (f FakeConnections) Resolve(context.Context, uri.URI) (connections.Descriptor, error) {
	if f.Err != nil {
		return connections.Descriptor{}, f.Err
	}
	if f.Descriptor.Name == "" {
		return DevServer, nil
	}
	return f.Descriptor, nil
}

// FakeQuerier answers metadata queries by statement name.
type FakeQuerier struct {
	Results map[string]*remote.ResultSet
	Errors  map[string]error

	mu       sync.Mutex
	requests []remote.Request
}

// Query implements annotations.Querier.
func (f *FakeQuerier) Query(_ context.Context, _ connections.Descriptor, req remote.Request) (*remote.ResultSet, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := f.Errors[req.Name]; err != nil {
		return nil, err
	}
	if rs, ok := f.Results[req.Name]; ok {
		return rs, nil
	}
	return &remote.ResultSet{}, nil
}

// Calls counts the queries sent under name.
func (f *FakeQuerier) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Name == name {
			n++
		}
	}
	return n
}

// Requests returns the queries sent so far.
func (f *FakeQuerier) Requests() []remote.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Request(nil), f.requests...)
}

// ChildResults are the rows the metadata service reports for ChildClass.
func ChildResults() map[string]*remote.ResultSet {
	return map[string]*remote.ResultSet{
		"origins": {Rows: []remote.Row{
			{"Parent": " DEMO.BASE", "Name": " RUN", "Origin": "Demo.Base", "MemberType": "method", "MemberName": "Run"},
			{"Parent": " DEMO.BASE", "Name": " %SAVE", "Origin": "%Library.Persistent", "MemberType": "method", "MemberName": "%Save"},
		}},
		"crossrefs": {Rows: []remote.Row{
			{"MemberName": " RUN", "XrefType": "Overridden", "xCount": "2"},
			{"MemberName": " NAME", "XrefType": "Xref", "xCount": 7},
		}},
		"callsites": {Rows: []remote.Row{
			{"CalledByKey1": "Demo.Caller", "CalledByKey2": "Go", "LineNumber": 3},
		}},
	}
}
