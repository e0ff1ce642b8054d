package testutil

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"clslens/internal/remote"
)

func TestWorkspace(t *testing.T) {
	ws := NewWorkspace(t, map[string]string{"Demo.Child": ChildClass})
	data, err := os.ReadFile(ws.ClassPath("Demo.Child"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != ChildClass {
		t.Error("class text mismatch")
	}
}

func TestFakeQuerier(t *testing.T) {
	q := &FakeQuerier{
		Results: ChildResults(),
		Errors:  map[string]error{"broken": errors.New("boom")},
	}
	rs, err := q.Query(context.Background(), DevServer, remote.Request{Name: "origins"})
	if err != nil || rs.Len() != 2 {
		t.Fatalf("origins = %v, %v", rs, err)
	}
	if _, err := q.Query(context.Background(), DevServer, remote.Request{Name: "broken"}); err == nil {
		t.Error("expected error")
	}
	rs, _ = q.Query(context.Background(), DevServer, remote.Request{Name: "unknown"})
	if rs.Len() != 0 {
		t.Error("unknown statements return no rows")
	}
	if q.Calls("origins") != 1 || len(q.Requests()) != 3 {
		t.Errorf("calls = %d, requests = %d", q.Calls("origins"), len(q.Requests()))
	}
}

func TestFakeConnections(t *testing.T) {
	d, err := FakeConnections{}.Resolve(context.Background(), "")
	if err != nil || d.Name != "dev" {
		t.Errorf("default = %v, %v", d, err)
	}
	if _, err := (FakeConnections{Err: errors.New("none")}).Resolve(context.Background(), ""); err == nil {
		t.Error("expected error")
	}
}

func TestNormalizeRoot(t *testing.T) {
	got := string(NormalizeRoot([]byte("file:///tmp/ws/src/A.cls and /tmp/ws"), "/tmp/ws"))
	if got != "file://$ROOT/src/A.cls and $ROOT" {
		t.Errorf("got %q", got)
	}
}

func TestUnifiedDiff(t *testing.T) {
	d := unifiedDiff("a\nb\n", "a\nc\n", "x.golden")
	if !strings.Contains(d, "-b") || !strings.Contains(d, "+c") {
		t.Errorf("diff = %q", d)
	}
}
