package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clslens/internal/slogutil"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventCreate, "create"},
		{EventModify, "modify"},
		{EventDelete, "delete"},
		{EventRename, "rename"},
		{EventType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.eventType.String()
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if !config.Enabled {
		t.Error("Enabled should be true by default")
	}
	if config.DebounceMs != 500 {
		t.Errorf("DebounceMs = %d, want 500", config.DebounceMs)
	}
	if len(config.IgnorePatterns) == 0 {
		t.Error("IgnorePatterns should not be empty")
	}
}

func TestWatcherIsIgnored(t *testing.T) {
	root := t.TempDir()
	config := Config{
		IgnorePatterns: []string{
			"*.tmp",
			".git/**",
			"generated/**",
		},
	}

	w := New(root, config, slogutil.NewDiscardLogger(), nil)

	tests := []struct {
		path    string
		ignored bool
	}{
		{filepath.Join(root, "Demo", "Child.cls.tmp"), true},
		{filepath.Join(root, ".git", "config"), true},
		{filepath.Join(root, "generated"), true},
		{filepath.Join(root, "generated", "Demo", "Gen.cls"), true},
		{filepath.Join(root, "Demo", "Child.cls"), false},
		{filepath.Join(root, "generatedTwo", "A.cls"), false},
	}

	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			got := w.IsIgnored(tt.path)
			if got != tt.ignored {
				t.Errorf("IsIgnored(%q) = %v, want %v", tt.path, got, tt.ignored)
			}
		})
	}
}

func TestWatcherStartDisabled(t *testing.T) {
	w := New(t.TempDir(), Config{Enabled: false}, slogutil.NewDiscardLogger(), nil)
	if err := w.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if len(w.WatchedDirs()) != 0 {
		t.Errorf("WatchedDirs() = %v, want empty", w.WatchedDirs())
	}
}

func TestWatcherStartMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")
	w := New(root, DefaultConfig(), slogutil.NewDiscardLogger(), nil)
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() should fail for a missing root")
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w := New(t.TempDir(), DefaultConfig(), slogutil.NewDiscardLogger(), nil)
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) handle(classes []string, _ []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, classes)
}

func (r *recorder) classes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestWatcherReportsChangedClasses(t *testing.T) {
	root := t.TempDir()
	demo := filepath.Join(root, "Demo")
	if err := os.MkdirAll(demo, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(demo, "Child.cls"), []byte("Class Demo.Child\n{\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	config := DefaultConfig()
	config.DebounceMs = 50
	w := New(root, config, slogutil.NewDiscardLogger(), rec.handle)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	if got := w.WatchedDirs(); len(got) != 2 {
		t.Errorf("WatchedDirs() = %v, want root and Demo", got)
	}

	if err := os.WriteFile(filepath.Join(demo, "Child.cls"), []byte("Class Demo.Child\n{\n\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(demo, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return contains(rec.classes(), "Demo.Child") })

	if contains(rec.classes(), "Demo.notes") {
		t.Error("non-class files should not be reported")
	}

	// New directories are picked up.
	pkg := filepath.Join(root, "Demo", "Sub")
	if err := os.MkdirAll(pkg, 0o755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(w.WatchedDirs()) == 3 })
	if err := os.WriteFile(filepath.Join(pkg, "Leaf.cls"), []byte("Class Demo.Sub.Leaf\n{\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return contains(rec.classes(), "Demo.Sub.Leaf") })

	stats := w.Stats()
	if stats["enabled"] != true {
		t.Errorf("stats[enabled] = %v, want true", stats["enabled"])
	}
}

func TestWatcherEmitDeduplicatesClasses(t *testing.T) {
	rec := &recorder{}
	w := New(t.TempDir(), DefaultConfig(), slogutil.NewDiscardLogger(), rec.handle)
	w.emit([]Event{
		{Type: EventModify, Path: "/b/Demo/B.cls", Class: "Demo.B"},
		{Type: EventModify, Path: "/b/Demo/A.cls", Class: "Demo.A"},
		{Type: EventDelete, Path: "/c/Demo/A.cls", Class: "Demo.A"},
	})

	got := rec.classes()
	if len(got) != 2 || got[0] != "Demo.A" || got[1] != "Demo.B" {
		t.Errorf("classes = %v, want [Demo.A Demo.B]", got)
	}
	if w.Stats()["changedClasses"] != 2 {
		t.Errorf("changedClasses = %v, want 2", w.Stats()["changedClasses"])
	}
}

// BatchDebouncer tests

func TestBatchDebouncerAdd(t *testing.T) {
	var received []Event
	var mu sync.Mutex

	emit := func(events []Event) {
		mu.Lock()
		received = events
		mu.Unlock()
	}

	b := NewBatchDebouncer(50*time.Millisecond, emit)

	b.Add(Event{Type: EventCreate, Path: "a.cls"})
	b.Add(Event{Type: EventModify, Path: "b.cls"})
	b.Add(Event{Type: EventModify, Path: "a.cls"})

	if b.EventCount() != 2 {
		t.Errorf("EventCount() = %d, want 2", b.EventCount())
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("Should have received 2 events, got %d", len(received))
	}
	if received[0].Type != EventModify {
		t.Errorf("latest event per path should win, got %v", received[0].Type)
	}
}

func TestBatchDebouncerCancel(t *testing.T) {
	var called bool
	var mu sync.Mutex

	b := NewBatchDebouncer(50*time.Millisecond, func([]Event) {
		mu.Lock()
		called = true
		mu.Unlock()
	})
	b.Add(Event{Type: EventCreate, Path: "a.cls"})
	b.Cancel()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if called {
		t.Error("Emit should not be called after cancel")
	}
	if b.EventCount() != 0 {
		t.Errorf("EventCount() = %d, want 0", b.EventCount())
	}
}

func TestBatchDebouncerFlush(t *testing.T) {
	var count int
	b := NewBatchDebouncer(time.Hour, func(events []Event) { count = len(events) })
	b.Add(Event{Type: EventCreate, Path: "a.cls"})
	b.Flush()

	if count != 1 {
		t.Errorf("Flush should emit 1 event, got %d", count)
	}

	b.Flush() // nothing pending
}
