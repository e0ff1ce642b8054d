// Package testutil provides shared fixtures for tests: a class source tree,
// scripted metadata queries and golden-file comparison.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"clslens/internal/paths"
)

// Workspace is a temporary workspace with a class source directory.
type Workspace struct {
	Root   string
	SrcDir string
}

// NewWorkspace creates a workspace under t.TempDir() and writes classes,
// keyed by dotted class name, below <root>/src.
func NewWorkspace(t *testing.T, classes map[string]string) *Workspace {
	t.Helper()
	root := t.TempDir()
	ws := &Workspace{Root: root, SrcDir: filepath.Join(root, "src")}
	if err := os.MkdirAll(ws.SrcDir, 0o755); err != nil {
		t.Fatalf("Failed to create src dir: %v", err)
	}
	for name, text := range classes {
		ws.WriteClass(t, name, text)
	}
	return ws
}

// WriteClass writes the source of className and returns its path.
func (w *Workspace) WriteClass(t *testing.T, className, text string) string {
	t.Helper()
	path := paths.ClassFile(w.SrcDir, className)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create class dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("Failed to write class %s: %v", className, err)
	}
	return path
}

// ClassPath returns the path of className.
func (w *Workspace) ClassPath(className string) string {
	return paths.ClassFile(w.SrcDir, className)
}

// Sample classes shared by package tests. Demo.Child overrides Run from
// Demo.Base and inherits %Save from the library.
const (
	ChildClass = `Class Demo.Child Extends Demo.Base
{

/// Saves.
Method %Save() As %Status
{
}

Method Run()
{
}

Property Name As %String;

}
`

	BaseClass = `Class Demo.Base Extends %Persistent
{

/// The original.
Method Run()
{
}

}
`
)
