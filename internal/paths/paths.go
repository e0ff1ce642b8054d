// Package paths maps between class names, workspace files and the
// per-workspace .clslens directory.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"go.lsp.dev/uri"
)

const (
	// DirName is the per-workspace state directory.
	DirName = ".clslens"
	// LogsDir holds server log files inside DirName.
	LogsDir = "logs"
	// ClassExt is the file extension of class definition files.
	ClassExt = ".cls"
)

// StateDir returns <root>/.clslens.
func StateDir(root string) string {
	return filepath.Join(root, DirName)
}

// EnsureLogsDir creates <root>/.clslens/logs and returns it.
func EnsureLogsDir(root string) (string, error) {
	dir := filepath.Join(StateDir(root), LogsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// ServerLogPath returns the log file used by `clslens serve`.
func ServerLogPath(root string) string {
	return filepath.Join(StateDir(root), LogsDir, "server.log")
}

// FixtureDBPath returns the default location of the local metadata store.
func FixtureDBPath(root string) string {
	return filepath.Join(StateDir(root), "metastore.db")
}

// CanonicalizePath converts an absolute path to a root-relative path with
// forward slashes, resolving symlinks where the file exists.
func CanonicalizePath(absolutePath string, root string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		resolved = absolutePath
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		rootResolved = root
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsWithin reports whether path lies under root.
func IsWithin(path string, root string) bool {
	canonical, err := CanonicalizePath(path, root)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// ClassFile returns the file for a dotted class name under srcRoot:
// A.B.C becomes <srcRoot>/A/B/C.cls.
func ClassFile(srcRoot, className string) string {
	parts := strings.Split(className, ".")
	parts[len(parts)-1] += ClassExt
	return filepath.Join(append([]string{srcRoot}, parts...)...)
}

// ClassFromFile is the inverse of ClassFile. It returns "" for files outside
// srcRoot or without the class extension.
func ClassFromFile(srcRoot, path string) string {
	if !strings.EqualFold(filepath.Ext(path), ClassExt) {
		return ""
	}
	rel, err := CanonicalizePath(path, srcRoot)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return ""
	}
	rel = rel[:len(rel)-len(ClassExt)]
	return strings.ReplaceAll(rel, "/", ".")
}

// FromURI returns the file path of a file:// URI. Other schemes report false.
func FromURI(u uri.URI) (string, bool) {
	if !strings.HasPrefix(string(u), uri.FileScheme+"://") {
		return "", false
	}
	return u.Filename(), true
}
