// Package document keeps the text of open documents and extracts the class
// they declare.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// ClassLanguageID is the language id editors use for class definition files.
const ClassLanguageID = "objectscript-class"

// Document is an immutable snapshot of a text document.
type Document struct {
	URI        uri.URI
	LanguageID string
	Version    int32
	lines      []string
}

// New creates a document from its full text.
func New(u uri.URI, languageID string, version int32, text string) *Document {
	return &Document{URI: u, LanguageID: languageID, Version: version, lines: splitLines(text)}
}

// FromFile loads a document from disk. The language id is derived from the
// extension.
func FromFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return New(uri.File(abs), LanguageForPath(path), 0, string(data)), nil
}

// LanguageForPath maps a file extension to a language id.
func LanguageForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".cls") {
		return ClassLanguageID
	}
	return ""
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	// a trailing newline does not start another line
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// LineCount returns the number of lines.
func (d *Document) LineCount() int {
	return len(d.lines)
}

// LineAt returns line i without its terminator, or "" when out of range.
func (d *Document) LineAt(i int) string {
	if i < 0 || i >= len(d.lines) {
		return ""
	}
	return d.lines[i]
}

// Text returns the full text with \n line endings.
func (d *Document) Text() string {
	if len(d.lines) == 0 {
		return ""
	}
	return strings.Join(d.lines, "\n") + "\n"
}

// Change is one content change of textDocument/didChange. A nil Range
// replaces the whole text.
type Change struct {
	Range *protocol.Range `json:"range,omitempty"`
	Text  string          `json:"text"`
}

// Apply returns a new document with the changes applied in order.
func (d *Document) Apply(version int32, changes []Change) (*Document, error) {
	text := d.Text()
	for _, ch := range changes {
		if ch.Range == nil {
			text = ch.Text
			continue
		}
		start, err := offsetOf(text, ch.Range.Start)
		if err != nil {
			return nil, err
		}
		end, err := offsetOf(text, ch.Range.End)
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, fmt.Errorf("invalid range %v", *ch.Range)
		}
		text = text[:start] + ch.Text + text[end:]
	}
	return New(d.URI, d.LanguageID, version, text), nil
}

// offsetOf converts a position to a byte offset. Characters are counted in
// runes, which matches UTF-16 for the BMP.
func offsetOf(text string, pos protocol.Position) (int, error) {
	line := uint32(0)
	offset := 0
	for line < pos.Line {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return 0, fmt.Errorf("line %d out of range", pos.Line)
		}
		offset += i + 1
		line++
	}
	rest := text[offset:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	chars := uint32(0)
	for i := range rest {
		if chars == pos.Character {
			return offset + i, nil
		}
		chars++
	}
	return offset + len(rest), nil
}

var classPattern = regexp.MustCompile(`(?i)^(Class) (%?\b\w+\b(?:\.\b\w+\b)+)`)

// ClassName returns the dotted class name declared by the document, or "".
// Lines inside /* ... */ comment blocks are skipped.
func (d *Document) ClassName() string {
	name, _ := d.ClassDeclaration()
	return name
}

// ClassDeclaration returns the class name and the line that declares it.
// The line is -1 when no declaration is found.
func (d *Document) ClassDeclaration() (string, int) {
	inComment := false
	for i, line := range d.lines {
		if strings.Contains(line, "/*") {
			inComment = true
		}
		if inComment {
			if strings.Contains(line, "*/") {
				inComment = false
			}
			continue
		}
		if m := classPattern.FindStringSubmatch(line); m != nil {
			return m[2], i
		}
	}
	return "", -1
}
