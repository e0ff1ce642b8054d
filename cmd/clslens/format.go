package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"clslens/internal/lens"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatHuman OutputFormat = "human"
)

// parseFormat validates a --format value.
func parseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %s (use human, json or yaml)", s)
}

// writeStructured writes v as JSON or YAML. Human output is handled by the
// caller.
func writeStructured(w io.Writer, v interface{}, format OutputFormat) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// formatReportHuman renders an annotation report as text. Lines are 1-based.
func formatReportHuman(r lens.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", r.Class)
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Symbols: %s (anchors: %s)\n\n", r.SymbolSource, r.AnchorStrategy)

	if len(r.Markers) == 0 {
		b.WriteString("No annotations.\n")
		return b.String()
	}

	byLine := make(map[uint32][]string)
	for _, m := range r.Markers {
		byLine[m.Line] = append(byLine[m.Line], m.Title())
	}
	for _, m := range r.Members {
		titles, ok := byLine[m.AnchorLine]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %5d  %-30s %s", m.AnchorLine+1, m.Member, strings.Join(titles, " | "))
		if m.OriginClass != "" {
			fmt.Fprintf(&b, "  (from %s)", m.OriginClass)
		}
		b.WriteString("\n")
		delete(byLine, m.AnchorLine)
	}
	return b.String()
}
