package main

import (
	"fmt"
	"path/filepath"

	"clslens/internal/paths"

	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

var (
	refsLine   int
	refsFormat string
)

var refsCmd = &cobra.Command{
	Use:   "refs <file.cls>",
	Short: "List the call-sites of the member declared at a line",
	Long: `List the call-sites of the class member whose declaration (or doc comment)
is on the given line. Lines are 1-based.

Examples:
  clslens refs src/Demo/Base.cls --line=5
  clslens refs src/Demo/Base.cls --line=5 --format=json`,
	Args: cobra.ExactArgs(1),
	RunE: runRefs,
}

func init() {
	refsCmd.Flags().IntVar(&refsLine, "line", 0, "Line of the member declaration (1-based)")
	refsCmd.Flags().StringVar(&refsFormat, "format", "human", "Output format (human, json, yaml)")
	_ = refsCmd.MarkFlagRequired("line")
	rootCmd.AddCommand(refsCmd)
}

// RefsResponse is the structured output of refs.
type RefsResponse struct {
	File       string        `json:"file" yaml:"file"`
	Line       int           `json:"line" yaml:"line"`
	References []RefLocation `json:"references" yaml:"references"`
}

// RefLocation is one call-site with 1-based line and column.
type RefLocation struct {
	File   string `json:"file" yaml:"file"`
	Class  string `json:"class,omitempty" yaml:"class,omitempty"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
}

func runRefs(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(refsFormat)
	if err != nil {
		return err
	}
	if refsLine < 1 {
		return fmt.Errorf("--line must be 1 or greater")
	}
	logger := newLogger()
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	ctx := newContext(cmd)

	a, err := newApp(ctx, appOptions{Config: loadConfig(root, logger), Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	abs, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	locs, err := a.engine.References(ctx, uri.File(abs), protocol.Position{Line: uint32(refsLine - 1)})
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	resp := RefsResponse{File: args[0], Line: refsLine, References: make([]RefLocation, 0, len(locs))}
	for _, loc := range locs {
		u := uri.URI(loc.URI)
		file := string(u)
		if p, ok := paths.FromURI(u); ok {
			file = p
			if rel, err := filepath.Rel(root, p); err == nil {
				file = rel
			}
		}
		resp.References = append(resp.References, RefLocation{
			File:   file,
			Class:  a.locator.ClassForURI(u),
			Line:   int(loc.Range.Start.Line) + 1,
			Column: int(loc.Range.Start.Character) + 1,
		})
	}

	if format != FormatHuman {
		return writeStructured(cmd.OutOrStdout(), resp, format)
	}
	out := cmd.OutOrStdout()
	if len(resp.References) == 0 {
		_, err := fmt.Fprintln(out, "No references found.")
		return err
	}
	for _, r := range resp.References {
		fmt.Fprintf(out, "%s:%d:%d", r.File, r.Line, r.Column)
		if r.Class != "" {
			fmt.Fprintf(out, "  %s", r.Class)
		}
		fmt.Fprintln(out)
	}
	return nil
}
