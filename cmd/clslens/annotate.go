package main

import (
	"fmt"

	"clslens/internal/document"

	"github.com/spf13/cobra"
)

var annotateFormat string

var annotateCmd = &cobra.Command{
	Use:   "annotate <file.cls>",
	Short: "Print the member annotations of a class file",
	Long: `Resolve origins, override counts and cross-reference counts for the members
of a class file and print the markers an editor would show.

Examples:
  clslens annotate src/Demo/Child.cls
  clslens annotate src/Demo/Child.cls --format=json
  clslens annotate src/Demo/Child.cls --format=yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().StringVar(&annotateFormat, "format", "human", "Output format (human, json, yaml)")
	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(annotateFormat)
	if err != nil {
		return err
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

	doc, err := document.FromFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	report, err := a.engine.Annotate(ctx, doc)
	if err != nil {
		return err
	}

	if format == FormatHuman {
		_, err = fmt.Fprint(cmd.OutOrStdout(), formatReportHuman(report))
		return err
	}
	return writeStructured(cmd.OutOrStdout(), report, format)
}
