package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"clslens/internal/config"
	"clslens/internal/slogutil"
	"clslens/internal/version"

	"github.com/spf13/cobra"
)

var (
	// workspaceFlag is the CLI --workspace flag value
	workspaceFlag string
	verboseFlag   int
	quietFlag     bool
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "clslens",
	Short: "clslens - member origin and cross-reference lenses for class files",
	Long: `clslens annotates the members of class definition (.cls) files with where
they were first declared, how often they are overridden, and how often they
are referenced, using the compiled class dictionary and cross-reference index
of a metadata server.

Run "clslens serve" from an editor to get the annotations as code lenses, or
use "clslens annotate" to print them.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("clslens version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "",
		"Workspace root (default: current directory)")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress log output")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "human", "Log format (human, json)")
}

// workspaceRoot returns the absolute workspace root.
func workspaceRoot() (string, error) {
	if workspaceFlag == "" {
		return os.Getwd()
	}
	return filepath.Abs(workspaceFlag)
}

// loadConfig loads the workspace configuration. A broken config file is
// reported and replaced by the defaults so read-only commands keep working.
func loadConfig(root string, logger *slog.Logger) *config.Config {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		logger.Warn("Failed to load config, using defaults", "error", err.Error())
		cfg = config.DefaultConfig()
		cfg.WorkspaceRoot = root
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("Invalid config, using defaults", "error", err.Error())
		cfg = config.DefaultConfig()
		cfg.WorkspaceRoot = root
	}
	return cfg
}

// newLogger creates the stderr logger of CLI commands.
func newLogger() *slog.Logger {
	return slogutil.NewFormatLogger(os.Stderr, slogutil.Format(logFormatFlag),
		slogutil.LevelFromVerbosity(verboseFlag, quietFlag))
}

// newContext returns the command context or a background one.
func newContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
