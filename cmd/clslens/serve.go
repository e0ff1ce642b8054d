package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"clslens/internal/config"
	"clslens/internal/lspserver"
	"clslens/internal/metrics"
	"clslens/internal/paths"
	"clslens/internal/slogutil"
	"clslens/internal/version"
	"clslens/internal/watcher"

	"github.com/spf13/cobra"
)

var (
	serveMetricsAddr string
	serveWatch       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the language server over stdio",
	Long: `Start the clslens language server. It speaks the Language Server Protocol
over stdin/stdout and provides code lenses, references and the
clslens.openOverride and clslens.invalidateCache commands.

Logs go to .clslens/logs/server.log unless logging.file is configured.

This command is typically started by an editor, not directly by users.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (overrides metrics.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Invalidate annotations when class files change on disk (overrides cache.watch)")
	rootCmd.AddCommand(serveCmd)
}

// stdio joins stdin and stdout into the protocol stream.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error {
	return os.Stdin.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	// stdout carries the protocol, so early warnings go to stderr
	cfg := loadConfig(root, newLogger())

	logger, closer, err := serverLogger(root, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	logger.Info("Starting clslens", "version", version.Info(), "workspace", root, "dialect", cfg.Query.Dialect)

	ctx, stop := signal.NotifyContext(newContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Metrics.Addr
	if serveMetricsAddr != "" {
		addr = serveMetricsAddr
	}
	var recorder *metrics.Recorder
	if addr != "" {
		recorder = metrics.New()
		go func() {
			if err := recorder.Serve(ctx, addr, logger); err != nil {
				logger.Error("Metrics endpoint failed", "addr", addr, "error", err.Error())
			}
		}()
	}

	a, err := newApp(ctx, appOptions{Config: cfg, Logger: logger, Stdio: true, Recorder: recorder})
	if err != nil {
		logger.Error("Failed to start", "error", err.Error())
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	if cfg.Cache.Watch || serveWatch {
		w := watcher.New(a.locator.SourceRoot, watcher.Config{
			Enabled:        true,
			DebounceMs:     cfg.Cache.DebounceMs,
			IgnorePatterns: watcher.DefaultConfig().IgnorePatterns,
		}, logger, func(classes []string, _ []watcher.Event) {
			for _, className := range classes {
				a.engine.Invalidate(className, "watch")
			}
		})
		if err := w.Start(ctx); err != nil {
			logger.Warn("File watcher not started", "root", a.locator.SourceRoot, "error", err.Error())
		} else {
			defer func() { _ = w.Stop() }()
		}
	}

	srv := lspserver.NewServer(a.engine, lspserver.Options{InvalidateOnSave: cfg.Cache.InvalidateOnSave}, logger)
	if err := srv.Serve(ctx, stdio{Reader: os.Stdin, Writer: os.Stdout}); err != nil && ctx.Err() == nil {
		logger.Error("Language server stopped", "error", err.Error())
		return err
	}
	logger.Info("Language server stopped")
	return nil
}

// serverLogger opens the rotating server log.
func serverLogger(root string, cfg *config.Config) (*slog.Logger, io.Closer, error) {
	path := cfg.ResolvePath(cfg.Logging.File)
	if path == "" {
		if _, err := paths.EnsureLogsDir(root); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		path = paths.ServerLogPath(root)
	}
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if verboseFlag > 1 {
		level = slog.LevelDebug
	}
	logger, closer, err := slogutil.NewFileLogger(path, slogutil.Format(cfg.Logging.Format), level,
		cfg.Logging.MaxSize, cfg.Logging.MaxBackups)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return logger, closer, nil
}
