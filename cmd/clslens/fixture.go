package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clslens/internal/metastore"
	"clslens/internal/paths"

	"github.com/spf13/cobra"
)

var (
	fixtureDB       string
	fixtureAddr     string
	fixtureUser     string
	fixturePassword string
)

var fixtureCmd = &cobra.Command{
	Use:   "fixture",
	Short: "Manage the local metadata store",
	Long: `The local metadata store is a SQLite database holding compiled classes,
members and cross-references loaded from a YAML fixture. "fixture serve"
exposes it on the same query endpoint as a metadata server, so clslens can
be used and tested without one. Point a server at it and set
query.dialect to "sqlite".`,
}

var fixtureImportCmd = &cobra.Command{
	Use:   "import <fixture.yaml>",
	Short: "Compile a YAML fixture into the local store",
	Args:  cobra.ExactArgs(1),
	RunE:  runFixtureImport,
}

var fixtureServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local store on the query endpoint",
	Args:  cobra.NoArgs,
	RunE:  runFixtureServe,
}

func init() {
	fixtureCmd.PersistentFlags().StringVar(&fixtureDB, "db", "", "Store path (default: .clslens/metastore.db)")
	fixtureServeCmd.Flags().StringVar(&fixtureAddr, "addr", "127.0.0.1:52773", "Listen address")
	fixtureServeCmd.Flags().StringVar(&fixtureUser, "user", "", "Require basic authentication with this user")
	fixtureServeCmd.Flags().StringVar(&fixturePassword, "password", "", "Password for --user")
	fixtureCmd.AddCommand(fixtureImportCmd, fixtureServeCmd)
	rootCmd.AddCommand(fixtureCmd)
}

func fixtureDBPath() (string, error) {
	if fixtureDB != "" {
		return fixtureDB, nil
	}
	root, err := workspaceRoot()
	if err != nil {
		return "", err
	}
	return paths.FixtureDBPath(root), nil
}

func runFixtureImport(cmd *cobra.Command, args []string) error {
	dbPath, err := fixtureDBPath()
	if err != nil {
		return err
	}
	logger := newLogger()
	store, err := metastore.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	start := time.Now()
	stats, err := store.ImportFile(newContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d classes, %d members, %d cross-references (%d overrides) into %s in %s\n",
		stats.Classes, stats.Members, stats.Xrefs, stats.Overrides, dbPath, time.Since(start).Round(time.Millisecond))
	return nil
}

func runFixtureServe(cmd *cobra.Command, args []string) error {
	dbPath, err := fixtureDBPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no store at %s, run \"clslens fixture import\" first", dbPath)
	}
	logger := newLogger()
	store, err := metastore.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(newContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr: fixtureAddr,
		Handler: metastore.NewHandler(store, metastore.HandlerOptions{
			User:     fixtureUser,
			Password: fixturePassword,
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", dbPath, fixtureAddr)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
