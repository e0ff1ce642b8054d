package main

import (
	"fmt"
	"time"

	"clslens/internal/connections"
	"clslens/internal/remote"

	"github.com/spf13/cobra"
)

var (
	serversFormat        string
	serversPasswordStdin bool
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List and check metadata servers",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the servers in servers.toml",
	Args:  cobra.NoArgs,
	RunE:  runServersList,
}

var serversCheckCmd = &cobra.Command{
	Use:   "check [name...]",
	Short: "Run a trivial query against servers",
	Long: `Run "SELECT 1" against each named server, or all servers when no name is
given, and report whether the query endpoint answered.

Passwords come from CLSLENS_PASSWORD_<NAME>, servers.toml, --password-stdin
or an interactive prompt.`,
	RunE: runServersCheck,
}

func init() {
	serversListCmd.Flags().StringVar(&serversFormat, "format", "human", "Output format (human, json, yaml)")
	serversCheckCmd.Flags().BoolVar(&serversPasswordStdin, "password-stdin", false, "Read passwords from stdin, one line per server")
	serversCmd.AddCommand(serversListCmd, serversCheckCmd)
	rootCmd.AddCommand(serversCmd)
}

// ServerEntry is one server in list output. Passwords are never printed.
type ServerEntry struct {
	Name      string   `json:"name" yaml:"name"`
	URL       string   `json:"url" yaml:"url"`
	Namespace string   `json:"namespace" yaml:"namespace"`
	Username  string   `json:"username,omitempty" yaml:"username,omitempty"`
	Folders   []string `json:"folders,omitempty" yaml:"folders,omitempty"`
	Default   bool     `json:"default" yaml:"default"`
	Xref      bool     `json:"xref" yaml:"xref"`
}

// CheckResult is the outcome of checking one server.
type CheckResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

func runServersList(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(serversFormat)
	if err != nil {
		return err
	}
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	cfg := loadConfig(root, newLogger())
	file, err := connections.LoadFile(cfg.ResolvePath(cfg.Connections.File))
	if err != nil {
		return err
	}

	entries := make([]ServerEntry, 0, len(file.Servers))
	for _, s := range file.Servers {
		entries = append(entries, ServerEntry{
			Name:      s.Name,
			URL:       s.BaseURL(),
			Namespace: s.Namespace,
			Username:  s.Username,
			Folders:   s.Folders,
			Default:   s.Name == file.Default,
			Xref:      s.Name == file.Xref,
		})
	}

	out := cmd.OutOrStdout()
	if format != FormatHuman {
		return writeStructured(out, entries, format)
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No servers configured in %s\n", cfg.ResolvePath(cfg.Connections.File))
		return nil
	}
	for _, e := range entries {
		marks := ""
		if e.Default {
			marks += " [default]"
		}
		if e.Xref {
			marks += " [xref]"
		}
		fmt.Fprintf(out, "%-12s %s  namespace=%s%s\n", e.Name, e.URL, e.Namespace, marks)
	}
	return nil
}

func runServersCheck(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	logger := newLogger()
	cfg := loadConfig(root, logger)
	ctx := newContext(cmd)

	opts := appOptions{Config: cfg, Logger: logger}
	if serversPasswordStdin {
		opts.PasswordInput = cmd.InOrStdin()
		// a prompt would compete with the piped passwords
		cfg.Connections.Interactive = false
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	names := args
	if len(names) == 0 {
		for _, s := range a.servers.Servers {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no servers configured in %s", cfg.ResolvePath(cfg.Connections.File))
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, name := range names {
		res := checkServer(cmd, a, name)
		if res.OK {
			fmt.Fprintf(out, "OK    %-12s %dms\n", res.Name, res.LatencyMs)
			continue
		}
		failed++
		fmt.Fprintf(out, "FAIL  %-12s %s\n", res.Name, res.Error)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d servers failed", failed, len(names))
	}
	return nil
}

func checkServer(cmd *cobra.Command, a *app, name string) CheckResult {
	ctx := newContext(cmd)
	res := CheckResult{Name: name}
	conn, err := a.resolver.ResolveNamed(ctx, name)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	start := time.Now()
	_, err = a.client.Query(ctx, conn, remote.Request{Name: "check", Query: "SELECT 1 AS ok"})
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}
