package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"clslens/internal/config"
	"clslens/internal/connections"

	"github.com/spf13/cobra"
)

var (
	configFormat string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the workspace configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write .clslens/config.json and a sample servers.toml",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "json", "Output format (json, yaml)")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config.json")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(configFormat)
	if err != nil {
		return err
	}
	if format == FormatHuman {
		format = FormatJSON
	}
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	cfg := loadConfig(root, newLogger())
	if format == FormatJSON {
		return writeStructured(cmd.OutOrStdout(), cfg, format)
	}
	// keep the json key names in yaml output
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return writeStructured(cmd.OutOrStdout(), doc, format)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	cfg := config.DefaultConfig()

	cfgPath := filepath.Join(root, config.DirName, "config.json")
	if _, err := os.Stat(cfgPath); err == nil && !configForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", cfgPath)
	}
	if err := cfg.Save(root); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s\n", cfgPath)

	serversPath := filepath.Join(root, cfg.Connections.File)
	if _, err := os.Stat(serversPath); err == nil {
		return nil
	}
	sample := &connections.File{
		Default: "dev",
		Servers: []connections.Descriptor{{
			Name:      "dev",
			Host:      "localhost",
			Port:      connections.DefaultPort,
			Namespace: "USER",
			Username:  "_SYSTEM",
		}},
	}
	if err := sample.Save(serversPath); err != nil {
		return fmt.Errorf("failed to write servers: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s\n", serversPath)
	return nil
}
