package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.Query.Dialect != "iris" {
		t.Errorf("Query.Dialect = %q, want %q", cfg.Query.Dialect, "iris")
	}
	if cfg.Symbols.DocCommentPrefix != "///" {
		t.Errorf("DocCommentPrefix = %q, want %q", cfg.Symbols.DocCommentPrefix, "///")
	}
	if cfg.Lens.MarkerWidth != 80 {
		t.Errorf("MarkerWidth = %d, want 80", cfg.Lens.MarkerWidth)
	}
	if !cfg.Cache.SingleFlight {
		t.Error("SingleFlight should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Query.TimeoutMs != 15000 {
		t.Errorf("TimeoutMs = %d, want 15000", cfg.Query.TimeoutMs)
	}
	if cfg.WorkspaceRoot != root {
		t.Errorf("WorkspaceRoot = %q, want %q", cfg.WorkspaceRoot, root)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := `{"query": {"dialect": "sqlite"}, "lens": {"markerWidth": 120}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Query.Dialect != "sqlite" {
		t.Errorf("Query.Dialect = %q, want sqlite", cfg.Query.Dialect)
	}
	if cfg.Lens.MarkerWidth != 120 {
		t.Errorf("MarkerWidth = %d, want 120", cfg.Lens.MarkerWidth)
	}
	// untouched keys keep their defaults
	if cfg.Symbols.DocCommentPrefix != "///" {
		t.Errorf("DocCommentPrefix = %q, want ///", cfg.Symbols.DocCommentPrefix)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CLSLENS_QUERY_DIALECT", "sqlite")

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Query.Dialect != "sqlite" {
		t.Errorf("Query.Dialect = %q, want sqlite", cfg.Query.Dialect)
	}
}

func TestSaveAndLoad(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Metrics.Addr = "127.0.0.1:9464"

	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Metrics.Addr != "127.0.0.1:9464" {
		t.Errorf("Metrics.Addr = %q, want 127.0.0.1:9464", loaded.Metrics.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad version", func(c *Config) { c.Version = 9 }, "version"},
		{"bad dialect", func(c *Config) { c.Query.Dialect = "oracle" }, "query.dialect"},
		{"zero timeout", func(c *Config) { c.Query.TimeoutMs = 0 }, "query.timeoutMs"},
		{"empty prefix", func(c *Config) { c.Symbols.DocCommentPrefix = "" }, "symbols.docCommentPrefix"},
		{"bad width", func(c *Config) { c.Lens.MarkerWidth = -1 }, "lens.markerWidth"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			cerr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkspaceRoot = "/ws"

	if got := cfg.ResolvePath("src"); got != filepath.Join("/ws", "src") {
		t.Errorf("ResolvePath(src) = %q", got)
	}
	if got := cfg.ResolvePath("/abs"); got != "/abs" {
		t.Errorf("ResolvePath(/abs) = %q", got)
	}
	if got := cfg.ResolvePath(""); got != "" {
		t.Errorf("ResolvePath(\"\") = %q", got)
	}
}
