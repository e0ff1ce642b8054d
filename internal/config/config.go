package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// DirName is the per-workspace directory holding config, servers and logs.
const DirName = ".clslens"

// Config represents the complete clslens configuration
type Config struct {
	Version       int    `json:"version" mapstructure:"version"`
	WorkspaceRoot string `json:"workspaceRoot" mapstructure:"workspaceRoot"`
	SourceDir     string `json:"sourceDir" mapstructure:"sourceDir"`

	Connections ConnectionsConfig `json:"connections" mapstructure:"connections"`
	Query       QueryConfig       `json:"query" mapstructure:"query"`
	Symbols     SymbolsConfig     `json:"symbols" mapstructure:"symbols"`
	Lens        LensConfig        `json:"lens" mapstructure:"lens"`
	Cache       CacheConfig       `json:"cache" mapstructure:"cache"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics"`
}

// ConnectionsConfig locates the server descriptor file
type ConnectionsConfig struct {
	File        string `json:"file" mapstructure:"file"`
	Interactive bool   `json:"interactive" mapstructure:"interactive"`
}

// QueryConfig controls the remote query client
type QueryConfig struct {
	// Dialect selects the SQL catalog: "iris" for a live server, "sqlite" for
	// the local fixture store.
	Dialect      string `json:"dialect" mapstructure:"dialect"`
	TimeoutMs    int    `json:"timeoutMs" mapstructure:"timeoutMs"`
	MaxBodyBytes int64  `json:"maxBodyBytes" mapstructure:"maxBodyBytes"`
	APIVersion   int    `json:"apiVersion" mapstructure:"apiVersion"`
}

// SymbolsConfig controls symbol providers and anchor computation
type SymbolsConfig struct {
	DocCommentPrefix string               `json:"docCommentPrefix" mapstructure:"docCommentPrefix"`
	LanguageServer   LanguageServerConfig `json:"languageServer" mapstructure:"languageServer"`
}

// LanguageServerConfig describes the optional external symbol provider
type LanguageServerConfig struct {
	Command    string   `json:"command" mapstructure:"command"`
	Args       []string `json:"args" mapstructure:"args"`
	LanguageID string   `json:"languageId" mapstructure:"languageId"`
	TimeoutMs  int      `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// LensConfig controls how markers are presented to the editor
type LensConfig struct {
	LanguageIDs       []string `json:"languageIds" mapstructure:"languageIds"`
	ReferencesCommand string   `json:"referencesCommand" mapstructure:"referencesCommand"`
	MarkerWidth       int      `json:"markerWidth" mapstructure:"markerWidth"`
}

// CacheConfig controls the annotation cache
type CacheConfig struct {
	SingleFlight     bool `json:"singleFlight" mapstructure:"singleFlight"`
	InvalidateOnSave bool `json:"invalidateOnSave" mapstructure:"invalidateOnSave"`
	Watch            bool `json:"watch" mapstructure:"watch"`
	DebounceMs       int  `json:"debounceMs" mapstructure:"debounceMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" mapstructure:"format"` // human or json
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       CurrentVersion,
		WorkspaceRoot: ".",
		SourceDir:     "src",
		Connections: ConnectionsConfig{
			File:        filepath.Join(DirName, "servers.toml"),
			Interactive: true,
		},
		Query: QueryConfig{
			Dialect:      "iris",
			TimeoutMs:    15000,
			MaxBodyBytes: 10 * 1024 * 1024,
			APIVersion:   1,
		},
		Symbols: SymbolsConfig{
			DocCommentPrefix: "///",
			LanguageServer: LanguageServerConfig{
				LanguageID: "objectscript-class",
				TimeoutMs:  10000,
			},
		},
		Lens: LensConfig{
			LanguageIDs:       []string{"objectscript-class"},
			ReferencesCommand: "references-view.findReferences",
			MarkerWidth:       80,
		},
		Cache: CacheConfig{
			SingleFlight:     true,
			InvalidateOnSave: true,
			Watch:            false,
			DebounceMs:       500,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads <workspaceRoot>/.clslens/config.json over the defaults.
// CLSLENS_* environment variables override file values, e.g.
// CLSLENS_QUERY_DIALECT=sqlite.
func LoadConfig(workspaceRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(workspaceRoot, DirName))

	v.SetEnvPrefix("CLSLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.WorkspaceRoot == "" || cfg.WorkspaceRoot == "." {
		cfg.WorkspaceRoot = workspaceRoot
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("workspaceRoot", d.WorkspaceRoot)
	v.SetDefault("sourceDir", d.SourceDir)

	v.SetDefault("connections.file", d.Connections.File)
	v.SetDefault("connections.interactive", d.Connections.Interactive)

	v.SetDefault("query.dialect", d.Query.Dialect)
	v.SetDefault("query.timeoutMs", d.Query.TimeoutMs)
	v.SetDefault("query.maxBodyBytes", d.Query.MaxBodyBytes)
	v.SetDefault("query.apiVersion", d.Query.APIVersion)

	v.SetDefault("symbols.docCommentPrefix", d.Symbols.DocCommentPrefix)
	v.SetDefault("symbols.languageServer.command", d.Symbols.LanguageServer.Command)
	v.SetDefault("symbols.languageServer.args", d.Symbols.LanguageServer.Args)
	v.SetDefault("symbols.languageServer.languageId", d.Symbols.LanguageServer.LanguageID)
	v.SetDefault("symbols.languageServer.timeoutMs", d.Symbols.LanguageServer.TimeoutMs)

	v.SetDefault("lens.languageIds", d.Lens.LanguageIDs)
	v.SetDefault("lens.referencesCommand", d.Lens.ReferencesCommand)
	v.SetDefault("lens.markerWidth", d.Lens.MarkerWidth)

	v.SetDefault("cache.singleFlight", d.Cache.SingleFlight)
	v.SetDefault("cache.invalidateOnSave", d.Cache.InvalidateOnSave)
	v.SetDefault("cache.watch", d.Cache.Watch)
	v.SetDefault("cache.debounceMs", d.Cache.DebounceMs)

	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Save writes the configuration to <workspaceRoot>/.clslens/config.json
func (c *Config) Save(workspaceRoot string) error {
	dir := filepath.Join(workspaceRoot, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	switch c.Query.Dialect {
	case "iris", "sqlite":
	default:
		return &ConfigError{Field: "query.dialect", Message: "must be iris or sqlite"}
	}
	if c.Query.TimeoutMs <= 0 {
		return &ConfigError{Field: "query.timeoutMs", Message: "must be positive"}
	}
	if c.Symbols.DocCommentPrefix == "" {
		return &ConfigError{Field: "symbols.docCommentPrefix", Message: "must not be empty"}
	}
	if c.Lens.MarkerWidth <= 0 {
		return &ConfigError{Field: "lens.markerWidth", Message: "must be positive"}
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be human or json"}
	}
	return nil
}

// ResolvePath makes p absolute relative to the workspace root.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkspaceRoot, p)
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
