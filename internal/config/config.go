package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultExtension       = ".muasm"
	DefaultAnalyzer        = "spectector"
	DefaultAnalyzerTimeout = 2 * time.Second
	DefaultExpanderTimeout = 60 * time.Second
	DefaultExpansionLimit  = 3
	DefaultResultsDir      = "results"
	DefaultFormat          = "table"
)

type Config struct {
	Corpus    Corpus    `yaml:"corpus"`
	Tools     Tools     `yaml:"tools"`
	Results   Results   `yaml:"results"`
	History   History   `yaml:"history"`
	Export    Export    `yaml:"export"`
	Influx    Influx    `yaml:"influx"`
	Telemetry Telemetry `yaml:"telemetry"`
	LogLevel  string    `yaml:"log_level"`
}

type Corpus struct {
	Root      string `yaml:"root"`
	Extension string `yaml:"extension"`
}

type Tools struct {
	LoopExpander LoopExpander `yaml:"loop_expander"`
	Spectector   Spectector   `yaml:"spectector"`
	Docker       Docker       `yaml:"docker"`
}

type LoopExpander struct {
	Path string `yaml:"path"`
	// Timeout is nil when unset; an explicit 0 disables the bound.
	Timeout      *time.Duration `yaml:"timeout"`
	Limits       []int          `yaml:"limits"`
	KeepExpanded bool           `yaml:"keep_expanded"`
}

type Spectector struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
	Options []string      `yaml:"options"`
}

// Docker runs both tools inside Image when set.
type Docker struct {
	Image  string   `yaml:"image"`
	Mounts []string `yaml:"mounts"`
}

type Results struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

type History struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

type Export struct {
	Parquet bool `yaml:"parquet"`
}

type Influx struct {
	Host   string `yaml:"host"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type Telemetry struct {
	Textfile string `yaml:"textfile"`
}

// ExpanderTimeout returns the configured bound, or the default when unset.
func (l LoopExpander) ExpanderTimeout() time.Duration {
	if l.Timeout == nil {
		return DefaultExpanderTimeout
	}
	return *l.Timeout
}

func (i Influx) Enabled() bool {
	return i.Host != ""
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with its value; unset variables are left as is.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := strings.Trim(match, "${}")
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})
}

// Validate fills defaults and rejects unusable values. It is exported so
// flag overrides can be re-checked after they are applied.
func Validate(cfg *Config) error {
	if cfg.Corpus.Root == "" {
		return fmt.Errorf("corpus.root is required")
	}
	if cfg.Corpus.Extension == "" {
		cfg.Corpus.Extension = DefaultExtension
	}
	if !strings.HasPrefix(cfg.Corpus.Extension, ".") {
		cfg.Corpus.Extension = "." + cfg.Corpus.Extension
	}

	le := &cfg.Tools.LoopExpander
	if le.Path == "" {
		return fmt.Errorf("tools.loop_expander.path is required")
	}
	if le.Timeout != nil && *le.Timeout < 0 {
		return fmt.Errorf("tools.loop_expander.timeout must not be negative")
	}
	if len(le.Limits) == 0 {
		le.Limits = []int{DefaultExpansionLimit}
	}
	seen := make(map[int]bool)
	for _, n := range le.Limits {
		if n < 1 {
			return fmt.Errorf("tools.loop_expander.limits: %d is not a positive integer", n)
		}
		if seen[n] {
			return fmt.Errorf("tools.loop_expander.limits: %d listed twice", n)
		}
		seen[n] = true
	}

	sp := &cfg.Tools.Spectector
	if sp.Path == "" {
		sp.Path = DefaultAnalyzer
	}
	if sp.Timeout == 0 {
		sp.Timeout = DefaultAnalyzerTimeout
	}
	if sp.Timeout < 0 {
		return fmt.Errorf("tools.spectector.timeout must be positive")
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = DefaultResultsDir
	}
	if cfg.Results.Format == "" {
		cfg.Results.Format = DefaultFormat
	}
	switch cfg.Results.Format {
	case "table", "markdown", "json", "csv":
	default:
		return fmt.Errorf("results.format %q is not one of table, markdown, json, csv", cfg.Results.Format)
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = "none"
	}
	switch cfg.History.Backend {
	case "none", "sqlite":
	case "mysql", "postgres":
		if cfg.History.DSN == "" {
			return fmt.Errorf("history.dsn is required for the %s backend", cfg.History.Backend)
		}
	default:
		return fmt.Errorf("history.backend %q is not one of none, sqlite, mysql, postgres", cfg.History.Backend)
	}

	if cfg.Influx.Enabled() && (cfg.Influx.Org == "" || cfg.Influx.Bucket == "") {
		return fmt.Errorf("influx.org and influx.bucket are required when influx.host is set")
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return nil
}
