package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/relocate/pkg/diagnostic"
	"github.com/panbanda/relocate/pkg/extract"
)

// Config holds all configuration options for relocate.
type Config struct {
	// Containers of each tier
	Classpath ClasspathConfig `koanf:"classpath" toml:"classpath"`

	// Reference extraction and marking
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// Diagnostics to ignore
	Suppress []SuppressRule `koanf:"suppress" toml:"suppress"`

	Cache  CacheConfig  `koanf:"cache" toml:"cache"`
	Output OutputConfig `koanf:"output" toml:"output"`
}

// ClasspathConfig lists container paths (jars or class directories) per
// tier, in lookup order.
type ClasspathConfig struct {
	Roots   []string `koanf:"roots" toml:"roots"`
	Embeds  []string `koanf:"embeds" toml:"embeds"`
	Refers  []string `koanf:"refers" toml:"refers"`
	Decoder string   `koanf:"decoder" toml:"decoder"` // yaml
}

// AnalysisConfig controls extraction and the mark engine.
type AnalysisConfig struct {
	KeepInvisibleAnnotations bool `koanf:"keep_invisible_annotations" toml:"keep_invisible_annotations"`
	Reflection               bool `koanf:"reflection" toml:"reflection"`
	LinkOverrides            bool `koanf:"link_overrides" toml:"link_overrides"`
	FailFast                 bool `koanf:"fail_fast" toml:"fail_fast"`
	Workers                  int  `koanf:"workers" toml:"workers"` // 0 = 2x CPUs
}

// SuppressRule ignores a diagnostic. Location is "kind:value" with kind one
// of package, class, method or field; empty matches everywhere. Params use
// the pattern syntax of diagnostic.ParseValue.
type SuppressRule struct {
	Location string   `koanf:"location" toml:"location"`
	ID       string   `koanf:"id" toml:"id"`
	Params   []string `koanf:"params" toml:"params"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // hours, 0 = never expires
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format"` // text, json, markdown, toon
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Classpath: ClasspathConfig{
			Roots:   []string{},
			Embeds:  []string{},
			Refers:  []string{},
			Decoder: "yaml",
		},
		Analysis: AnalysisConfig{
			Reflection:    true,
			LinkOverrides: true,
		},
		Suppress: []SuppressRule{},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".relocate/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Load loads configuration from a file over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

var configNames = []string{
	"relocate.toml",
	"relocate.yaml",
	"relocate.yml",
	"relocate.json",
	".relocate.toml",
	".relocate.yaml",
	".relocate.yml",
	".relocate.json",
}

// Find returns the first standard config file under dir or dir/.relocate.
func Find(dir string) (string, bool) {
	for _, d := range []string{dir, filepath.Join(dir, ".relocate")} {
		for _, name := range configNames {
			path := filepath.Join(d, name)
			if _, err := os.Stat(path); err == nil {
				return path, true
			}
		}
	}
	return "", false
}

// LoadOrDefault loads the config found in the working directory, or returns
// the defaults when there is none. A config that exists but does not load
// is an error.
func LoadOrDefault() (*Config, error) {
	path, ok := Find(".")
	if !ok {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Validate checks values koanf cannot check.
func (c *Config) Validate() error {
	var errs []error
	if c.Classpath.Decoder != "yaml" {
		errs = append(errs, fmt.Errorf("classpath.decoder: unsupported decoder %q", c.Classpath.Decoder))
	}
	if c.Analysis.Workers < 0 {
		errs = append(errs, fmt.Errorf("analysis.workers: must not be negative"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl: must not be negative"))
	}
	switch c.Output.Format {
	case "text", "json", "markdown", "md", "toon":
	default:
		errs = append(errs, fmt.Errorf("output.format: unknown format %q", c.Output.Format))
	}
	if _, err := c.Suppressions(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Env returns the extraction environment. Report is left for the engine to
// set.
func (c *Config) Env() extract.Env {
	env := extract.DefaultEnv()
	env.KeepInvisibleAnnotations = c.Analysis.KeepInvisibleAnnotations
	env.Reflection = c.Analysis.Reflection
	return env
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Hour
}

// Suppressions compiles the suppress rules.
func (c *Config) Suppressions() (*diagnostic.Suppressions, error) {
	s := diagnostic.NewSuppressions()
	for i, r := range c.Suppress {
		kind, value, _ := strings.Cut(r.Location, ":")
		rule, err := diagnostic.ParseRule(kind, value, r.ID, r.Params)
		if err != nil {
			return nil, fmt.Errorf("suppress[%d]: %w", i, err)
		}
		s.Add(rule)
	}
	return s, nil
}
