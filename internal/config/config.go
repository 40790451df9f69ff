// Package config loads the bundlewatch configuration file.
//
// The file may be YAML (.yaml, .yml) or TOML (.toml). Every field is
// optional; unset fields take the defaults below.
//
//	history_dir: .bundle-size-history
//	max_entries: 100
//	backend: json            # json | sqlite | redis | memory
//	redis:
//	  addr: localhost:6379
//	  prefix: bundlewatch
//	thresholds:
//	  total_size_increase_threshold: 10
//	  max_total_size: 5242880
//	measure:
//	  patterns: ["**/*.js", "**/*.css"]
//	  gzip: true
//	  brotli: true
//	watch:
//	  debounce: 500ms
//	metrics:
//	  textfile: /var/lib/node_exporter/textfile/bundlewatch.prom
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/history"
	"github.com/blackwell-systems/bundlewatch/internal/measure"
	"github.com/blackwell-systems/bundlewatch/internal/store"
	"github.com/blackwell-systems/bundlewatch/internal/watcher"
)

// Config is the full bundlewatch configuration.
type Config struct {
	HistoryDir string                   `yaml:"history_dir" toml:"history_dir"`
	MaxEntries int                      `yaml:"max_entries" toml:"max_entries"`
	MaxAlerts  int                      `yaml:"max_alerts" toml:"max_alerts"`
	Backend    string                   `yaml:"backend" toml:"backend"`
	Redis      RedisConfig              `yaml:"redis" toml:"redis"`
	Thresholds alerting.ThresholdsPatch `yaml:"thresholds" toml:"thresholds"`
	Measure    MeasureConfig            `yaml:"measure" toml:"measure"`
	Watch      WatchConfig              `yaml:"watch" toml:"watch"`
	Metrics    MetricsConfig            `yaml:"metrics" toml:"metrics"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-" toml:"-"`
}

// RedisConfig is used when Backend is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// MeasureConfig controls `record --measure`.
type MeasureConfig struct {
	Patterns    []string `yaml:"patterns" toml:"patterns"`
	Gzip        *bool    `yaml:"gzip" toml:"gzip"`
	Brotli      *bool    `yaml:"brotli" toml:"brotli"`
	Concurrency int      `yaml:"concurrency" toml:"concurrency"`
}

// WatchConfig controls the drop-directory watcher.
type WatchConfig struct {
	Patterns []string      `yaml:"patterns" toml:"patterns"`
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}

// MetricsConfig controls the Prometheus textfile output. An empty
// Textfile disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// Dir returns the bundlewatch config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/bundlewatch if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "bundlewatch"), nil
}

// SearchPaths lists the files Find looks for, in order: project files in
// the working directory, then the user config directory.
func SearchPaths() []string {
	paths := []string{"bundlewatch.yaml", "bundlewatch.yml", "bundlewatch.toml"}
	if dir, err := Dir(); err == nil {
		paths = append(paths,
			filepath.Join(dir, "config.yaml"),
			filepath.Join(dir, "config.yml"),
			filepath.Join(dir, "config.toml"))
	}
	return paths
}

// Find returns the first existing file from SearchPaths, or "" if none exists.
func Find() string {
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Default returns a configuration with default values.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads the configuration at path. An empty path searches
// SearchPaths and falls back to the defaults when no file exists.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Find()
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml, .yml or .toml)", ext)
	}

	cfg.Path = path
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.HistoryDir == "" {
		c.HistoryDir = history.DefaultHistoryDir
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = history.DefaultMaxEntries
	}
	if c.Backend == "" {
		c.Backend = store.KindJSON
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = store.DefaultRedisPrefix
	}
	if len(c.Measure.Patterns) == 0 {
		c.Measure.Patterns = append([]string(nil), measure.DefaultPatterns...)
	}
	if c.Measure.Gzip == nil {
		c.Measure.Gzip = boolPtr(true)
	}
	if c.Measure.Brotli == nil {
		c.Measure.Brotli = boolPtr(true)
	}
	if len(c.Watch.Patterns) == 0 {
		c.Watch.Patterns = append([]string(nil), watcher.DefaultPatterns...)
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = watcher.DefaultDebounce
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MaxEntries < 0 {
		return fmt.Errorf("max_entries must not be negative")
	}
	if c.MaxAlerts < 0 {
		return fmt.Errorf("max_alerts must not be negative")
	}
	switch c.Backend {
	case store.KindJSON, store.KindSQLite, store.KindMemory:
	case store.KindRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when backend is redis")
		}
	default:
		return fmt.Errorf("unknown backend %q (want json, sqlite, redis or memory)", c.Backend)
	}
	if err := alerting.DefaultThresholds().Merge(c.Thresholds).Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if c.Measure.Concurrency < 0 {
		return fmt.Errorf("measure.concurrency must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// StoreOptions returns the backend options for this configuration.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Kind:          c.Backend,
		Dir:           c.HistoryDir,
		RedisAddr:     c.Redis.Addr,
		RedisPassword: c.Redis.Password,
		RedisDB:       c.Redis.DB,
		RedisPrefix:   c.Redis.Prefix,
	}
}

// MeasureOptions returns the measure options for this configuration.
func (c *Config) MeasureOptions() measure.Options {
	return measure.Options{
		Patterns:    c.Measure.Patterns,
		Gzip:        c.Measure.Gzip == nil || *c.Measure.Gzip,
		Brotli:      c.Measure.Brotli == nil || *c.Measure.Brotli,
		Concurrency: c.Measure.Concurrency,
	}
}

func boolPtr(b bool) *bool { return &b }
