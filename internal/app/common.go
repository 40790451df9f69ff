package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/blackwell-systems/bundlewatch/internal/backup"
	"github.com/blackwell-systems/bundlewatch/internal/config"
	"github.com/blackwell-systems/bundlewatch/internal/history"
	"github.com/blackwell-systems/bundlewatch/internal/metrics"
	"github.com/blackwell-systems/bundlewatch/internal/store"
)

// session is an opened history plus the collectors fed by it.
type session struct {
	cfg     *config.Config
	history *history.Manager
	metrics *metrics.Metrics
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if historyDir != "" {
		cfg.HistoryDir = historyDir
	}
	if backendKind != "" {
		cfg.Backend = backendKind
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openSession opens the configured backend and initializes the history.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	backend, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	s := &session{cfg: cfg}
	opts := history.Options{
		HistoryDir: cfg.HistoryDir,
		MaxEntries: cfg.MaxEntries,
		MaxAlerts:  cfg.MaxAlerts,
	}
	if cfg.Metrics.Textfile != "" {
		s.metrics = metrics.New()
		opts.Observer = s.metrics
	}
	s.history = history.New(backend, opts)

	if err := s.history.Initialize(ctx); err != nil {
		s.history.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() error {
	return s.history.Close()
}

// flushMetrics writes the textfile when metrics are configured.
func (s *session) flushMetrics() error {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.WriteTextfile(s.cfg.Metrics.Textfile)
}

// backups returns the backup manager for this history, which always lives on
// local disk whatever the backend.
func (s *session) backups() *backup.Manager {
	return backup.New(filepath.Join(s.cfg.HistoryDir, backup.DirName))
}

func getDefaultPIDFile(cfg *config.Config) (string, error) {
	return filepath.Abs(filepath.Join(cfg.HistoryDir, "watch.pid"))
}

func getDefaultLogFile(cfg *config.Config) (string, error) {
	return filepath.Abs(filepath.Join(cfg.HistoryDir, "watch.log"))
}

// parseSize accepts plain byte counts and humanized sizes such as "250KB"
// or "1.5MiB".
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// parseTime accepts RFC 3339 timestamps, plain dates (2006-01-02) and
// durations relative to now ("72h", "7d").
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC 3339, YYYY-MM-DD or a duration like 7d)", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
