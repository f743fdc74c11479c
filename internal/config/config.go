package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the monitor configuration.
const (
	DefaultDBPath        = "sourcewatch.db"
	DefaultInterval      = 6 * time.Hour
	DefaultWorkers       = 4
	DefaultDedupWindow   = 24 * time.Hour
	DefaultFetchTimeout  = 15 * time.Second
	DefaultHTTPPort      = 8080
	DefaultStalenessDays = 365
	DefaultSMTPPort      = 587
)

// Config is the full configuration parsed from config.yaml.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Sources []Source      `yaml:"sources"`
}

// MonitorConfig holds engine-wide settings.
type MonitorConfig struct {
	// DBPath is the SQLite database file holding check history, content
	// snapshots, and alerts (default "sourcewatch.db").
	DBPath string `yaml:"db_path"`

	// Interval is how often the scheduler runs the full check pipeline
	// (default 6h).
	Interval time.Duration `yaml:"interval"`

	// Workers bounds how many pages are checked concurrently within one run
	// (default 4). Checks for a single page always run sequentially.
	Workers int `yaml:"workers"`

	// DeepDiff enables full-text line diffs for scheduled content checks.
	// On-demand runs choose per call. Default false — deep diffs are O(n·m)
	// in line count and must be opt-in.
	DeepDiff bool `yaml:"deep_diff"`

	// DedupWindow suppresses repeat alerts for the same
	// (source, URL, check kind) while an unresolved alert newer than this
	// window exists (default 24h).
	DedupWindow time.Duration `yaml:"dedup_window"`

	// FetchTimeout is the per-request HTTP timeout for all checks
	// (default 15s).
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// HTTPPort is the port the status API, /metrics, and /ws listen on
	// (default 8080).
	HTTPPort int `yaml:"http_port"`
}

// SMTPConfig holds outbound email settings for alert digests.
// If Host or Recipient is empty, email delivery is disabled and digests are
// skipped (logged, never an error).
type SMTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordEnv is the name of the environment variable that holds the
	// SMTP password. The password itself never appears in the config file.
	PasswordEnv string `yaml:"password_env"`

	// Recipient receives every alert digest.
	Recipient string `yaml:"recipient"`
}

// Password returns the SMTP password resolved from the environment.
func (s SMTPConfig) Password() string {
	if s.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(s.PasswordEnv)
}

// Enabled reports whether email delivery is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.Recipient != ""
}

// Source defines one monitored web source. Immutable for the duration of a
// check run.
type Source struct {
	// Key is the stable source identifier used in check history and alerts.
	Key string `yaml:"key"`

	// Name is the human-readable display name.
	Name string `yaml:"name"`

	// BaseURL is the prefix every page path is appended to.
	BaseURL string `yaml:"base_url"`

	// Pages are the path suffixes checked each run, in order.
	Pages []string `yaml:"pages"`

	// ExpectedSelectors are CSS selectors that must match the fetched markup.
	// An empty list disables the structure check for this source.
	ExpectedSelectors []string `yaml:"expected_selectors"`

	// StalenessDays is the age in days beyond which content is flagged stale
	// (default 365).
	StalenessDays int `yaml:"staleness_days"`
}

// PageURL returns the fully-qualified URL for one of the source's pages.
func (s Source) PageURL(page string) string {
	return s.BaseURL + page
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	applySourceDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			DBPath:       DefaultDBPath,
			Interval:     DefaultInterval,
			Workers:      DefaultWorkers,
			DedupWindow:  DefaultDedupWindow,
			FetchTimeout: DefaultFetchTimeout,
			HTTPPort:     DefaultHTTPPort,
		},
		SMTP: SMTPConfig{
			Port: DefaultSMTPPort,
		},
	}
}

// applySourceDefaults fills per-source defaults yaml cannot express.
func applySourceDefaults(cfg *Config) {
	for i := range cfg.Sources {
		if cfg.Sources[i].StalenessDays == 0 {
			cfg.Sources[i].StalenessDays = DefaultStalenessDays
		}
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	m := cfg.Monitor
	if m.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", m.Interval)
	}
	if m.Workers <= 0 {
		return fmt.Errorf("monitor.workers must be positive, got %d", m.Workers)
	}
	if m.DedupWindow <= 0 {
		return fmt.Errorf("monitor.dedup_window must be positive, got %s", m.DedupWindow)
	}
	if m.FetchTimeout <= 0 {
		return fmt.Errorf("monitor.fetch_timeout must be positive, got %s", m.FetchTimeout)
	}
	if m.HTTPPort <= 0 || m.HTTPPort > 65535 {
		return fmt.Errorf("monitor.http_port %d is out of range [1, 65535]", m.HTTPPort)
	}
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port %d is out of range [1, 65535]", cfg.SMTP.Port)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.Key == "" {
			return fmt.Errorf("sources[%d]: key must not be empty", i)
		}
		if seen[src.Key] {
			return fmt.Errorf("sources[%d]: duplicate key %q", i, src.Key)
		}
		seen[src.Key] = true

		u, err := url.Parse(src.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source %q: base_url %q must be an absolute http(s) URL", src.Key, src.BaseURL)
		}
		if len(src.Pages) == 0 {
			return fmt.Errorf("source %q: at least one page is required", src.Key)
		}
		for _, p := range src.Pages {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("source %q: empty page path", src.Key)
			}
		}
		if src.StalenessDays < 0 {
			return fmt.Errorf("source %q: staleness_days must not be negative", src.Key)
		}
	}
	return nil
}
