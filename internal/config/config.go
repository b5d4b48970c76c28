package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	Pipeline  PipelineConfig            `yaml:"pipeline"`
	Retry     RetryConfig               `yaml:"retry"`
	Store     StoreConfig               `yaml:"store"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Events    EventsConfig              `yaml:"events"`
	Resources ResourcesConfig           `yaml:"resources"`
	Watch     WatchConfig               `yaml:"watch"`
	QA        QAConfig                  `yaml:"qa"`
	Tasks     map[string]map[string]any `yaml:"tasks"`

	path string
}

// PipelineConfig controls scheduling and the on-disk subject layout.
type PipelineConfig struct {
	SubjectsDir  string   `yaml:"subjects_dir"`
	Concurrency  int      `yaml:"concurrency"`    // tasks evaluated in parallel; 1 keeps declared order
	Threads      int      `yaml:"threads"`        // passed to tools that accept a thread count
	DryRun       bool     `yaml:"dry_run"`        // log commands instead of executing them
	FailFast     bool     `yaml:"fail_fast"`      // stop scheduling after the first failed task
	LogTailLines int      `yaml:"log_tail_lines"` // stderr lines kept on tool failure
	Only         []string `yaml:"only,omitempty"`
	Skip         []string `yaml:"skip,omitempty"`
}

// RetryConfig configures retries of command launches that fail before the tool runs.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// StoreConfig locates the SQLite run history.
type StoreConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// EventsConfig enables task lifecycle events on NATS. Empty URL disables publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// ResourcesConfig points at the bundle holding parcellation labels and tract queries.
// When URL is set the bundle is cloned (or pulled) into CacheDir; otherwise Dir is used as-is.
type ResourcesConfig struct {
	URL      string `yaml:"url,omitempty"`
	Branch   string `yaml:"branch,omitempty"`
	Dir      string `yaml:"dir"`
	CacheDir string `yaml:"cache_dir"`
}

// WatchConfig controls `neuroflow watch`.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Interval time.Duration `yaml:"interval"` // 0 disables periodic runs
}

// QAConfig controls QA image rendering and the subject report.
type QAConfig struct {
	Disabled    bool   `yaml:"disabled"`
	ReportDir   string `yaml:"report_dir"`
	Slicer      string `yaml:"slicer"`
	TrkRenderer string `yaml:"trk_renderer"`
}

// Path returns the file the configuration was loaded from (empty for in-memory configs).
func (c *Config) Path() string { return c.path }

// Default returns a configuration holding only defaults. Used by tests and `neuroflow init`.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", configPath).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			Fatal().WithContext("path", configPath).Build()
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}
	cfg.path = configPath
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config").Fatal().Build()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles loads .env and .env.local without overriding the existing environment.
func loadEnvFiles() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			slog.Warn("Failed to load env file", "path", envPath, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", envPath)
	}
}
