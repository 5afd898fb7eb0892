package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/probo/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Target      TargetConfig   `toml:"target"`
	Session     SessionConfig  `toml:"session"`
	Browser     BrowserConfig  `toml:"browser"`
	Matrix      MatrixConfig   `toml:"matrix"`
	Runner      RunnerConfig   `toml:"runner"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Schedule    ScheduleConfig `toml:"schedule"`
	Server      ServerConfig   `toml:"server"`
}

// TargetConfig describes the system under test
type TargetConfig struct {
	BaseURL           string  `toml:"base_url" validate:"required,url"` // e.g. "https://jira.example.com"
	ProbePath         string  `toml:"probe_path"`                       // Lightweight authenticated page used for session validation
	LoginPath         string  `toml:"login_path"`                       // Login surface path - landing here means unauthenticated
	RequestsPerSecond float64 `toml:"requests_per_second"`              // Navigation pacing against the shared target (0 = unlimited)
}

// SessionConfig controls AuthSession lifecycle behavior
type SessionConfig struct {
	StalenessThreshold Duration `toml:"staleness_threshold"` // Age after which a captured session is considered expired (default: 8h)
	RefreshFraction    float64  `toml:"refresh_fraction"`    // Fraction of the threshold that triggers proactive refresh between batches (default: 0.8)
	CaptureTimeout     Duration `toml:"capture_timeout"`     // How long to wait for an interactive login during capture
	InteractiveCapture bool     `toml:"interactive_capture"` // Allow opening a headful browser for manual login when no stored session is usable
	UserAgent          string   `toml:"user_agent"`
}

// BrowserConfig controls the Chrome allocator
type BrowserConfig struct {
	Headless   bool `toml:"headless"`
	DisableGPU bool `toml:"disable_gpu"`
	NoSandbox  bool `toml:"no_sandbox"`
}

// MatrixConfig declares the test matrix: categories with parameter axes
type MatrixConfig struct {
	Categories []CategoryConfig `toml:"categories" validate:"required,dive"`
}

// CategoryConfig declares one category and its parameter axes. The generator
// cross-products browsers x viewports x scenarios; Planned is the declared
// spec count checked pre-flight.
type CategoryConfig struct {
	Name        string           `toml:"name" validate:"required"`
	Prefix      string           `toml:"prefix" validate:"required"` // Test id prefix, e.g. "DASH" -> DASH-001
	Type        string           `toml:"type"`                       // functional, performance, interaction
	Planned     int              `toml:"planned" validate:"gte=0"`   // Declared spec count (0 = derive from axes)
	LongRunning bool             `toml:"long_running"`               // Use the long per-test timeout
	Browsers    []string         `toml:"browsers"`
	Viewports   []ViewportConfig `toml:"viewports"`
	Scenarios   []ScenarioConfig `toml:"scenarios" validate:"required,dive"`
}

// ScenarioConfig declares one navigable scenario within a category
type ScenarioConfig struct {
	Name        string `toml:"name" validate:"required"`
	Path        string `toml:"path" validate:"required"`
	Query       string `toml:"query"`
	Concurrency int    `toml:"concurrency"` // Simulated concurrency for stress scenarios (sequential repeats)
}

// ViewportConfig declares an emulated viewport axis value
type ViewportConfig struct {
	Label  string `toml:"label"`
	Width  int64  `toml:"width"`
	Height int64  `toml:"height"`
}

// RunnerConfig controls batch execution
type RunnerConfig struct {
	BatchSize         int      `toml:"batch_size" validate:"gt=0"` // Tests per progress/refresh checkpoint
	TestTimeout       Duration `toml:"test_timeout"`               // Hard per-test ceiling (default: 30s)
	LongTestTimeout   Duration `toml:"long_test_timeout"`          // Ceiling for long-running flows (default: 90s)
	SoftLoadThreshold Duration `toml:"soft_load_threshold"`        // Load time beyond this is a warning
	HardLoadThreshold Duration `toml:"hard_load_threshold"`        // Load time beyond this is a failure
	EvidenceDir       string   `toml:"evidence_dir"`               // Screenshot artifacts for failed tests
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// ScheduleConfig enables unattended scheduled runs
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"` // Cron expression, e.g. "0 2 * * *"
}

// ServerConfig controls the read-only status/progress server
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// NewDefaultConfig returns a config with sensible defaults applied
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Target: TargetConfig{
			ProbePath:         "/secure/Dashboard.jspa",
			LoginPath:         "/login.jsp",
			RequestsPerSecond: 2,
		},
		Session: SessionConfig{
			StalenessThreshold: Duration{8 * time.Hour},
			RefreshFraction:    0.8,
			CaptureTimeout:     Duration{5 * time.Minute},
			InteractiveCapture: false,
			UserAgent:          "Probo-Runner/1.0",
		},
		Browser: BrowserConfig{
			Headless:   true,
			DisableGPU: true,
			NoSandbox:  false,
		},
		Runner: RunnerConfig{
			BatchSize:         5,
			TestTimeout:       Duration{30 * time.Second},
			LongTestTimeout:   Duration{90 * time.Second},
			SoftLoadThreshold: Duration{3 * time.Second},
			HardLoadThreshold: Duration{10 * time.Second},
			EvidenceDir:       "./results",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/probo",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Schedule: ScheduleConfig{
			Enabled: false,
		},
		Server: ServerConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    8085,
		},
	}
}

// LoadFromFiles loads configuration from defaults, then merges each config
// file in order (later files override earlier ones), then applies environment
// variable overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PROBO_TARGET_URL"); v != "" {
		config.Target.BaseURL = v
	}
	if v := os.Getenv("PROBO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("PROBO_STORAGE_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("PROBO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("PROBO_HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			config.Browser.Headless = headless
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration for structural and cross-field errors.
// A declared-vs-generated matrix mismatch is caught later by the generator;
// this catches everything that can be rejected before storage or browser
// startup.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Session.RefreshFraction <= 0 || c.Session.RefreshFraction > 1 {
		return fmt.Errorf("session.refresh_fraction must be in (0, 1], got %v", c.Session.RefreshFraction)
	}
	if c.Session.StalenessThreshold.Duration <= 0 {
		return fmt.Errorf("session.staleness_threshold must be positive, got %v", c.Session.StalenessThreshold)
	}
	if c.Runner.TestTimeout.Duration <= 0 || c.Runner.LongTestTimeout.Duration < c.Runner.TestTimeout.Duration {
		return fmt.Errorf("runner timeouts invalid: test_timeout=%v long_test_timeout=%v", c.Runner.TestTimeout, c.Runner.LongTestTimeout)
	}
	if c.Runner.SoftLoadThreshold.Duration > c.Runner.HardLoadThreshold.Duration {
		return fmt.Errorf("runner.soft_load_threshold %v exceeds hard_load_threshold %v", c.Runner.SoftLoadThreshold, c.Runner.HardLoadThreshold)
	}

	seen := make(map[string]string)
	for _, cat := range c.Matrix.Categories {
		if prev, ok := seen[cat.Prefix]; ok {
			return fmt.Errorf("matrix categories %q and %q share id prefix %q", prev, cat.Name, cat.Prefix)
		}
		seen[cat.Prefix] = cat.Name
	}

	return nil
}

// CategoryTestType maps a category's declared type string to the closed
// TestType set, defaulting to functional
func (cc *CategoryConfig) CategoryTestType() models.TestType {
	switch cc.Type {
	case string(models.TestTypePerformance):
		return models.TestTypePerformance
	case string(models.TestTypeInteraction):
		return models.TestTypeInteraction
	default:
		return models.TestTypeFunctional
	}
}
