package infra

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every configuration variable.
const EnvPrefix = "WEBMON"

// Config holds all daemon configuration.
type Config struct {
	Sync    SyncConfig
	Bridge  BridgeConfig
	Tracker TrackerConfig
	Browser BrowserConfig
	Store   StoreConfig
	Log     LogConfig
}

// SyncConfig holds the control peer channel settings.
type SyncConfig struct {
	URL        string        `envconfig:"URL" default:"ws://127.0.0.1:5000/ws"`
	RetryDelay time.Duration `envconfig:"RETRY_DELAY" default:"5s"`
}

// BridgeConfig holds the local bridge listener settings.
type BridgeConfig struct {
	Addr string `envconfig:"ADDR" default:"127.0.0.1:7878"`
}

// TrackerConfig holds scheduler intervals and the redirect target.
type TrackerConfig struct {
	FocusPollInterval time.Duration `envconfig:"FOCUS_POLL_INTERVAL" default:"500ms"`
	FeedInterval      time.Duration `envconfig:"FEED_INTERVAL" default:"1s"`
	TelemetryInterval time.Duration `envconfig:"TELEMETRY_INTERVAL" default:"1s"`
	RedirectURL       string        `envconfig:"REDIRECT_URL" default:"redirect.html"`
}

// BrowserConfig lists the process names that count as "browser running".
type BrowserConfig struct {
	ProcessNames []string `envconfig:"PROCESSES" default:"chrome,Google Chrome,chromium,brave,msedge,firefox"`
}

// StoreConfig holds storage settings. An empty DataDir means the per-user default.
type StoreConfig struct {
	DataDir string `envconfig:"DATA_DIR"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// LoadConfig loads configuration from WEBMON_* environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the scheduler can't run with.
func (c *Config) Validate() error {
	if c.Sync.RetryDelay <= 0 {
		return fmt.Errorf("sync retry delay must be positive, got %s", c.Sync.RetryDelay)
	}
	for name, d := range map[string]time.Duration{
		"focus poll interval": c.Tracker.FocusPollInterval,
		"feed interval":       c.Tracker.FeedInterval,
		"telemetry interval":  c.Tracker.TelemetryInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Bridge.Addr == "" {
		return fmt.Errorf("bridge address is required")
	}
	return nil
}

// DefaultConfig returns the defaults without reading the environment.
// It must match the default tags above.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			URL:        "ws://127.0.0.1:5000/ws",
			RetryDelay: 5 * time.Second,
		},
		Bridge: BridgeConfig{
			Addr: "127.0.0.1:7878",
		},
		Tracker: TrackerConfig{
			FocusPollInterval: 500 * time.Millisecond,
			FeedInterval:      time.Second,
			TelemetryInterval: time.Second,
			RedirectURL:       "redirect.html",
		},
		Browser: BrowserConfig{
			ProcessNames: []string{"chrome", "Google Chrome", "chromium", "brave", "msedge", "firefox"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
