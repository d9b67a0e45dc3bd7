// Package config loads and validates marksync configuration.
//
// Configuration comes from a single file (YAML, TOML, or JSON; viper
// handles the format), with environment overrides under the MARKSYNC
// prefix. The loaded Config satisfies the engine's settings contract:
// notification gating, per-source folder, sort order, and filters.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marklab/marksync/internal/bookmark"
	"github.com/marklab/marksync/internal/ratelimit"
	"github.com/marklab/marksync/internal/retry"
)

// DaemonConfig tunes the background loop.
type DaemonConfig struct {
	// SyncInterval is how often the daemon runs a full syncAll.
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`

	// SweepInterval is how often idle rate-limiter state is purged.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// LogFile, when set, routes daemon logs through a rotating file.
	LogFile string `mapstructure:"log_file" yaml:"log_file,omitempty"`
}

// NotificationConfig gates user-visible sync notifications.
type NotificationConfig struct {
	Enabled   bool `mapstructure:"enabled" yaml:"enabled"`
	OnSuccess bool `mapstructure:"on_success" yaml:"on_success"`
	OnError   bool `mapstructure:"on_error" yaml:"on_error"`
}

// FilterConfig narrows which fetched items are mirrored. Substring
// matches against the item title, case-insensitive. An empty include
// list admits everything.
type FilterConfig struct {
	Include []string `mapstructure:"include" yaml:"include,omitempty"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
}

// Match reports whether a title passes the filter.
func (f FilterConfig) Match(title string) bool {
	lower := strings.ToLower(title)
	for _, ex := range f.Exclude {
		if strings.Contains(lower, strings.ToLower(ex)) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, in := range f.Include {
		if strings.Contains(lower, strings.ToLower(in)) {
			return true
		}
	}
	return false
}

// RateLimitConfig is the per-source limiter tuning.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests" yaml:"max_requests"`
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	Strategy    string        `mapstructure:"strategy" yaml:"strategy"`
}

// RetryConfig is the per-source retry tuning.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Strategy     string        `mapstructure:"strategy" yaml:"strategy"`
	Multiplier   float64       `mapstructure:"multiplier" yaml:"multiplier"`
	Jitter       bool          `mapstructure:"jitter" yaml:"jitter"`
}

// SourceConfig describes one sync source.
type SourceConfig struct {
	// Name is the source id, unique across the config.
	Name string `mapstructure:"name" yaml:"name"`

	// Type selects the registered provider constructor.
	Type string `mapstructure:"type" yaml:"type"`

	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// FolderID is the bookmark folder this source syncs into. A
	// source without a folder fails fast at sync time.
	FolderID string `mapstructure:"folder_id" yaml:"folder_id"`

	// FolderTitle is the base for the dynamic folder title; the item
	// count is appended. Empty means leave the folder title alone.
	FolderTitle string `mapstructure:"folder_title" yaml:"folder_title,omitempty"`

	// SortOrder: alphabetical (default), created, or updated.
	SortOrder string `mapstructure:"sort_order" yaml:"sort_order,omitempty"`

	// ConflictStrategy overrides the global default for this source.
	ConflictStrategy string `mapstructure:"conflict_strategy" yaml:"conflict_strategy,omitempty"`

	Filters   FilterConfig    `mapstructure:"filters" yaml:"filters,omitempty"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit,omitempty"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry,omitempty"`

	// Settings are provider-specific and passed to Configure.
	Settings map[string]any `mapstructure:"settings" yaml:"settings,omitempty"`
}

// Config is the root configuration.
type Config struct {
	// CheckpointPath locates the SQLite checkpoint database.
	CheckpointPath string `mapstructure:"checkpoint_path" yaml:"checkpoint_path"`

	// DashboardPort is where the WebSocket dashboard listens. Zero
	// disables the dashboard.
	DashboardPort int `mapstructure:"dashboard_port" yaml:"dashboard_port,omitempty"`

	Daemon        DaemonConfig       `mapstructure:"daemon" yaml:"daemon"`
	Notifications NotificationConfig `mapstructure:"notifications" yaml:"notifications"`
	Sources       []SourceConfig     `mapstructure:"sources" yaml:"sources"`
}

// Load reads configuration from path. An empty path searches the
// working directory and ~/.config/marksync for marksync.{yaml,toml,json}.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("marksync")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/marksync")
	}

	v.SetEnvPrefix("MARKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !(path == "" && errors.As(err, &notFound)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No file found during search is fine: defaults plus env.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("checkpoint_path", ".marksync/checkpoints.db")
	v.SetDefault("daemon.sync_interval", 5*time.Minute)
	v.SetDefault("daemon.sweep_interval", time.Minute)
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.on_success", true)
	v.SetDefault("notifications.on_error", true)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name: %s", src.Name)
		}
		seen[src.Name] = true
		if src.Type == "" {
			return fmt.Errorf("source %s: type is required", src.Name)
		}
		switch src.SortOrder {
		case "", "alphabetical", "created", "updated":
		default:
			return fmt.Errorf("source %s: unknown sort_order %q", src.Name, src.SortOrder)
		}
	}
	if c.Daemon.SyncInterval < 0 {
		return fmt.Errorf("daemon.sync_interval cannot be negative")
	}
	return nil
}

// Source returns the config for a source id.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return SourceConfig{}, false
}

// NotificationsEnabled implements the engine settings contract.
func (c *Config) NotificationsEnabled() bool { return c.Notifications.Enabled }

// NotifyOnSuccess implements the engine settings contract.
func (c *Config) NotifyOnSuccess() bool { return c.Notifications.OnSuccess }

// NotifyOnError implements the engine settings contract.
func (c *Config) NotifyOnError() bool { return c.Notifications.OnError }

// FolderID implements the engine settings contract.
func (c *Config) FolderID(providerID string) string {
	src, _ := c.Source(providerID)
	return src.FolderID
}

// FolderTitle implements the engine settings contract.
func (c *Config) FolderTitle(providerID string) string {
	src, _ := c.Source(providerID)
	return src.FolderTitle
}

// SortOrder implements the engine settings contract.
func (c *Config) SortOrder(providerID string) bookmark.SortOrder {
	src, _ := c.Source(providerID)
	switch src.SortOrder {
	case "created":
		return bookmark.SortCreated
	case "updated":
		return bookmark.SortUpdated
	default:
		return bookmark.SortAlphabetical
	}
}

// Filter implements the engine settings contract.
func (c *Config) Filter(providerID string, title string) bool {
	src, ok := c.Source(providerID)
	if !ok {
		return true
	}
	return src.Filters.Match(title)
}

// RateLimitFor converts a source's limiter tuning, falling back to the
// package default when unset.
func (s SourceConfig) RateLimitFor() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if s.RateLimit.MaxRequests > 0 {
		cfg.MaxRequests = s.RateLimit.MaxRequests
	}
	if s.RateLimit.Window > 0 {
		cfg.Window = s.RateLimit.Window
	}
	switch strings.ToUpper(s.RateLimit.Strategy) {
	case string(ratelimit.SlidingWindow):
		cfg.Strategy = ratelimit.SlidingWindow
	case string(ratelimit.FixedWindow):
		cfg.Strategy = ratelimit.FixedWindow
	case string(ratelimit.TokenBucket), "":
		cfg.Strategy = ratelimit.TokenBucket
	}
	return cfg
}

// RetryPolicy converts a source's retry tuning, falling back to the
// package default when unset.
func (s SourceConfig) RetryPolicy() *retry.Policy {
	p := retry.DefaultPolicy()
	if s.Retry.MaxRetries > 0 {
		p.MaxRetries = s.Retry.MaxRetries
	}
	if s.Retry.InitialDelay > 0 {
		p.InitialDelay = s.Retry.InitialDelay
	}
	if s.Retry.MaxDelay > 0 {
		p.MaxDelay = s.Retry.MaxDelay
	}
	if s.Retry.Multiplier > 0 {
		p.BackoffMultiplier = s.Retry.Multiplier
	}
	switch strings.ToUpper(s.Retry.Strategy) {
	case string(retry.BackoffConstant):
		p.Strategy = retry.BackoffConstant
	case string(retry.BackoffLinear):
		p.Strategy = retry.BackoffLinear
	case string(retry.BackoffExponential):
		p.Strategy = retry.BackoffExponential
	}
	p.UseJitter = s.Retry.Jitter
	return p
}

// YAML renders the effective configuration. Used by `marksync config
// show`.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(out), nil
}
