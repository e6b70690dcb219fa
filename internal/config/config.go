// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/classify"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Lock     LockConfig     `mapstructure:"lock"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	SelfTest SelfTestConfig `mapstructure:"selftest"`
	Sites    []archive.Site `mapstructure:"sites"`
}

// ArchiveConfig locates the archive and sets the refresh policy.
type ArchiveConfig struct {
	Path         string        `mapstructure:"path"`
	Compress     bool          `mapstructure:"compress"`
	RefreshAfter time.Duration `mapstructure:"refresh_after"`
}

// LockConfig controls the pending-lookup marker.
type LockConfig struct {
	Grace time.Duration `mapstructure:"grace"`
}

// CaptureConfig configures the headless browser. With Enabled false lookups keep
// working on an existing archive without Chrome. RatePerSecond caps page loads
// per host; 0 disables the limit.
type CaptureConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	MobileDevice       string  `mapstructure:"mobile_device"`
	NavTimeoutSeconds  int     `mapstructure:"nav_timeout_seconds"`
	MaxParallelFetches int     `mapstructure:"max_parallel_fetches"`
	UserAgent          string  `mapstructure:"user_agent"`
	RatePerSecond      float64 `mapstructure:"rate_per_second"`
	RateBurst          int     `mapstructure:"rate_burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig configures the optional textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StorageConfig sets the optional GCS mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SelfTestConfig names the line the selftest command checks.
type SelfTestConfig struct {
	Domain string `mapstructure:"domain"`
	Kind   string `mapstructure:"kind"`
	Line   int    `mapstructure:"line"`
	Token  string `mapstructure:"token"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applySiteDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("archive.path", "./archive")
	v.SetDefault("archive.compress", true)
	v.SetDefault("archive.refresh_after", 7*24*time.Hour)
	v.SetDefault("lock.grace", 24*time.Hour)
	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.mobile_device", "iPhone 8 Plus")
	v.SetDefault("capture.nav_timeout_seconds", 90)
	v.SetDefault("capture.max_parallel_fetches", 4)
	v.SetDefault("capture.user_agent", "")
	v.SetDefault("capture.rate_per_second", 0.5)
	v.SetDefault("capture.rate_burst", 1)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.prefix", "bundles")
	v.SetDefault("selftest.domain", "meganz")
	v.SetDefault("selftest.kind", "main")
	v.SetDefault("selftest.line", 2)
	v.SetDefault("selftest.token", "sjcl.js")
}

func (c *Config) applySiteDefaults() {
	if len(c.Sites) == 0 {
		c.Sites = archive.DefaultSites()
	}
	for i := range c.Sites {
		c.Sites[i] = c.Sites[i].WithDefaults()
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Archive.Path) == "" {
		return fmt.Errorf("archive.path is required")
	}
	if c.Archive.RefreshAfter <= 0 {
		return fmt.Errorf("archive.refresh_after must be > 0")
	}
	if c.Lock.Grace <= 0 {
		return fmt.Errorf("lock.grace must be > 0")
	}
	if c.Capture.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("capture.nav_timeout_seconds must be > 0")
	}
	if c.Capture.MaxParallelFetches <= 0 {
		return fmt.Errorf("capture.max_parallel_fetches must be > 0")
	}
	if c.Capture.RatePerSecond < 0 {
		return fmt.Errorf("capture.rate_per_second must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.SelfTest.Line <= 0 {
		return fmt.Errorf("selftest.line must be > 0")
	}
	if _, err := archive.ParseKind(c.SelfTest.Kind); err != nil {
		return fmt.Errorf("selftest.kind: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Sites))
	for i, site := range c.Sites {
		if strings.TrimSpace(site.Domain) == "" {
			return fmt.Errorf("sites[%d].domain is required", i)
		}
		if _, dup := seen[site.Name]; dup {
			return fmt.Errorf("sites[%d]: duplicate site name %q", i, site.Name)
		}
		seen[site.Name] = struct{}{}
		if _, err := classify.Lookup(site.Rules); err != nil {
			return fmt.Errorf("sites[%d].rules: %w", i, err)
		}
		for _, raw := range site.Required {
			if _, err := archive.ParseKind(raw); err != nil {
				return fmt.Errorf("sites[%d].required: %w", i, err)
			}
		}
	}
	return nil
}

// NavigationTimeout converts the capture timeout into a duration.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Capture.NavTimeoutSeconds) * time.Second
}

// Site returns the site whose artifact prefix is name.
func (c Config) Site(name string) (archive.Site, bool) {
	name = archive.DomainName(name)
	for _, site := range c.Sites {
		if site.Name == name || archive.DomainName(site.Domain) == name {
			return site, true
		}
	}
	return archive.Site{}, false
}
