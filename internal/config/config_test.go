package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Archive.Path != "./archive" || !cfg.Archive.Compress {
		t.Fatalf("unexpected archive defaults: %+v", cfg.Archive)
	}
	if cfg.Archive.RefreshAfter != 7*24*time.Hour {
		t.Fatalf("expected 7 day refresh threshold, got %v", cfg.Archive.RefreshAfter)
	}
	if cfg.Lock.Grace != 24*time.Hour {
		t.Fatalf("expected 24h grace, got %v", cfg.Lock.Grace)
	}
	if len(cfg.Sites) != 2 {
		t.Fatalf("expected default sites, got %d", len(cfg.Sites))
	}
	site, ok := cfg.Site("mega.nz")
	if !ok {
		t.Fatal("expected mega.nz site")
	}
	if site.Name != "meganz" || site.WaitSelector != archive.DefaultWaitSelector {
		t.Fatalf("expected site defaults applied: %+v", site)
	}
	if got := cfg.NavigationTimeout(); got != 90*time.Second {
		t.Fatalf("expected 90s navigation timeout, got %v", got)
	}
	if !cfg.Capture.Enabled || cfg.Capture.RatePerSecond != 0.5 || cfg.Capture.RateBurst != 1 {
		t.Fatalf("unexpected capture defaults: %+v", cfg.Capture)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
archive:
  path: /var/lib/bundles
  compress: false
  refresh_after: 48h
lock:
  grace: 2h
capture:
  mobile_device: Pixel 2
  nav_timeout_seconds: 30
  max_parallel_fetches: 2
server:
  port: 9090
pubsub:
  project_id: proj
  topic_name: archived
logging:
  development: false
sites:
  - domain: mega.io
    rules: megaio
    required: [main]
  - domain: staging.mega.nz
    name: staging
    rules: meganz
    mobile: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Archive.Path != "/var/lib/bundles" || cfg.Archive.Compress {
		t.Fatalf("expected archive overrides to apply: %+v", cfg.Archive)
	}
	if cfg.Archive.RefreshAfter != 48*time.Hour || cfg.Lock.Grace != 2*time.Hour {
		t.Fatalf("expected durations to parse: %+v %+v", cfg.Archive, cfg.Lock)
	}
	if cfg.Capture.MobileDevice != "Pixel 2" || cfg.Server.Port != 9090 {
		t.Fatalf("expected capture/server overrides to apply")
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if len(cfg.Sites) != 2 {
		t.Fatalf("expected configured sites only, got %d", len(cfg.Sites))
	}
	staging, ok := cfg.Site("staging")
	if !ok || !staging.Mobile || staging.Domain != "staging.mega.nz" {
		t.Fatalf("expected staging site: %+v", staging)
	}
	if _, ok := cfg.Site("meganz"); ok {
		t.Fatal("default sites must not be merged into configured ones")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty path", func(c *Config) { c.Archive.Path = " " }, "archive.path"},
		{"refresh threshold", func(c *Config) { c.Archive.RefreshAfter = 0 }, "archive.refresh_after"},
		{"grace", func(c *Config) { c.Lock.Grace = -time.Second }, "lock.grace"},
		{"nav timeout", func(c *Config) { c.Capture.NavTimeoutSeconds = 0 }, "capture.nav_timeout_seconds"},
		{"parallel fetches", func(c *Config) { c.Capture.MaxParallelFetches = 0 }, "capture.max_parallel_fetches"},
		{"capture rate", func(c *Config) { c.Capture.RatePerSecond = -1 }, "capture.rate_per_second"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"pubsub project", func(c *Config) { c.PubSub.TopicName = "t" }, "pubsub.project_id"},
		{"selftest line", func(c *Config) { c.SelfTest.Line = 0 }, "selftest.line"},
		{"selftest kind", func(c *Config) { c.SelfTest.Kind = "styles" }, "selftest.kind"},
		{"site domain", func(c *Config) { c.Sites = []archive.Site{{Name: "x", Rules: "meganz"}} }, "sites[0].domain"},
		{"duplicate site", func(c *Config) { c.Sites = append(c.Sites, c.Sites[0]) }, "duplicate site"},
		{"rule set", func(c *Config) { c.Sites[0].Rules = "nope" }, "sites[0].rules"},
		{"required kind", func(c *Config) { c.Sites[0].Required = []string{"css"} }, "sites[0].required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Sites = append([]archive.Site(nil), base.Sites...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}
