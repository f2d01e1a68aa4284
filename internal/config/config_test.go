package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"titlemonitor/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TITLEMONITOR_MONITORED_FILE", "~/bases/title/title.mst")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "titlemonitor")
	if cfg.State.Dir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.State.Dir, wantState)
	}
	wantMonitored := filepath.Join(tempHome, "bases", "title", "title.mst")
	if cfg.Monitor.MonitoredFile != wantMonitored {
		t.Fatalf("expected monitored file from env, got %q", cfg.Monitor.MonitoredFile)
	}
	if cfg.Monitor.ThrottleSeconds != 600 {
		t.Fatalf("expected 600 second default throttle, got %d", cfg.Monitor.ThrottleSeconds)
	}
	if !filepath.IsAbs(cfg.CISIS.Path) || filepath.Base(cfg.CISIS.Path) != "cisis" {
		t.Fatalf("expected absolute cisis path, got %q", cfg.CISIS.Path)
	}
	if cfg.Dispatch.ChangeProxy != config.ProxyDigest {
		t.Fatalf("expected digest proxy by default, got %q", cfg.Dispatch.ChangeProxy)
	}
	if cfg.State.Persist {
		t.Fatal("expected fingerprint persistence disabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.State.Dir); err != nil || !info.IsDir() {
		t.Fatalf("expected state dir to exist: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := config.Default()
	cfg.Monitor.MonitoredFile = filepath.Join(dir, "title.mst")
	cfg.Monitor.Collection = "ARG"
	cfg.Monitor.ThrottleSeconds = 30
	cfg.CISIS.Path = filepath.Join(dir, "cisis")
	cfg.CISIS.Encoding = "ISO-8859-1"
	cfg.Logging.Level = "WARNING"
	cfg.State.Dir = filepath.Join(dir, "state")

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q, got %q (exists=%v)", path, resolved, exists)
	}
	if loaded.Monitor.Collection != "arg" {
		t.Fatalf("expected lower-cased collection, got %q", loaded.Monitor.Collection)
	}
	if loaded.Throttle().Seconds() != 30 {
		t.Fatalf("unexpected throttle %s", loaded.Throttle())
	}
	if loaded.CISIS.Encoding != config.EncodingLatin1 {
		t.Fatalf("expected latin1 encoding, got %q", loaded.CISIS.Encoding)
	}
	if loaded.Logging.Level != "warn" {
		t.Fatalf("expected warn level, got %q", loaded.Logging.Level)
	}
	if loaded.MXBinary() != filepath.Join(dir, "cisis", "mx") {
		t.Fatalf("unexpected mx binary %q", loaded.MXBinary())
	}
	if loaded.LockPath() != filepath.Join(dir, "state", "titlemonitor.lock") {
		t.Fatalf("unexpected lock path %q", loaded.LockPath())
	}
	if err := loaded.ValidateMonitor(); err != nil {
		t.Fatalf("ValidateMonitor returned error: %v", err)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[monitor\nthrottle_seconds = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero throttle", func(c *config.Config) { c.Monitor.ThrottleSeconds = 0 }, "throttle_seconds"},
		{"negative throttle", func(c *config.Config) { c.Monitor.ThrottleSeconds = -5 }, "throttle_seconds"},
		{"unknown collection", func(c *config.Config) { c.Monitor.Collection = "xyz" }, "collection"},
		{"bad encoding", func(c *config.Config) { c.CISIS.Encoding = "ebcdic" }, "encoding"},
		{"bad catalog scheme", func(c *config.Config) { c.Catalog.URL = "tcp://10.0.0.1:4242" }, "catalog.url"},
		{"zero attempts", func(c *config.Config) { c.Catalog.RetryAttempts = 0 }, "retry_attempts"},
		{"bad proxy", func(c *config.Config) { c.Dispatch.ChangeProxy = "crc" }, "change_proxy"},
		{"bad concurrency", func(c *config.Config) { c.Dispatch.Concurrency = -1 }, "concurrency"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateMonitorRequiresFileAndCollection(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidateMonitor(); err == nil || !strings.Contains(err.Error(), "monitored_file") {
		t.Fatalf("expected monitored_file error, got %v", err)
	}
	cfg.Monitor.MonitoredFile = "/data/title.mst"
	if err := cfg.ValidateMonitor(); err == nil || !strings.Contains(err.Error(), "collection") {
		t.Fatalf("expected collection error, got %v", err)
	}
	cfg.Monitor.Collection = "sza"
	if err := cfg.ValidateMonitor(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseThrottle(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"600", 600, false},
		{" 15 ", 15, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"ten", 0, true},
		{"", 0, true},
		{"1.5", 0, true},
	}
	for _, tc := range tests {
		got, err := config.ParseThrottle(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseThrottle(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseThrottle(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseThrottle(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Monitor.Collection != "scl" {
		t.Fatalf("expected sample collection scl, got %q", cfg.Monitor.Collection)
	}
}
