package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Monitor contains the monitored database and polling cadence.
type Monitor struct {
	MonitoredFile   string `toml:"monitored_file"`
	Collection      string `toml:"collection"`
	ThrottleSeconds int    `toml:"throttle_seconds"`
	// Strict restores the fail-fast handling of read and conversion errors.
	Strict bool `toml:"strict"`
	// Watch wakes the poller early when the monitored file is written.
	Watch bool `toml:"watch"`
}

// CISIS contains configuration for the CISIS utilities used to export the
// monitored master file.
type CISIS struct {
	Path                 string `toml:"path"`
	ExportTimeoutSeconds int    `toml:"export_timeout_seconds"`
	Encoding             string `toml:"encoding"`
}

// Catalog contains configuration for the remote catalog RPC endpoint.
type Catalog struct {
	URL               string  `toml:"url"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RetryAttempts     int     `toml:"retry_attempts"`
	RetryDelaySeconds int     `toml:"retry_delay_seconds"`
	RatePerSecond     float64 `toml:"rate_per_second"`
}

// Dispatch contains configuration for per-record change detection and fan-out.
type Dispatch struct {
	ChangeProxy string `toml:"change_proxy"`
	Concurrency int    `toml:"concurrency"`
}

// State contains configuration for runtime state (lock file, fingerprints).
type State struct {
	Dir     string `toml:"dir"`
	Persist bool   `toml:"persist"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for titlemonitor.
//
// Configuration sections by subsystem:
//   - Monitor: monitored master file, collection, and throttle
//   - CISIS: mx utility location and export settings
//   - Catalog: remote catalog RPC endpoint
//   - Dispatch: record change proxy and send concurrency
//   - State: lock file and optional durable fingerprints
//   - Logging: log format, level, and file rotation
type Config struct {
	Monitor  Monitor  `toml:"monitor"`
	CISIS    CISIS    `toml:"cisis"`
	Catalog  Catalog  `toml:"catalog"`
	Dispatch Dispatch `toml:"dispatch"`
	State    State    `toml:"state"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("titlemonitor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory and, when a log file is
// configured, its parent directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.State.Dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.State.Dir, err)
	}
	if file := strings.TrimSpace(c.Logging.File); file != "" {
		dir := filepath.Dir(file)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory %q: %w", dir, err)
		}
	}
	return nil
}

// MXBinary returns the absolute path of the CISIS mx utility.
func (c *Config) MXBinary() string {
	return filepath.Join(c.CISIS.Path, "mx")
}

// Throttle returns the delay between poll cycles.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.Monitor.ThrottleSeconds) * time.Second
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.State.Dir, "titlemonitor.lock")
}

// FingerprintDBPath returns the SQLite database used when state.persist is set.
func (c *Config) FingerprintDBPath() string {
	return filepath.Join(c.State.Dir, "fingerprints.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
