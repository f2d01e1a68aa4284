package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeMonitor(); err != nil {
		return err
	}
	if err := c.normalizeCISIS(); err != nil {
		return err
	}
	c.normalizeCatalog()
	c.normalizeDispatch()
	if err := c.normalizeState(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

// Normalize re-applies path expansion and canonical casing. Callers that
// override fields after Load (CLI flags) run it before Validate.
func (c *Config) Normalize() error {
	return c.normalize()
}

func (c *Config) normalizeMonitor() error {
	if strings.TrimSpace(c.Monitor.MonitoredFile) == "" {
		if value, ok := os.LookupEnv("TITLEMONITOR_MONITORED_FILE"); ok {
			c.Monitor.MonitoredFile = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Monitor.MonitoredFile, err = expandPath(strings.TrimSpace(c.Monitor.MonitoredFile)); err != nil {
		return fmt.Errorf("monitor.monitored_file: %w", err)
	}
	c.Monitor.Collection = strings.ToLower(strings.TrimSpace(c.Monitor.Collection))
	return nil
}

func (c *Config) normalizeCISIS() error {
	if strings.TrimSpace(c.CISIS.Path) == "" {
		c.CISIS.Path = defaultCISISPath
	}
	var err error
	if c.CISIS.Path, err = expandPath(strings.TrimSpace(c.CISIS.Path)); err != nil {
		return fmt.Errorf("cisis.path: %w", err)
	}
	if c.CISIS.ExportTimeoutSeconds <= 0 {
		c.CISIS.ExportTimeoutSeconds = defaultExportTimeoutSeconds
	}
	switch strings.ToLower(strings.TrimSpace(c.CISIS.Encoding)) {
	case "", "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		c.CISIS.Encoding = EncodingLatin1
	case "utf-8", "utf8":
		c.CISIS.Encoding = EncodingUTF8
	default:
		c.CISIS.Encoding = strings.ToLower(strings.TrimSpace(c.CISIS.Encoding))
	}
	return nil
}

func (c *Config) normalizeCatalog() {
	if value, ok := os.LookupEnv("TITLEMONITOR_CATALOG_URL"); ok && strings.TrimSpace(value) != "" {
		c.Catalog.URL = value
	}
	c.Catalog.URL = strings.TrimSpace(c.Catalog.URL)
	if c.Catalog.URL == "" {
		c.Catalog.URL = defaultCatalogURL
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		c.Catalog.TimeoutSeconds = defaultCatalogTimeout
	}
	if c.Catalog.RetryDelaySeconds <= 0 {
		c.Catalog.RetryDelaySeconds = defaultCatalogRetryDelay
	}
}

func (c *Config) normalizeDispatch() {
	c.Dispatch.ChangeProxy = strings.ToLower(strings.TrimSpace(c.Dispatch.ChangeProxy))
	if c.Dispatch.ChangeProxy == "" {
		c.Dispatch.ChangeProxy = defaultChangeProxy
	}
	if c.Dispatch.Concurrency == 0 {
		c.Dispatch.Concurrency = defaultDispatchConcurrency
	}
}

func (c *Config) normalizeState() error {
	if strings.TrimSpace(c.State.Dir) == "" {
		c.State.Dir = defaultStateDir
	}
	var err error
	if c.State.Dir, err = expandPath(strings.TrimSpace(c.State.Dir)); err != nil {
		return fmt.Errorf("state.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	if c.Logging.Level == "critical" {
		c.Logging.Level = "error"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

// ParseThrottle converts a throttle value given in seconds. Non-numeric and
// non-positive values are rejected.
func ParseThrottle(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	seconds, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("throttle %q is not an integer number of seconds", trimmed)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("throttle must be positive, got %d", seconds)
	}
	return seconds, nil
}
