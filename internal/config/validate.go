package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable. Fields that may still be
// supplied on the command line (monitored file, collection) are checked by
// ValidateMonitor instead.
func (c *Config) Validate() error {
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateCISIS(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateMonitor ensures the fields required to start polling are present.
func (c *Config) ValidateMonitor() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Monitor.MonitoredFile) == "" {
		return errors.New("monitor.monitored_file is required (or pass --monitored-file)")
	}
	if c.Monitor.Collection == "" {
		return fmt.Errorf("monitor.collection is required; one of %s", strings.Join(Collections, ", "))
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.ThrottleSeconds <= 0 {
		return errors.New("monitor.throttle_seconds must be positive")
	}
	if c.Monitor.Collection != "" && !slices.Contains(Collections, c.Monitor.Collection) {
		return fmt.Errorf("monitor.collection %q is not supported; one of %s", c.Monitor.Collection, strings.Join(Collections, ", "))
	}
	return nil
}

func (c *Config) validateCISIS() error {
	switch c.CISIS.Encoding {
	case EncodingLatin1, EncodingUTF8:
	default:
		return fmt.Errorf("cisis.encoding %q is not supported; use %s or %s", c.CISIS.Encoding, EncodingLatin1, EncodingUTF8)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	parsed, err := url.Parse(c.Catalog.URL)
	if err != nil {
		return fmt.Errorf("catalog.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("catalog.url must use http or https, got %q", c.Catalog.URL)
	}
	if c.Catalog.RetryAttempts < 1 {
		return errors.New("catalog.retry_attempts must be >= 1")
	}
	if c.Catalog.RatePerSecond < 0 {
		return errors.New("catalog.rate_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	switch c.Dispatch.ChangeProxy {
	case ProxyDigest, ProxyLength:
	default:
		return fmt.Errorf("dispatch.change_proxy %q is not supported; use %s or %s", c.Dispatch.ChangeProxy, ProxyDigest, ProxyLength)
	}
	if c.Dispatch.Concurrency < 1 {
		return errors.New("dispatch.concurrency must be >= 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported; use console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
