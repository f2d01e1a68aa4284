package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"titlemonitor/internal/config"
	"titlemonitor/internal/logging"
)

// monitorFlags holds command line overrides for config.toml values.
type monitorFlags struct {
	monitoredFile string
	cisisPath     string
	collection    string
	throttle      string
	logFile       string
	logLevel      string
}

type commandContext struct {
	configFlag *string
	flags      *monitorFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, flags *monitorFlags) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		flags:      flags,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := c.applyFlags(cfg); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) applyFlags(cfg *config.Config) error {
	if c.flags == nil {
		return nil
	}
	f := c.flags
	changed := false
	set := func(dst *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*dst = value
			changed = true
		}
	}
	set(&cfg.Monitor.MonitoredFile, f.monitoredFile)
	set(&cfg.CISIS.Path, f.cisisPath)
	set(&cfg.Monitor.Collection, f.collection)
	set(&cfg.Logging.File, f.logFile)
	set(&cfg.Logging.Level, f.logLevel)
	if strings.TrimSpace(f.throttle) != "" {
		seconds, err := config.ParseThrottle(f.throttle)
		if err != nil {
			return fmt.Errorf("--throttle: %w", err)
		}
		cfg.Monitor.ThrottleSeconds = seconds
		changed = true
	}
	if !changed {
		return nil
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	return cfg.Validate()
}

// commandLogger builds a logger that keeps stdout free for command output.
func (c *commandContext) commandLogger(cfg *config.Config) (*slog.Logger, error) {
	outputs := []string{"stderr"}
	if cfg.Logging.File != "" {
		outputs = append(outputs, cfg.Logging.File)
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
