// Package config loads, normalizes, and validates titlemonitor configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TITLEMONITOR_MONITORED_FILE. The Config type centralizes every knob the
// daemon and CLI need so the monitored file, CISIS utilities, catalog
// endpoint, and state directory are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log levels, and clear validation errors.
package config
