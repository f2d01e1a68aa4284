// Package logging assembles structured slog loggers for titlemonitor.
//
// It owns the console and JSON handlers, level parsing (including the legacy
// upper-case names), and rotated file output. Context helpers tag log lines
// with the poll cycle id and collection so a single check can be followed
// from file read to the last catalog call.
package logging
