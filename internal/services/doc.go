// Package services defines shared utilities consumed by the monitor pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp poll cycle IDs, collection acronyms, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the scheduler
//     decide whether a failure stops the process or waits for the next cycle.
//
// Use these helpers when wiring new pipeline steps so operational behaviour
// (error handling, observability) stays uniform.
package services
