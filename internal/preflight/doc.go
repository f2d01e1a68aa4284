// Package preflight validates the environment before the monitor starts
// polling.
//
// These checks run in two contexts:
//   - The scheduler calls Validate while Initializing. Any failure is a
//     configuration error and the process exits without polling.
//   - The CLI "titlemonitor deps" command calls RunAll to display each
//     check, including catalog reachability, as a table.
package preflight
