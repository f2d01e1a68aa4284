// Package daemon runs the titlemonitor poll loop.
//
// A Scheduler validates the environment, takes a flock-based lock so only one
// process works a state directory, and then alternates between checking the
// monitored master file and sleeping for the throttle interval. Each check
// fingerprints the file through the detector and, when it changed, hands the
// converted records to the dispatcher.
//
// Cancellation is honoured only while idle: a check that has started runs to
// completion on a context detached from the caller's cancellation.
package daemon
