// Package deps reports whether the external utilities titlemonitor shells
// out to are installed and executable.
package deps
