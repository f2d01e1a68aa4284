// Package fingerprint records the last seen content digest per key and
// reports whether new content differs from it.
//
// Keys are the monitored file's absolute path for whole-file checks and
// collection acronym plus ISSN for individual records. A key that was never
// observed always counts as changed.
//
// Two stores implement Store:
//   - Memory: the default; fingerprints live for the process lifetime
//   - SQLite: durable fingerprints in <state_dir>/fingerprints.db
package fingerprint
