package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store remembers one digest per key.
type Store interface {
	// Observe stores the digest of raw under key and reports true when the
	// key was absent or its digest differed. Unchanged content leaves the
	// store untouched and reports false.
	Observe(key string, raw []byte) bool
	// Forget drops key so the next Observe reports a change.
	Forget(key string)
	// Len reports the number of tracked keys.
	Len() int
	// Entries lists the tracked keys sorted by key.
	Entries() []Entry
}

// Entry is a stored fingerprint.
type Entry struct {
	Key       string
	Digest    string
	UpdatedAt time.Time
}

// Digest returns the lowercase hex SHA-256 of raw.
func Digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
