// Package catalog talks to the remote journal catalog.
//
// Client issues JSON-RPC 2.0 calls over HTTP POST. Each call waits on a
// token-bucket limiter, carries a fresh UUID request id, and is retried on
// transport failures, HTTP 429, and 5xx responses. JSON-RPC error objects
// and other HTTP statuses fail immediately.
//
// Recorder is a Sink that prints records instead of sending them; the
// "check --dry-run" command uses it.
package catalog
