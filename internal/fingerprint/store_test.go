package fingerprint_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"titlemonitor/internal/fingerprint"
	"titlemonitor/internal/logging"
)

func stores(t *testing.T) map[string]fingerprint.Store {
	t.Helper()
	durable, err := fingerprint.OpenSQLite(filepath.Join(t.TempDir(), "state", "fingerprints.db"), logging.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = durable.Close() })
	return map[string]fingerprint.Store{
		"memory": fingerprint.NewMemory(),
		"sqlite": durable,
	}
}

func TestDigest(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := fingerprint.Digest([]byte("hello")); got != want {
		t.Fatalf("Digest = %s, want %s", got, want)
	}
}

func TestObserveSemantics(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if !store.Observe("k", []byte("a")) {
				t.Fatal("first observation must report a change")
			}
			if store.Observe("k", []byte("a")) {
				t.Fatal("identical content must not report a change")
			}
			if !store.Observe("k", []byte("b")) {
				t.Fatal("different content must report a change")
			}
			if !store.Observe("k", []byte("a")) {
				t.Fatal("returning to earlier content is still a change")
			}
			if !store.Observe("other", []byte("a")) {
				t.Fatal("keys are independent")
			}
			if store.Len() != 2 {
				t.Fatalf("Len = %d, want 2", store.Len())
			}
		})
	}
}

func TestForgetMakesNextObserveChange(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			store.Observe("/data/title.mst", []byte("content"))
			store.Forget("/data/title.mst")
			if !store.Observe("/data/title.mst", []byte("content")) {
				t.Fatal("forgotten key must report a change")
			}
		})
	}
}

func TestEntriesSortedByKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			store.Observe("scl2", []byte("x"))
			store.Observe("arg1", []byte("y"))
			entries := store.Entries()
			if len(entries) != 2 || entries[0].Key != "arg1" || entries[1].Key != "scl2" {
				t.Fatalf("unexpected entries %+v", entries)
			}
			if entries[0].Digest != fingerprint.Digest([]byte("y")) {
				t.Fatalf("unexpected digest %s", entries[0].Digest)
			}
			if entries[0].UpdatedAt.IsZero() {
				t.Fatal("expected update time")
			}
		})
	}
}

func TestConcurrentObserveReportsOneChange(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				changes int
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if store.Observe("shared", []byte("same")) {
						mu.Lock()
						changes++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if changes != 1 {
				t.Fatalf("expected exactly one change, got %d", changes)
			}
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingerprints.db")
	first, err := fingerprint.OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for i := 0; i < 3; i++ {
		first.Observe(fmt.Sprintf("scl%04d", i), []byte("record"))
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := fingerprint.OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if second.Observe("scl0001", []byte("record")) {
		t.Fatal("fingerprint should survive a reopen")
	}

	removed, err := second.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 3 || second.Len() != 0 {
		t.Fatalf("Clear removed %d, Len now %d", removed, second.Len())
	}
}

func TestSQLiteFailsOpenWhenClosed(t *testing.T) {
	store, err := fingerprint.OpenSQLite(filepath.Join(t.TempDir(), "fingerprints.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	store.Observe("k", []byte("a"))
	_ = store.Close()

	if !store.Observe("k", []byte("a")) {
		t.Fatal("a failing store must report a change")
	}
}

func TestSQLiteRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingerprints.db")
	store, err := fingerprint.OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := store.SetSchemaVersionForTest(99); err != nil {
		t.Fatalf("bump schema: %v", err)
	}
	_ = store.Close()

	_, err = fingerprint.OpenSQLite(path, nil)
	if !errors.Is(err, fingerprint.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "state clear") {
		t.Fatalf("expected remediation hint, got %v", err)
	}
}
