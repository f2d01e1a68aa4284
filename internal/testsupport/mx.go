package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// MXVersion is the banner printed by the stub for "mx what".
const MXVersion = "CISIS Interface v5.5.pre02/GC/512G/W/L4/M/32767/16/60/I - Utility MX"

// WriteStubMX writes an executable mx into dir. The stub answers "what"
// with MXVersion and copies iso to the path given as iso=<path>.
func WriteStubMX(t testing.TB, dir string, iso []byte) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir cisis dir: %v", err)
	}
	fixture := filepath.Join(dir, "export.fixture")
	if err := os.WriteFile(fixture, iso, 0o644); err != nil {
		t.Fatalf("write iso fixture: %v", err)
	}
	script := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "what" ]; then
  echo %q
  exit 0
fi
for arg in "$@"; do
  case "$arg" in
    iso=*) cp %q "${arg#iso=}" || exit 2 ;;
  esac
done
exit 0
`, MXVersion, fixture)
	return writeExecutable(t, filepath.Join(dir, "mx"), script)
}

// WriteFailingMX writes an mx stub that prints message and exits 1.
func WriteFailingMX(t testing.TB, dir, message string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir cisis dir: %v", err)
	}
	script := fmt.Sprintf("#!/bin/sh\necho %q >&2\nexit 1\n", message)
	return writeExecutable(t, filepath.Join(dir, "mx"), script)
}

// writeExecutable replaces path with an executable script. An existing file
// is removed first since os.WriteFile keeps the mode of a file it truncates.
func writeExecutable(t testing.TB, path, script string) string {
	t.Helper()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		t.Fatalf("remove %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write mx stub: %v", err)
	}
	return path
}
