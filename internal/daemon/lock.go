package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"titlemonitor/internal/services"
)

// ErrAlreadyRunning reports that another process holds the state lock.
var ErrAlreadyRunning = errors.New("another titlemonitor instance is already running")

func acquireLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "lock", "create state directory", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "lock", "acquire lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "lock",
			fmt.Sprintf("lock held at %s", path), ErrAlreadyRunning)
	}
	return lock, nil
}
