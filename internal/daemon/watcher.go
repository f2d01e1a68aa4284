package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"titlemonitor/internal/logging"
)

// fileWatcher turns writes to the monitored database into wake signals.
// It watches the parent directory because CISIS utilities rewrite the master
// and cross-reference files in place or through renames.
type fileWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	dbName  string
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
	once    sync.Once
}

func newFileWatcher(path string, logger *slog.Logger) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(abs)
	fw := &fileWatcher{
		watcher: watcher,
		dir:     dir,
		dbName:  strings.TrimSuffix(base, filepath.Ext(base)),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}
	fw.wg.Add(1)
	go fw.processEvents()
	return fw, nil
}

// Wake receives at most one pending signal; bursts of events coalesce.
func (fw *fileWatcher) Wake() <-chan struct{} {
	return fw.wake
}

func (fw *fileWatcher) Close() error {
	var err error
	fw.once.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
		fw.wg.Wait()
	})
	return err
}

func (fw *fileWatcher) processEvents() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event) {
				continue
			}
			fw.logger.Debug("monitored database touched",
				logging.String("path", event.Name),
				logging.String("op", event.Op.String()),
			)
			select {
			case fw.wake <- struct{}{}:
			default:
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(fw.logger, "file watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes are picked up on the next throttle tick"),
			)
		}
	}
}

func (fw *fileWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	return strings.TrimSuffix(base, filepath.Ext(base)) == fw.dbName
}
