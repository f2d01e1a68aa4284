// Package detector decides whether the monitored master file changed since
// the last poll and, when it did, converts it into records.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"titlemonitor/internal/fingerprint"
	"titlemonitor/internal/logging"
	"titlemonitor/internal/record"
	"titlemonitor/internal/services"
)

// Converter turns a master file into records.
type Converter interface {
	Convert(ctx context.Context, path string) ([]record.Record, error)
}

// Detector pairs a whole-file fingerprint with the converter.
type Detector struct {
	store     fingerprint.Store
	converter Converter
	logger    *slog.Logger
}

// New constructs a detector sharing store with the dispatcher.
func New(store fingerprint.Store, converter Converter, logger *slog.Logger) *Detector {
	return &Detector{
		store:     store,
		converter: converter,
		logger:    logging.NewComponentLogger(logger, "detector"),
	}
}

// Poll reads the file at path and reports whether its content changed.
// Unchanged content returns (nil, false, nil) without running the converter.
// A conversion failure forgets the file fingerprint so the next poll retries.
func (d *Detector) Poll(ctx context.Context, path string) ([]record.Record, bool, error) {
	logger := logging.WithContext(ctx, d.logger)

	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false, services.Wrap(services.ErrRead, "detector", "read", path, err)
	}

	if !d.store.Observe(key, content) {
		logger.Info("monitored file unchanged",
			logging.String(logging.FieldEventType, "poll_unchanged"),
			logging.Int("bytes", len(content)),
		)
		return nil, false, nil
	}

	logger.Info("monitored file changed; converting",
		logging.String(logging.FieldEventType, "poll_changed"),
		logging.Int("bytes", len(content)),
	)
	started := time.Now()
	records, err := d.converter.Convert(ctx, path)
	if err != nil {
		d.store.Forget(key)
		return nil, true, services.Wrap(services.ErrConversion, "detector", "convert", path, err)
	}
	logger.Info("master file converted",
		logging.String(logging.FieldEventType, "conversion_complete"),
		logging.Int("records", len(records)),
		logging.Duration("duration", time.Since(started)),
	)
	return records, true, nil
}

// Describe summarizes a poll outcome for CLI output.
func Describe(records int, changed bool) string {
	if !changed {
		return "unchanged"
	}
	return fmt.Sprintf("changed (%d records)", records)
}
