package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"titlemonitor/internal/record"
)

// Recorder is a Sink that writes each record as a JSON line instead of
// sending it.
type Recorder struct {
	mu    sync.Mutex
	w     io.Writer
	count int
}

// NewRecorder writes records to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

func (r *Recorder) AddJournal(_ context.Context, rec record.Record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	_, err = fmt.Fprintf(r.w, "%s %s\n", MethodAddJournal, encoded)
	return err
}

// Count reports how many records were recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
