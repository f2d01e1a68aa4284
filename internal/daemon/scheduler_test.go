package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/juju/clock/testclock"

	"titlemonitor/internal/config"
	"titlemonitor/internal/daemon"
	"titlemonitor/internal/dispatch"
	"titlemonitor/internal/record"
	"titlemonitor/internal/services"
	"titlemonitor/internal/testsupport"
)

const waitTimeout = 5 * time.Second

type pollResult struct {
	records []record.Record
	changed bool
	err     error
}

type scriptedDetector struct {
	mu      sync.Mutex
	script  []pollResult
	calls   int
	polled  chan context.Context
	release chan struct{}
}

func newScriptedDetector(script ...pollResult) *scriptedDetector {
	return &scriptedDetector{script: script, polled: make(chan context.Context, 16)}
}

func (d *scriptedDetector) Poll(ctx context.Context, path string) ([]record.Record, bool, error) {
	d.mu.Lock()
	idx := d.calls
	d.calls++
	d.mu.Unlock()

	d.polled <- ctx
	if d.release != nil {
		<-d.release
	}
	if idx >= len(d.script) {
		return nil, false, nil
	}
	res := d.script[idx]
	return res.records, res.changed, res.err
}

func (d *scriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type countingDispatcher struct {
	mu      sync.Mutex
	batches [][]record.Record
	cycles  []string
}

func (d *countingDispatcher) Dispatch(ctx context.Context, records []record.Record, collection string) dispatch.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, records)
	id, _ := services.CycleIDFromContext(ctx)
	d.cycles = append(d.cycles, id)
	return dispatch.Report{Total: len(records), Sent: len(records)}
}

func (d *countingDispatcher) Batches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func readyConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t,
		testsupport.WithMasterFile([]byte("master v1")),
		testsupport.WithStubMX(nil),
	)
}

func journals(n int) []record.Record {
	out := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		rec := record.Record{}
		rec.Add(record.TagTitle, record.Field{record.MainValueKey: "Journal"})
		out = append(out, rec)
	}
	return out
}

func waitPoll(t *testing.T, d *scriptedDetector) context.Context {
	t.Helper()
	select {
	case ctx := <-d.polled:
		return ctx
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for poll")
		return nil
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for Run to return")
		return nil
	}
}

func startScheduler(t *testing.T, s *daemon.Scheduler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return cancel, done
}

func TestRunChecksImmediatelyThenEveryThrottle(t *testing.T) {
	cfg := readyConfig(t)
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	detector := newScriptedDetector(
		pollResult{records: journals(3), changed: true},
		pollResult{},
		pollResult{records: journals(1), changed: true},
	)
	dispatcher := &countingDispatcher{}

	s, err := daemon.New(cfg, detector, dispatcher, daemon.WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cancel, done := startScheduler(t, s)

	waitPoll(t, detector)
	for i := 0; i < 2; i++ {
		if err := clk.WaitAdvance(cfg.Throttle(), waitTimeout, 1); err != nil {
			t.Fatalf("WaitAdvance: %v", err)
		}
		waitPoll(t, detector)
	}
	// The third check must finish before the scheduler idles again.
	if err := clk.WaitAdvance(0, waitTimeout, 1); err != nil {
		t.Fatalf("wait for idle: %v", err)
	}
	if got := s.State(); got != daemon.StateIdle {
		t.Fatalf("expected idle between checks, got %s", got)
	}

	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("Run returned error on graceful stop: %v", err)
	}
	if s.State() != daemon.StateStopped {
		t.Fatalf("expected stopped state, got %s", s.State())
	}
	if detector.Calls() != 3 {
		t.Fatalf("expected 3 checks, got %d", detector.Calls())
	}
	if dispatcher.Batches() != 2 {
		t.Fatalf("expected 2 dispatches for 2 changed checks, got %d", dispatcher.Batches())
	}
	if dispatcher.cycles[0] == "" || dispatcher.cycles[0] == dispatcher.cycles[1] {
		t.Fatalf("expected distinct cycle ids, got %v", dispatcher.cycles)
	}
}

func TestRunFailsPreflight(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing file", func(c *config.Config) {
			if err := os.Remove(c.Monitor.MonitoredFile); err != nil {
				t.Fatalf("remove: %v", err)
			}
		}},
		{"wrong extension", func(c *config.Config) {
			c.Monitor.MonitoredFile = filepath.Join(testsupport.BaseDir(c), "title.txt")
			testsupport.WriteFile(t, c.Monitor.MonitoredFile, 8)
		}},
		{"missing mx", func(c *config.Config) { c.CISIS.Path = t.TempDir() }},
		{"zero throttle", func(c *config.Config) { c.Monitor.ThrottleSeconds = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := readyConfig(t)
			tc.mutate(cfg)
			detector := newScriptedDetector()
			s, err := daemon.New(cfg, detector, &countingDispatcher{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			err = s.Run(context.Background())
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if s.State() != daemon.StateFatal {
				t.Fatalf("expected fatal state, got %s", s.State())
			}
			if detector.Calls() != 0 {
				t.Fatal("detector must not run after failed preflight")
			}
		})
	}
}

func TestRunRetriesConversionErrorsByDefault(t *testing.T) {
	cfg := readyConfig(t)
	clk := testclock.NewClock(time.Now())
	conversionErr := services.Wrap(services.ErrConversion, "detector", "convert", "title.mst", errors.New("mx exit 1"))
	detector := newScriptedDetector(
		pollResult{changed: true, err: conversionErr},
		pollResult{records: journals(2), changed: true},
	)
	dispatcher := &countingDispatcher{}
	s, err := daemon.New(cfg, detector, dispatcher, daemon.WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cancel, done := startScheduler(t, s)

	waitPoll(t, detector)
	if err := clk.WaitAdvance(cfg.Throttle(), waitTimeout, 1); err != nil {
		t.Fatalf("WaitAdvance: %v", err)
	}
	waitPoll(t, detector)
	if err := clk.WaitAdvance(0, waitTimeout, 1); err != nil {
		t.Fatalf("wait for idle: %v", err)
	}
	cancel()
	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected graceful stop, got %v", err)
	}
	if dispatcher.Batches() != 1 {
		t.Fatalf("expected one dispatch after recovery, got %d", dispatcher.Batches())
	}
}

func TestRunStrictModeStopsOnConversionError(t *testing.T) {
	cfg := readyConfig(t)
	cfg.Monitor.Strict = true
	conversionErr := services.Wrap(services.ErrConversion, "detector", "convert", "title.mst", errors.New("mx exit 1"))
	detector := newScriptedDetector(pollResult{changed: true, err: conversionErr})
	s, err := daemon.New(cfg, detector, &countingDispatcher{}, daemon.WithClock(testclock.NewClock(time.Now())))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, done := startScheduler(t, s)
	err = waitDone(t, done)
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if s.State() != daemon.StateFatal {
		t.Fatalf("expected fatal state, got %s", s.State())
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := readyConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	s, err := daemon.New(cfg, newScriptedDetector(), &countingDispatcher{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.Run(context.Background())
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestCancelDuringCheckLetsItFinish(t *testing.T) {
	cfg := readyConfig(t)
	detector := newScriptedDetector(pollResult{records: journals(1), changed: true})
	detector.release = make(chan struct{})
	dispatcher := &countingDispatcher{}
	s, err := daemon.New(cfg, detector, dispatcher, daemon.WithClock(testclock.NewClock(time.Now())))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cancel, done := startScheduler(t, s)

	pollCtx := waitPoll(t, detector)
	cancel()
	if pollCtx.Err() != nil {
		t.Fatal("in-flight check must not observe cancellation")
	}
	close(detector.release)

	if err := waitDone(t, done); err != nil {
		t.Fatalf("expected graceful stop, got %v", err)
	}
	if dispatcher.Batches() != 1 {
		t.Fatalf("expected the in-flight dispatch to complete, got %d", dispatcher.Batches())
	}
	if detector.Calls() != 1 {
		t.Fatalf("expected no further checks after cancel, got %d", detector.Calls())
	}
}

func TestWatchWakesSchedulerEarly(t *testing.T) {
	cfg := readyConfig(t)
	cfg.Monitor.Watch = true
	cfg.Monitor.ThrottleSeconds = 3600
	detector := newScriptedDetector()
	s, err := daemon.New(cfg, detector, &countingDispatcher{}, daemon.WithClock(testclock.NewClock(time.Now())))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cancel, done := startScheduler(t, s)
	defer func() {
		cancel()
		_ = waitDone(t, done)
	}()

	waitPoll(t, detector)
	deadline := time.After(waitTimeout)
	for {
		testsupport.WriteBytes(t, cfg.Monitor.MonitoredFile, []byte("master v2"))
		select {
		case <-detector.polled:
			return
		case <-deadline:
			t.Fatal("file write did not wake the scheduler")
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func TestRunOnce(t *testing.T) {
	cfg := readyConfig(t)
	detector := newScriptedDetector(pollResult{records: journals(2), changed: true})
	dispatcher := &countingDispatcher{}
	s, err := daemon.New(cfg, detector, dispatcher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !result.Changed || result.Records != 2 || result.Report.Sent != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.CycleID == "" {
		t.Fatal("expected cycle id")
	}
	if s.State() != daemon.StateIdle {
		t.Fatalf("expected idle after RunOnce, got %s", s.State())
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := daemon.New(nil, newScriptedDetector(), &countingDispatcher{}); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := daemon.New(readyConfig(t), nil, &countingDispatcher{}); err == nil {
		t.Fatal("expected error for nil detector")
	}
}

func TestStateString(t *testing.T) {
	want := map[daemon.State]string{
		daemon.StateInitializing: "initializing",
		daemon.StateIdle:         "idle",
		daemon.StateChecking:     "checking",
		daemon.StateDispatching:  "dispatching",
		daemon.StateFatal:        "fatal",
		daemon.StateStopped:      "stopped",
	}
	for state, name := range want {
		if state.String() != name {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), name)
		}
	}
}
