package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"titlemonitor/internal/config"
	"titlemonitor/internal/dispatch"
	"titlemonitor/internal/logging"
	"titlemonitor/internal/preflight"
	"titlemonitor/internal/record"
	"titlemonitor/internal/services"
)

// Clock is the subset of clock.Clock the scheduler needs. clock.WallClock and
// testclock.Clock both satisfy it.
type Clock interface {
	Now() time.Time
	After(time.Duration) <-chan time.Time
}

// Detector reports whether the monitored file changed and converts it.
type Detector interface {
	Poll(ctx context.Context, path string) ([]record.Record, bool, error)
}

// Dispatcher sends the changed records of a converted file.
type Dispatcher interface {
	Dispatch(ctx context.Context, records []record.Record, collection string) dispatch.Report
}

// CycleResult summarizes one check.
type CycleResult struct {
	CycleID  string
	Changed  bool
	Records  int
	Report   dispatch.Report
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(clk Clock) Option {
	return func(s *Scheduler) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logging.NewComponentLogger(logger, "scheduler")
	}
}

// Scheduler drives the check/sleep loop for one monitored file.
type Scheduler struct {
	cfg        *config.Config
	detector   Detector
	dispatcher Dispatcher
	clock      Clock
	logger     *slog.Logger

	mu    sync.Mutex
	state State
}

// New constructs a scheduler. cfg supplies the monitored file, collection,
// throttle, strict mode, watch mode, and lock path.
func New(cfg *config.Config, detector Detector, dispatcher Dispatcher, opts ...Option) (*Scheduler, error) {
	if cfg == nil || detector == nil || dispatcher == nil {
		return nil, errors.New("scheduler requires config, detector, and dispatcher")
	}
	s := &Scheduler{
		cfg:        cfg,
		detector:   detector,
		dispatcher: dispatcher,
		clock:      clock.WallClock,
		logger:     logging.NewComponentLogger(nil, "scheduler"),
		state:      StateInitializing,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.logger.Debug("scheduler state changed",
			logging.String("from", prev.String()),
			logging.String("to", next.String()),
		)
	}
}

// Run validates the environment, takes the state lock, and loops until ctx
// is cancelled. The first check runs immediately. A graceful stop returns
// nil; validation failures, lock contention, and (in strict mode) read or
// conversion failures return an error and leave the scheduler Fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setState(StateInitializing)
	s.logStartup()

	if err := preflight.Validate(s.cfg); err != nil {
		return s.fail(err)
	}
	lock, err := acquireLock(s.cfg.LockPath())
	if err != nil {
		return s.fail(err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("release lock failed", logging.Error(err))
		}
	}()

	var wake <-chan struct{}
	if s.cfg.Monitor.Watch {
		watcher, err := newFileWatcher(s.cfg.Monitor.MonitoredFile, s.logger)
		if err != nil {
			logging.WarnWithContext(s.logger, "file watcher unavailable", "watcher_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes are picked up on the throttle interval only"),
			)
		} else {
			defer watcher.Close()
			wake = watcher.Wake()
		}
	}

	throttle := s.cfg.Throttle()
	for ctx.Err() == nil {
		result := s.cycle(ctx)
		if result.Err != nil && services.IsFatal(result.Err, s.cfg.Monitor.Strict) {
			return s.fail(result.Err)
		}

		s.setState(StateIdle)
		select {
		case <-ctx.Done():
		case <-s.clock.After(throttle):
		case <-wake:
			s.logger.Info("monitored file written; checking early",
				logging.String(logging.FieldEventType, "watch_wake"),
			)
		}
	}

	s.setState(StateStopped)
	s.logger.Info("titlemonitor stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
	return nil
}

// RunOnce validates the environment and performs a single check under the
// state lock. Read and conversion failures are returned; dispatch failures
// are only reported in the result.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, error) {
	s.setState(StateInitializing)
	if err := preflight.Validate(s.cfg); err != nil {
		return CycleResult{}, s.fail(err)
	}
	lock, err := acquireLock(s.cfg.LockPath())
	if err != nil {
		return CycleResult{}, s.fail(err)
	}
	defer func() { _ = lock.Unlock() }()

	result := s.cycle(ctx)
	s.setState(StateIdle)
	return result, result.Err
}

func (s *Scheduler) cycle(ctx context.Context) CycleResult {
	result := CycleResult{CycleID: uuid.NewString(), Started: s.clock.Now()}
	work := services.WithCycleID(context.WithoutCancel(ctx), result.CycleID)
	work = services.WithCollection(work, s.cfg.Monitor.Collection)
	logger := logging.WithContext(work, s.logger)

	s.setState(StateChecking)
	records, changed, err := s.detector.Poll(work, s.cfg.Monitor.MonitoredFile)
	result.Changed = changed
	result.Records = len(records)
	if err != nil {
		result.Err = err
		s.logCycleError(logger, err)
		result.Duration = s.clock.Now().Sub(result.Started)
		return result
	}

	if changed {
		s.setState(StateDispatching)
		result.Report = s.dispatcher.Dispatch(work, records, s.cfg.Monitor.Collection)
		if dispatchErr := result.Report.Err(); dispatchErr != nil {
			logger.Warn("some journals were not delivered",
				logging.String(logging.FieldEventType, "cycle_dispatch_incomplete"),
				logging.Int("failed", result.Report.Failed),
				logging.Error(dispatchErr),
			)
		}
	}

	result.Duration = s.clock.Now().Sub(result.Started)
	logger.Info("check complete",
		logging.String(logging.FieldEventType, "cycle_complete"),
		logging.Bool("changed", result.Changed),
		logging.Int("records", result.Records),
		logging.Int("sent", result.Report.Sent),
		logging.Int("skipped", result.Report.Skipped),
		logging.Int("failed", result.Report.Failed),
	)
	return result
}

func (s *Scheduler) logCycleError(logger *slog.Logger, err error) {
	impact := "retrying on the next check"
	if services.IsFatal(err, s.cfg.Monitor.Strict) {
		impact = "strict mode: titlemonitor will stop"
	}
	switch {
	case errors.Is(err, services.ErrRead):
		logging.WarnWithContext(logger, "monitored file could not be read", "poll_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the master file exists and is readable"),
			logging.String(logging.FieldImpact, impact),
		)
	default:
		logging.ErrorWithContext(logger, "master file conversion failed", "poll_conversion_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, "run titlemonitor convert to see the mx output"),
			logging.String(logging.FieldImpact, impact),
		)
	}
}

func (s *Scheduler) fail(err error) error {
	s.setState(StateFatal)
	logging.ErrorWithContext(s.logger, "titlemonitor cannot continue", "scheduler_fatal",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
		logging.String(logging.FieldErrorHint, "fix the reported problem and restart"),
		logging.String(logging.FieldImpact, "no journals are sent"),
	)
	return err
}

func (s *Scheduler) logStartup() {
	s.logger.Info("titlemonitor starting",
		logging.String(logging.FieldEventType, "scheduler_start"),
		logging.String("monitored_file", s.cfg.Monitor.MonitoredFile),
		logging.String(logging.FieldCollection, s.cfg.Monitor.Collection),
	)
	s.logger.Debug("throttle", logging.Duration("interval", s.cfg.Throttle()))
	s.logger.Debug("monitored file", logging.String("path", s.cfg.Monitor.MonitoredFile))
	s.logger.Debug("cisis path", logging.String("path", s.cfg.CISIS.Path))
	s.logger.Debug("runtime options",
		logging.Bool("strict", s.cfg.Monitor.Strict),
		logging.Bool("watch", s.cfg.Monitor.Watch),
		logging.Bool("persist", s.cfg.State.Persist),
		logging.String("change_proxy", s.cfg.Dispatch.ChangeProxy),
	)
	if s.cfg.Dispatch.ChangeProxy == config.ProxyLength {
		logging.WarnWithContext(s.logger, "length change proxy selected", "length_proxy",
			logging.String(logging.FieldErrorHint, "set dispatch.change_proxy = \"digest\""),
			logging.String(logging.FieldImpact, "edits that keep a record's serialized length are not sent"),
		)
	}
}
