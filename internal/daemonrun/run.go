package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"titlemonitor/internal/catalog"
	"titlemonitor/internal/config"
	"titlemonitor/internal/daemon"
	"titlemonitor/internal/deps"
	"titlemonitor/internal/detector"
	"titlemonitor/internal/dispatch"
	"titlemonitor/internal/fingerprint"
	"titlemonitor/internal/isis"
	"titlemonitor/internal/logging"
)

const versionProbeTimeout = 10 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Runtime holds the wired components of one titlemonitor process.
type Runtime struct {
	Scheduler  *daemon.Scheduler
	Store      fingerprint.Store
	Converter  *isis.Converter
	Dispatcher *dispatch.Dispatcher

	closers []func() error
}

// Close releases the fingerprint store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build wires the store, converter, sink, dispatcher, detector, and
// scheduler for cfg. A nil sink selects the catalog JSON-RPC client.
func Build(cfg *config.Config, logger *slog.Logger, sink dispatch.Sink) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := &Runtime{}

	store, closer, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.Store = store
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}

	converter, err := isis.New(cfg.CISIS.Path, cfg.CISIS.ExportTimeoutSeconds,
		isis.WithEncoding(cfg.CISIS.Encoding),
		isis.WithLogger(logger),
	)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("create converter: %w", err)
	}
	rt.Converter = converter

	if sink == nil {
		client, err := catalog.New(catalog.Config{
			URL:               cfg.Catalog.URL,
			TimeoutSeconds:    cfg.Catalog.TimeoutSeconds,
			RetryAttempts:     cfg.Catalog.RetryAttempts,
			RetryDelaySeconds: cfg.Catalog.RetryDelaySeconds,
			RatePerSecond:     cfg.Catalog.RatePerSecond,
		}, catalog.WithLogger(logger))
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("create catalog client: %w", err)
		}
		sink = client
	}

	rt.Dispatcher = dispatch.New(store, sink, logger,
		dispatch.WithProxy(cfg.Dispatch.ChangeProxy),
		dispatch.WithConcurrency(cfg.Dispatch.Concurrency),
	)
	scheduler, err := daemon.New(cfg, detector.New(store, converter, logger), rt.Dispatcher,
		daemon.WithLogger(logger),
	)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	rt.Scheduler = scheduler
	return rt, nil
}

// OpenStore returns the in-memory store, or the SQLite store when
// state.persist is set. The closer is nil for the in-memory store.
func OpenStore(cfg *config.Config, logger *slog.Logger) (fingerprint.Store, func() error, error) {
	if !cfg.State.Persist {
		return fingerprint.NewMemory(), nil, nil
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}
	store, err := fingerprint.OpenSQLite(cfg.FingerprintDBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open fingerprint store: %w", err)
	}
	return store, store.Close, nil
}

// Run starts the titlemonitor poll loop and blocks until SIGINT/SIGTERM or a
// fatal error.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New(logging.Options{
		Level:       firstNonEmpty(opts.LogLevel, cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		OutputPaths: logOutputs(cfg),
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rt, err := Build(cfg, logger, nil)
	if err != nil {
		logger.Error("titlemonitor setup failed", logging.Error(err))
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close fingerprint store", logging.Error(err))
		}
	}()

	logDependencySnapshot(signalCtx, logger, cfg, rt.Converter)

	if err := rt.Scheduler.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("titlemonitor shutting down")
	return nil
}

func logOutputs(cfg *config.Config) []string {
	outputs := []string{"stdout"}
	if cfg.Logging.File != "" {
		outputs = append(outputs, cfg.Logging.File)
	}
	return outputs
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config, converter *isis.Converter) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("catalog_url", cfg.Catalog.URL),
		logging.Bool("persist", cfg.State.Persist),
	}
	for _, status := range deps.Check(cfg) {
		attrs = append(attrs,
			logging.Bool(status.Name+"_available", status.Available),
			logging.String(status.Name+"_binary", status.Command),
		)
	}
	if converter != nil {
		probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
		defer cancel()
		if version, err := converter.Version(probeCtx); err == nil {
			attrs = append(attrs, logging.String("mx_version", version))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
