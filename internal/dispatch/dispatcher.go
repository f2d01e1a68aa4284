package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"titlemonitor/internal/fingerprint"
	"titlemonitor/internal/logging"
	"titlemonitor/internal/record"
	"titlemonitor/internal/services"
)

const (
	// ProxyDigest fingerprints the full serialized record.
	ProxyDigest = "digest"
	// ProxyLength fingerprints only the serialized byte length. Two different
	// records of equal length collide, so some edits go unnoticed.
	ProxyLength = "length"
)

// Sink receives changed records.
type Sink interface {
	AddJournal(ctx context.Context, rec record.Record) error
}

// Failure describes a record the sink rejected.
type Failure struct {
	Index int
	Key   string
	Title string
	Err   error
}

// Report summarizes one Dispatch call.
type Report struct {
	Total    int
	Sent     int
	Skipped  int
	Failed   int
	Failures []Failure
	Duration time.Duration
}

// Err joins the failures into one error marked services.ErrDispatch, or nil.
func (r Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	first := r.Failures[0]
	return services.Wrap(services.ErrDispatch, "dispatch", "add_journal",
		fmt.Sprintf("%d of %d records failed (first %s)", r.Failed, r.Total, first.Key), first.Err)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithProxy selects ProxyDigest (default) or ProxyLength.
func WithProxy(name string) Option {
	return func(d *Dispatcher) {
		if name == ProxyLength {
			d.proxy = lengthProxy
		} else {
			d.proxy = digestProxy
		}
	}
}

// WithConcurrency bounds parallel sink calls. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.concurrency = n
	}
}

// Dispatcher filters records through the fingerprint store and sends the
// changed ones.
type Dispatcher struct {
	store       fingerprint.Store
	sink        Sink
	proxy       func(encoded []byte) []byte
	concurrency int
	logger      *slog.Logger
}

// New constructs a dispatcher sharing store with the detector.
func New(store fingerprint.Store, sink Sink, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		sink:        sink,
		proxy:       digestProxy,
		concurrency: 1,
		logger:      logging.NewComponentLogger(logger, "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type outcome struct {
	rec   record.Record
	key   string
	title string
	send  bool
	err   error
}

// Dispatch tags, filters, and sends records in input order. Records without
// an identifier are always sent. Sink errors are collected in the report.
func (d *Dispatcher) Dispatch(ctx context.Context, records []record.Record, collection string) Report {
	started := time.Now()
	report := Report{Total: len(records)}
	if len(records) == 0 {
		return report
	}

	ctx = services.WithCollection(ctx, collection)
	logger := logging.WithContext(ctx, d.logger)
	logger.Info("records eligible to send",
		logging.String(logging.FieldEventType, "dispatch_start"),
		logging.Int("records", len(records)),
	)

	outcomes := make([]outcome, len(records))
	for i, rec := range records {
		outcomes[i] = d.classify(logger, rec, collection)
	}

	var group errgroup.Group
	group.SetLimit(d.concurrency)
	for i := range outcomes {
		if !outcomes[i].send {
			continue
		}
		o := &outcomes[i]
		group.Go(func() error {
			o.err = d.sink.AddJournal(ctx, o.rec)
			return nil
		})
	}
	_ = group.Wait()

	for i, o := range outcomes {
		attrs := []logging.Attr{
			logging.String(logging.FieldRecordKey, o.key),
			logging.String("title", o.title),
		}
		switch {
		case !o.send:
			report.Skipped++
			logger.Debug("journal unchanged; skipping", logging.Args(attrs...)...)
		case o.err != nil:
			report.Failed++
			report.Failures = append(report.Failures, Failure{Index: i, Key: o.key, Title: o.title, Err: o.err})
			if o.key != "" {
				d.store.Forget(o.key)
			}
			logging.ErrorWithContext(logger, "journal dispatch failed", "dispatch_failed",
				append(attrs,
					logging.Error(o.err),
					logging.String(logging.FieldErrorHint, "check the catalog service; the record is resent on the next change"),
				)...,
			)
		default:
			report.Sent++
			logger.Debug("journal sent", logging.Args(attrs...)...)
		}
	}

	report.Duration = time.Since(started)
	logger.Info("dispatch complete",
		logging.String(logging.FieldEventType, "dispatch_complete"),
		logging.Int("total", report.Total),
		logging.Int("sent", report.Sent),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed),
		logging.Duration("duration", report.Duration),
	)
	return report
}

func (d *Dispatcher) classify(logger *slog.Logger, rec record.Record, collection string) outcome {
	rec.SetCollection(collection)
	o := outcome{rec: rec, title: rec.Title(), send: true}

	key, ok := rec.Key()
	if !ok {
		logging.WarnWithContext(logger, "journal has no ISSN; sending without fingerprint", "dispatch_missing_identifier",
			logging.String("title", o.title),
			logging.String(logging.FieldErrorHint, "fill v400 in the title database"),
			logging.String(logging.FieldImpact, "record is sent on every file change"),
		)
		return o
	}
	o.key = key

	encoded, err := rec.Marshal()
	if err != nil {
		logging.WarnWithContext(logger, "journal serialization failed; sending without fingerprint", "dispatch_encode_failed",
			logging.String(logging.FieldRecordKey, key),
			logging.Error(err),
		)
		return o
	}
	o.send = d.store.Observe(key, d.proxy(encoded))
	return o
}

func digestProxy(encoded []byte) []byte {
	return encoded
}

func lengthProxy(encoded []byte) []byte {
	return []byte(strconv.Itoa(len(encoded)))
}
