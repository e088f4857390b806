package dbtx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/LerianStudio/lib-crdb/crdb/backoff"
	"github.com/LerianStudio/lib-crdb/crdb/log"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 100 * time.Millisecond

	tracerName = "github.com/LerianStudio/lib-crdb/crdb/dbtx"
)

// Operation is a unit of work executed within a single transaction attempt.
// It must use only the transaction it is handed and must not retry
// internally; conflict handling belongs to Run.
type Operation func(ctx context.Context, tx *sql.Tx) error

// TxBeginner starts transactions. *sql.DB and dbresolver.DB both satisfy it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type options struct {
	maxRetries int
	baseDelay  time.Duration
	logger     log.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func(d time.Duration) time.Duration
}

// Option customizes a single Run invocation.
type Option func(*options)

// WithMaxRetries bounds the number of attempts. Values below 1 are ignored
// and the default of 3 is kept.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxRetries = n
		}
	}
}

// WithBaseDelay sets the backoff base unit (default 100ms). Non-positive
// values are ignored.
func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.baseDelay = d
		}
	}
}

// WithLogger attaches a logger for attempt-level debug output.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// withSleep replaces the backoff sleep. Test hook.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// withJitter replaces the jitter function. Test hook.
func withJitter(jitter func(d time.Duration) time.Duration) Option {
	return func(o *options) { o.jitter = jitter }
}

func defaultOptions() options {
	return options{
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		logger:     &log.NoneLogger{},
		sleep:      backoff.SleepWithContext,
		jitter:     backoff.HalfJitter,
	}
}

// Run executes op inside a database transaction, retrying serialization
// conflicts up to the configured bound.
//
// Each attempt begins a fresh transaction. When op returns nil the
// transaction is committed and Run returns immediately; a conflict surfaced
// at commit time is retried like any other. On a conflict-class error
// (see IsConflict) the transaction is rolled back and the next attempt
// starts after a delay of jitter(base * 2^attempt) with jitter in
// [0.5x, 1.5x), spreading out competing callers. Any other error rolls the
// transaction back and propagates unchanged. When every attempt ends in a
// conflict, Run returns a *RetryExhaustedError carrying the bound.
//
// Attempts are strictly sequential. Cancelling ctx aborts the backoff sleep
// and returns the context error; the original demo had no such timeout, so
// this is an extension for callers that need deadlines.
func Run(ctx context.Context, db TxBeginner, op Operation, opts ...Option) error {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dbtx.Run")
	defer span.End()

	span.SetAttributes(attribute.Int("db.tx.max_retries", o.maxRetries))

	var lastConflict error

	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			err = fmt.Errorf("begin transaction: %w", err)
			recordFailure(span, err)

			return err
		}

		err = op(ctx, tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				span.SetAttributes(attribute.Int("db.tx.attempts", attempt))
				return nil
			}
		}

		// A failed Commit already finished the transaction; Rollback then
		// reports ErrTxDone, which is not worth surfacing.
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			o.logger.Debugf("rollback after attempt %d: %v", attempt, rbErr)
		}

		if !IsConflict(err) {
			o.logger.Debugf("non-retryable error on attempt %d: %v", attempt, err)
			recordFailure(span, err)

			return err
		}

		lastConflict = err
		o.logger.Debugf("serialization conflict on attempt %d: %v", attempt, err)

		if attempt == o.maxRetries {
			break
		}

		delay := o.jitter(backoff.Exponential(o.baseDelay, attempt))
		o.logger.Debugf("sleeping %s before attempt %d", delay, attempt+1)

		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			recordFailure(span, sleepErr)
			return sleepErr
		}
	}

	exhausted := &RetryExhaustedError{MaxRetries: o.maxRetries, Last: lastConflict}
	recordFailure(span, exhausted)

	return exhausted
}

func recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
