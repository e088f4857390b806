package dbtx

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// serializationFailureCode is the SQLSTATE CockroachDB (and Postgres) use to
// signal that a transaction must be retried by the client.
const serializationFailureCode = "40001"

// RetryExhaustedError reports that every allowed attempt ended in a
// serialization conflict.
type RetryExhaustedError struct {
	// MaxRetries is the configured attempt bound that was exceeded.
	MaxRetries int
	// Last is the conflict error observed on the final attempt.
	Last error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("transaction did not succeed after %d retries", e.MaxRetries)
}

// Unwrap exposes the last conflict error for errors.Is/As chains.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// retryableError tags an error as conflict-class regardless of its type.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// MarkRetryable wraps err so IsConflict reports it as conflict-class. Store
// adapters whose transient conditions are not expressed as SQLSTATE 40001
// can use it to opt in to retries. Returns nil for a nil err.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}

	return &retryableError{err: err}
}

// IsConflict reports whether err is a conflict-class (serialization) failure
// that is safe to retry after a rollback. Everything else, including logical
// failures such as insufficient funds, must propagate to the caller.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}

	var tagged *retryableError
	if errors.As(err, &tagged) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailureCode
	}

	return false
}
