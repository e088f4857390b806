package dbtx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConflict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{
			name:     "nil is not a conflict",
			err:      nil,
			conflict: false,
		},
		{
			name:     "serialization failure",
			err:      &pgconn.PgError{Code: "40001", Message: "restart transaction"},
			conflict: true,
		},
		{
			name:     "wrapped serialization failure",
			err:      fmt.Errorf("transfer: %w", &pgconn.PgError{Code: "40001"}),
			conflict: true,
		},
		{
			name:     "unique violation is not a conflict",
			err:      &pgconn.PgError{Code: "23505"},
			conflict: false,
		},
		{
			name:     "plain error is not a conflict",
			err:      errors.New("boom"),
			conflict: false,
		},
		{
			name:     "marked retryable",
			err:      MarkRetryable(errors.New("lease moved")),
			conflict: true,
		},
		{
			name:     "wrapped marked retryable",
			err:      fmt.Errorf("store: %w", MarkRetryable(errors.New("lease moved"))),
			conflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.conflict, IsConflict(tt.err))
		})
	}
}

func TestMarkRetryable(t *testing.T) {
	t.Parallel()

	assert.Nil(t, MarkRetryable(nil))

	cause := errors.New("lease moved")
	marked := MarkRetryable(cause)

	require.Error(t, marked)
	assert.Equal(t, cause.Error(), marked.Error())
	assert.ErrorIs(t, marked, cause)
}

func TestRetryExhaustedError(t *testing.T) {
	t.Parallel()

	cause := &pgconn.PgError{Code: "40001"}
	err := &RetryExhaustedError{MaxRetries: 3, Last: cause}

	assert.Equal(t, "transaction did not succeed after 3 retries", err.Error())

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "40001", pgErr.Code)
}
