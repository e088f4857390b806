package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// maxShift caps the exponent so 1<<attempt never overflows int64.
const maxShift = 62

// Exponential returns base * 2^attempt with overflow protection.
// Negative attempts are treated as 0; non-positive bases return 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1 << attempt)

	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(int64(base) * multiplier)
}

// FullJitter returns a random duration in [0, delay).
// Returns 0 for zero or negative delays.
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	return time.Duration(rand.Int64N(int64(delay))) // #nosec G404 -- jitter does not need crypto randomness
}

// HalfJitter returns a random duration in [delay/2, delay*3/2), i.e. the
// delay scaled by a uniform multiplier in [0.5, 1.5). Unlike FullJitter it
// keeps a floor of half the delay, so the minimum wait still grows with the
// exponential schedule while competing callers stay spread out.
func HalfJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	return delay/2 + FullJitter(delay)
}

// SleepWithContext blocks for the given duration or until the context is
// done, whichever comes first. Zero and negative durations return
// immediately.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
