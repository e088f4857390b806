// Package backoff computes retry delays with exponential growth and jitter.
//
// Transaction retry loops use HalfJitter over Exponential delays, and
// SleepWithContext to wait without ignoring cancellation.
package backoff
