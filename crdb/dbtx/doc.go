// Package dbtx executes units of work inside database transactions, retrying
// CockroachDB serialization conflicts with exponential backoff and jitter.
//
// Run is the entry point. Conflict classification lives in IsConflict; stores
// that surface retryable conditions through their own error types can opt in
// with MarkRetryable.
package dbtx
