// Package ledger holds the funds-transfer operations of the demo workload.
//
// Operations run against whatever querier they are handed, typically the
// *sql.Tx owned by a dbtx.Run invocation; they never open their own
// sessions. Atomicity of a transfer comes from the enclosing transaction,
// not from the individual statements.
package ledger
