// Package postgres manages CockroachDB connections for lib-crdb.
//
// Connection is a hub that opens primary and replica pools through the pgx
// stdlib driver, balances them with dbresolver, runs schema migrations on
// connect, and hands out a shared resolver. BuildDSN composes connection
// strings for JWT-authenticated clusters.
package postgres
