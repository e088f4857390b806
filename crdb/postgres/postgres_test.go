package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/lib-crdb/crdb/log"
)

// stubResolver overrides only the methods Connect and Close exercise;
// anything else panics, which a test would catch.
type stubResolver struct {
	dbresolver.DB

	pingErr  error
	closeErr error
	closed   bool
}

func (s *stubResolver) PingContext(_ context.Context) error { return s.pingErr }

func (s *stubResolver) Close() error {
	s.closed = true
	return s.closeErr
}

// stubConnectFns swaps the package-level injection points for one test and
// restores them afterwards. Tests using it must not run in parallel.
func stubConnectFns(t *testing.T, open func(string, string) (*sql.DB, error),
	newResolver func(*sql.DB, *sql.DB) (dbresolver.DB, error),
	migrate func(*sql.DB, string, string, log.Logger) error,
) {
	t.Helper()

	prevOpen, prevResolver, prevMigrate := dbOpenFn, newResolverFn, runMigrationsFn
	dbOpenFn, newResolverFn, runMigrationsFn = open, newResolver, migrate

	t.Cleanup(func() {
		dbOpenFn, newResolverFn, runMigrationsFn = prevOpen, prevResolver, prevMigrate
	})
}

func mockOpenFn(t *testing.T) func(string, string) (*sql.DB, error) {
	t.Helper()

	return func(driverName, dsn string) (*sql.DB, error) {
		assert.Equal(t, "pgx", driverName)

		db, _, err := sqlmock.New()
		require.NoError(t, err)

		return db, nil
	}
}

func TestConnection_ConnectSuccess(t *testing.T) {
	resolver := &stubResolver{}
	migrated := false

	stubConnectFns(t, mockOpenFn(t),
		func(_, _ *sql.DB) (dbresolver.DB, error) { return resolver, nil },
		func(_ *sql.DB, _, _ string, _ log.Logger) error {
			migrated = true
			return nil
		},
	)

	conn := &Connection{
		ConnectionStringPrimary: "host=primary",
		DatabaseName:            "defaultdb",
		MigrationsPath:          "migrations",
	}

	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.IsConnected())
	assert.True(t, migrated)

	db, err := conn.DB(context.Background())
	require.NoError(t, err)
	assert.Same(t, resolver, db)

	require.NoError(t, conn.Close())
	assert.False(t, conn.IsConnected())
	assert.True(t, resolver.closed)
}

func TestConnection_ReplicaDefaultsToPrimary(t *testing.T) {
	var dsns []string

	stubConnectFns(t,
		func(_, dsn string) (*sql.DB, error) {
			dsns = append(dsns, dsn)

			db, _, err := sqlmock.New()
			require.NoError(t, err)

			return db, nil
		},
		func(_, _ *sql.DB) (dbresolver.DB, error) { return &stubResolver{}, nil },
		func(_ *sql.DB, _, _ string, _ log.Logger) error { return nil },
	)

	conn := &Connection{ConnectionStringPrimary: "host=primary"}

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, []string{"host=primary", "host=primary"}, dsns)
}

func TestConnection_OpenFailure(t *testing.T) {
	openErr := errors.New("cannot parse dsn password=secret")

	stubConnectFns(t,
		func(_, _ string) (*sql.DB, error) { return nil, openErr },
		func(_, _ *sql.DB) (dbresolver.DB, error) { return &stubResolver{}, nil },
		func(_ *sql.DB, _, _ string, _ log.Logger) error { return nil },
	)

	conn := &Connection{ConnectionStringPrimary: "host=primary"}

	err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, conn.IsConnected())
	// Credentials must not leak into the returned error.
	assert.NotContains(t, err.Error(), "secret")
}

func TestConnection_PingFailure(t *testing.T) {
	stubConnectFns(t, mockOpenFn(t),
		func(_, _ *sql.DB) (dbresolver.DB, error) {
			return &stubResolver{pingErr: errors.New("no route to host")}, nil
		},
		func(_ *sql.DB, _, _ string, _ log.Logger) error { return nil },
	)

	conn := &Connection{ConnectionStringPrimary: "host=primary"}

	err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
	assert.False(t, conn.IsConnected())
}

func TestConnection_MigrationFailure(t *testing.T) {
	migrateErr := errors.New("dirty schema")

	stubConnectFns(t, mockOpenFn(t),
		func(_, _ *sql.DB) (dbresolver.DB, error) { return &stubResolver{}, nil },
		func(_ *sql.DB, _, _ string, _ log.Logger) error { return migrateErr },
	)

	conn := &Connection{
		ConnectionStringPrimary: "host=primary",
		DatabaseName:            "defaultdb",
		MigrationsPath:          "migrations",
	}

	require.ErrorIs(t, conn.Connect(context.Background()), migrateErr)
	assert.False(t, conn.IsConnected())
}

func TestConnection_MigrationsSkippedWithoutPath(t *testing.T) {
	migrated := false

	stubConnectFns(t, mockOpenFn(t),
		func(_, _ *sql.DB) (dbresolver.DB, error) { return &stubResolver{}, nil },
		func(_ *sql.DB, _, _ string, _ log.Logger) error {
			migrated = true
			return nil
		},
	)

	conn := &Connection{ConnectionStringPrimary: "host=primary"}

	require.NoError(t, conn.Connect(context.Background()))
	assert.False(t, migrated)
}

func TestConnection_DBConnectsLazily(t *testing.T) {
	resolver := &stubResolver{}

	stubConnectFns(t, mockOpenFn(t),
		func(_, _ *sql.DB) (dbresolver.DB, error) { return resolver, nil },
		func(_ *sql.DB, _, _ string, _ log.Logger) error { return nil },
	)

	conn := &Connection{ConnectionStringPrimary: "host=primary"}
	assert.False(t, conn.IsConnected())

	db, err := conn.DB(context.Background())
	require.NoError(t, err)
	assert.Same(t, resolver, db)
	assert.True(t, conn.IsConnected())
}

func TestConnection_ConnectCancelledContext(t *testing.T) {
	stubConnectFns(t, mockOpenFn(t),
		func(_, _ *sql.DB) (dbresolver.DB, error) { return &stubResolver{}, nil },
		func(_ *sql.DB, _, _ string, _ log.Logger) error { return nil },
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &Connection{ConnectionStringPrimary: "host=primary"}

	err := conn.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
