//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/LerianStudio/lib-crdb/crdb/dbtx"
	"github.com/LerianStudio/lib-crdb/crdb/ledger"
	"github.com/LerianStudio/lib-crdb/crdb/log"
	"github.com/LerianStudio/lib-crdb/crdb/postgres"
)

const crdbImage = "cockroachdb/cockroach:v23.1.11"

func startCockroach(t *testing.T) (host string, port int) {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        crdbImage,
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor: wait.ForListeningPort("26257/tcp").
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	containerHost, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "26257")
	require.NoError(t, err)

	return containerHost, mappedPort.Int()
}

func TestIntegration_TransferWorkload(t *testing.T) {
	host, port := startCockroach(t)
	ctx := context.Background()

	dsn := postgres.BuildDSN(postgres.DSNConfig{
		Host:            host,
		Port:            port,
		User:            "root",
		Database:        "defaultdb",
		SSLMode:         "disable",
		ApplicationName: "lib-crdb-integration",
	})

	conn := &postgres.Connection{
		ConnectionStringPrimary: dsn,
		DatabaseName:            "defaultdb",
		MigrationsPath:          filepath.Join("..", "..", "migrations"),
		Logger:                  log.NewZapLogger(log.DebugLevel),
	}

	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { _ = conn.Close() })

	db, err := conn.DB(ctx)
	require.NoError(t, err)

	from, to, err := ledger.CreateAccounts(ctx, db)
	require.NoError(t, err)

	err = dbtx.Run(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		return ledger.TransferFunds(ctx, tx, from, to, 100)
	})
	require.NoError(t, err)

	accounts, err := ledger.Balances(ctx, db)
	require.NoError(t, err)

	balances := map[string]int64{}
	for _, account := range accounts {
		balances[account.ID.String()] = account.Balance
	}

	assert.Equal(t, int64(900), balances[from.String()])
	assert.Equal(t, int64(350), balances[to.String()])

	require.NoError(t, ledger.DeleteAccounts(ctx, db))

	accounts, err = ledger.Balances(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestIntegration_InsufficientFundsLeavesBalancesUntouched(t *testing.T) {
	host, port := startCockroach(t)
	ctx := context.Background()

	conn := &postgres.Connection{
		ConnectionStringPrimary: postgres.BuildDSN(postgres.DSNConfig{
			Host:     host,
			Port:     port,
			User:     "root",
			Database: "defaultdb",
			SSLMode:  "disable",
		}),
		DatabaseName:   "defaultdb",
		MigrationsPath: filepath.Join("..", "..", "migrations"),
	}

	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { _ = conn.Close() })

	db, err := conn.DB(ctx)
	require.NoError(t, err)

	from, to, err := ledger.CreateAccounts(ctx, db)
	require.NoError(t, err)

	err = dbtx.Run(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		// Reverse direction: the 250-balance account cannot cover 2000.
		return ledger.TransferFunds(ctx, tx, to, from, 2000)
	})

	var insufficient *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(250), insufficient.Available)

	accounts, err := ledger.Balances(ctx, db)
	require.NoError(t, err)

	balances := map[string]int64{}
	for _, account := range accounts {
		balances[account.ID.String()] = account.Balance
	}

	assert.Equal(t, int64(1000), balances[from.String()])
	assert.Equal(t, int64(250), balances[to.String()])

	require.NoError(t, ledger.DeleteAccounts(ctx, db))
}
