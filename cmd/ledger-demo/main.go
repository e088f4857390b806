// Command ledger-demo connects to a CockroachDB cluster with JWT tokens
// fetched from an identity provider and runs a small funds-transfer workload
// through the transactional retry executor.
//
// It mirrors the classic CockroachDB bank example: seed two accounts, move
// 100 between them inside a retried transaction, print balances, clean up.
// The workload runs three times: with a fresh id_token, with a refreshed
// one, and with a bogus token that is expected to fail authentication.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/LerianStudio/lib-crdb/crdb/auth"
	"github.com/LerianStudio/lib-crdb/crdb/dbtx"
	"github.com/LerianStudio/lib-crdb/crdb/ledger"
	"github.com/LerianStudio/lib-crdb/crdb/log"
	"github.com/LerianStudio/lib-crdb/crdb/postgres"
)

const transferAmount = 100

type demoConfig struct {
	oktaURL      string
	clientID     string
	clientSecret string
	username     string
	password     string

	dbHost         string
	dbPort         int
	dbUser         string
	dbName         string
	sslMode        string
	sslRootCert    string
	migrationsPath string

	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg demoConfig

	cmd := &cobra.Command{
		Use:           "ledger-demo",
		Short:         "Funds-transfer demo against CockroachDB with JWT authentication",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	registerFlags(cmd.Flags(), &cfg)

	return cmd
}

func registerFlags(flags *pflag.FlagSet, cfg *demoConfig) {
	flags.StringVar(&cfg.oktaURL, "url", envOr("OKTAURL", ""), "identity provider token endpoint (env OKTAURL)")
	flags.StringVar(&cfg.clientID, "client-id", envOr("CLIENT_ID", ""), "OAuth2 client id (env CLIENT_ID)")
	flags.StringVar(&cfg.clientSecret, "client-secret", envOr("CLIENT_SECRET", ""), "OAuth2 client secret (env CLIENT_SECRET)")
	flags.StringVar(&cfg.username, "username", envOr("OKTAUSERNAME", ""), "identity provider username (env OKTAUSERNAME)")
	flags.StringVar(&cfg.password, "password", envOr("OKTAPASSWORD", ""), "identity provider password (env OKTAPASSWORD)")

	flags.StringVar(&cfg.dbHost, "db-host", envOr("DATABASE_HOST", "lb"), "database host (env DATABASE_HOST)")
	flags.IntVar(&cfg.dbPort, "db-port", 26257, "database port")
	flags.StringVar(&cfg.dbUser, "db-user", envOr("DATABASE_USER", "roach"), "database user (env DATABASE_USER)")
	flags.StringVar(&cfg.dbName, "db-name", envOr("DATABASE_NAME", "defaultdb"), "database name (env DATABASE_NAME)")
	flags.StringVar(&cfg.sslMode, "ssl-mode", "verify-full", "sslmode for the database connection")
	flags.StringVar(&cfg.sslRootCert, "ssl-root-cert", "/certs/ca.crt", "path to the cluster CA certificate")
	flags.StringVar(&cfg.migrationsPath, "migrations", "migrations", "path to schema migration files")

	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "print debug info")
}

func run(ctx context.Context, cfg demoConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}

	level := log.InfoLevel
	if cfg.verbose {
		level = log.DebugLevel
	}

	logger := log.NewZapLogger(level)
	defer func() { _ = logger.Sync() }()

	idp, err := auth.NewClient(auth.Config{
		TokenURL:     cfg.oktaURL,
		ClientID:     cfg.clientID,
		ClientSecret: cfg.clientSecret,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	tokens, err := idp.PasswordGrant(ctx, cfg.username, cfg.password)
	if err != nil {
		return fmt.Errorf("password grant: %w", err)
	}

	logTokenExpiry(logger, tokens.IDToken)

	logger.Info("Initiate authentication with a new id_token")

	if err := executeWorkload(ctx, logger, cfg, tokens.IDToken); err != nil {
		return err
	}

	refreshed, err := idp.RefreshGrant(ctx, tokens.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh grant: %w", err)
	}

	logger.Info("Initiate authentication with a refreshed id_token")

	if err := executeWorkload(ctx, logger, cfg, refreshed.IDToken); err != nil {
		return err
	}

	logger.Info("Initiate authentication with a bogus id_token")

	if err := executeWorkload(ctx, logger, cfg, "bogus"); err != nil {
		logger.Infof("bogus token rejected as expected: %v", err)
		return nil
	}

	return errors.New("bogus id_token was unexpectedly accepted")
}

func validate(cfg demoConfig) error {
	switch {
	case cfg.oktaURL == "":
		return errors.New("identity provider URL is not set")
	case cfg.clientID == "":
		return errors.New("OAuth2 client id is not set")
	case cfg.clientSecret == "":
		return errors.New("OAuth2 client secret is not set")
	case cfg.username == "":
		return errors.New("identity provider username is not set")
	case cfg.password == "":
		return errors.New("identity provider password is not set")
	}

	return nil
}

// executeWorkload connects with the given id_token and runs one seed →
// transfer → cleanup round.
func executeWorkload(ctx context.Context, logger log.Logger, cfg demoConfig, idToken string) error {
	conn := &postgres.Connection{
		ConnectionStringPrimary: postgres.BuildDSN(postgres.DSNConfig{
			Host:            cfg.dbHost,
			Port:            cfg.dbPort,
			User:            cfg.dbUser,
			Database:        cfg.dbName,
			JWTAuthToken:    idToken,
			SSLMode:         cfg.sslMode,
			SSLRootCert:     cfg.sslRootCert,
			ApplicationName: "$ ledger-demo",
		}),
		DatabaseName:   cfg.dbName,
		MigrationsPath: cfg.migrationsPath,
		Logger:         logger,
	}

	if err := conn.Connect(ctx); err != nil {
		return err
	}

	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warnf("closing connection: %v", err)
		}
	}()

	db, err := conn.DB(ctx)
	if err != nil {
		return err
	}

	from, to, err := ledger.CreateAccounts(ctx, db)
	if err != nil {
		return err
	}

	if err := printBalances(ctx, logger, db); err != nil {
		return err
	}

	err = dbtx.Run(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		return ledger.TransferFunds(ctx, tx, from, to, transferAmount)
	}, dbtx.WithLogger(logger))

	var exhausted *dbtx.RetryExhaustedError

	switch {
	case err == nil:
		logger.Infof("transferred %d from %s to %s", transferAmount, from, to)
	case errors.As(err, &exhausted):
		// Demo-friendly: exhaustion under contention is logged and the
		// round continues. Real callers should decide whether to abort.
		logger.Errorf("transfer gave up after %d retries: %v", exhausted.MaxRetries, err)
	default:
		return err
	}

	if err := printBalances(ctx, logger, db); err != nil {
		return err
	}

	return ledger.DeleteAccounts(ctx, db)
}

func printBalances(ctx context.Context, logger log.Logger, q ledger.Querier) error {
	accounts, err := ledger.Balances(ctx, q)
	if err != nil {
		return err
	}

	logger.Infof("Balances at %s:", time.Now().Format(time.RFC1123))

	for _, account := range accounts {
		logger.Infof("account id: %s  balance: $%d", account.ID, account.Balance)
	}

	return nil
}

func logTokenExpiry(logger log.Logger, idToken string) {
	claims, err := auth.PeekClaims(idToken)
	if err != nil {
		logger.Debugf("could not inspect id_token claims: %v", err)
		return
	}

	if expiry, ok := auth.Expiry(claims); ok {
		logger.Debugf("id_token expires at %s", expiry.Format(time.RFC3339))
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
