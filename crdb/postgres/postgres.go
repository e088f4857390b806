package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"

	// File source for migrations; registered for migrate.NewWithDatabaseInstance.
	_ "github.com/golang-migrate/migrate/v4/source/file"

	// pgx stdlib driver, registered as "pgx" for sql.Open.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LerianStudio/lib-crdb/crdb/log"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var (
	dbOpenFn = sql.Open

	newResolverFn = func(primaryDB, replicaDB *sql.DB) (_ dbresolver.DB, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("failed to create resolver: %v", recovered)
			}
		}()

		resolver := dbresolver.New(
			dbresolver.WithPrimaryDBs(primaryDB),
			dbresolver.WithReplicaDBs(replicaDB),
			dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
		)

		if resolver == nil {
			return nil, errors.New("resolver returned nil connection")
		}

		return resolver, nil
	}

	runMigrationsFn = runMigrations

	dsnCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	dsnPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
	dbNamePattern         = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

// Connection is a hub holding a resolver over primary and replica pools.
// The zero value plus connection strings is usable; Connect or DB
// initialize it on demand.
type Connection struct {
	ConnectionStringPrimary string
	ConnectionStringReplica string
	DatabaseName            string
	MigrationsPath          string
	Logger                  log.Logger
	MaxOpenConnections      int
	MaxIdleConnections      int
	resolver                dbresolver.DB
	connected               bool
	mu                      sync.RWMutex
}

// initDefaults sets sane default values for zero-value fields.
func (c *Connection) initDefaults() {
	if c.Logger == nil {
		c.Logger = &log.NoneLogger{}
	}

	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = defaultMaxOpenConns
	}

	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = defaultMaxIdleConns
	}

	// Single-node demo clusters have no replica; reads go to the primary.
	if c.ConnectionStringReplica == "" {
		c.ConnectionStringReplica = c.ConnectionStringPrimary
	}
}

// Connect opens the primary and replica pools, runs migrations, and pings
// the cluster. It keeps a singleton resolver; reconnecting closes the
// previous one.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

// connectLocked performs the actual connection. Caller must hold c.mu.
func (c *Connection) connectLocked(ctx context.Context) error {
	c.initDefaults()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	if c.resolver != nil {
		if err := c.closeLocked(); err != nil {
			c.Logger.Warnf("failed to close previous connection before reconnect: %v", err)
		}
	}

	c.Logger.Info("Connecting to primary and replica databases...")

	primary, err := dbOpenFn("pgx", c.ConnectionStringPrimary)
	if err != nil {
		sanitized := sanitizeSensitiveError(err)
		c.Logger.Errorf("failed to connect to primary database: %s", sanitized)

		return fmt.Errorf("failed to connect to primary database: %s", sanitized)
	}

	var success bool

	defer func() {
		if !success {
			primary.Close()
		}
	}()

	tunePool(primary, c.MaxOpenConnections, c.MaxIdleConnections)

	replica, err := dbOpenFn("pgx", c.ConnectionStringReplica)
	if err != nil {
		sanitized := sanitizeSensitiveError(err)
		c.Logger.Errorf("failed to connect to replica database: %s", sanitized)

		return fmt.Errorf("failed to connect to replica database: %s", sanitized)
	}

	defer func() {
		if !success {
			replica.Close()
		}
	}()

	tunePool(replica, c.MaxOpenConnections, c.MaxIdleConnections)

	resolver, err := newResolverFn(primary, replica)
	if err != nil {
		c.Logger.Errorf("failed to create resolver: %v", err)
		return fmt.Errorf("failed to create resolver: %w", err)
	}

	if c.MigrationsPath != "" {
		migrationsPath, err := sanitizePath(c.MigrationsPath)
		if err != nil {
			c.Logger.Errorf("invalid migrations path: %v", err)
			return err
		}

		if err := runMigrationsFn(primary, migrationsPath, c.DatabaseName, c.Logger); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before ping: %w", err)
	}

	if err := resolver.PingContext(ctx); err != nil {
		c.Logger.Errorf("failed to ping database: %s", sanitizeSensitiveError(err))
		return fmt.Errorf("failed to ping database: %s", sanitizeSensitiveError(err))
	}

	c.resolver = resolver
	c.connected = true

	c.Logger.Info("Connected to database")

	success = true

	return nil
}

// DB returns the shared resolver, connecting first if necessary.
//
//nolint:ireturn
func (c *Connection) DB(ctx context.Context) (dbresolver.DB, error) {
	c.mu.RLock()

	if c.resolver != nil {
		resolver := c.resolver
		c.mu.RUnlock()

		return resolver, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock.
	if c.resolver != nil {
		return c.resolver, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.resolver, nil
}

// Close releases database connection resources.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.resolver == nil {
		return nil
	}

	err := c.resolver.Close()
	c.resolver = nil
	c.connected = false

	return err
}

// IsConnected reports whether the resolver is initialized.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

func tunePool(db *sql.DB, maxOpen, maxIdle int) {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
}

func sanitizeSensitiveError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := dsnCredentialsPattern.ReplaceAllString(err.Error(), "://***@")
	sanitized = dsnPasswordPattern.ReplaceAllString(sanitized, "${1}***")

	return sanitized
}

func sanitizePath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("invalid migrations path: %q", path)
		}
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	return absPath, nil
}

func validateDBName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name: %q", name)
	}

	return nil
}

func runMigrations(primary *sql.DB, migrationsPath, dbName string, logger log.Logger) error {
	if err := validateDBName(dbName); err != nil {
		logger.Errorf("invalid database name: %v", err)
		return err
	}

	driver, err := migratepg.WithInstance(primary, &migratepg.Config{DatabaseName: dbName})
	if err != nil {
		logger.Errorf("failed to create migration driver: %v", err)
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceURL := "file://" + filepath.ToSlash(migrationsPath)

	m, err := migrate.NewWithDatabaseInstance(sourceURL, dbName, driver)
	if err != nil {
		logger.Errorf("failed to prepare migrations: %v", err)
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Errorf("failed to run migrations: %v", err)
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Migrations up to date")

	return nil
}
