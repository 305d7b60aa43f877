package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	sqlite3 "github.com/mattn/go-sqlite3"

	"sensorhub/internal/config"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// sqliteTimeLayout matches strftime('%Y-%m-%dT%H:%M:%fZ') so stored and bound
// timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// ErrPoolTimeout is returned when no pooled connection frees up within the
// configured acquire timeout.
var ErrPoolTimeout = errors.New("db: timed out waiting for a pooled connection")

// Querier is satisfied by *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the bounded connection pool shared by ingestion and the query API.
// All access goes through WithConn or WithTransaction so a checked-out
// connection is always released.
type DB struct {
	sql            *sql.DB
	dialect        Dialect
	acquireTimeout time.Duration
	logger         *slog.Logger
}

func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	base, dialect, err := baseConnector(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB := sql.OpenDB(NewInstrumentedConnector(base, cfg.DBConnMaxUses, logger))
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)
	}
	if cfg.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	}

	d := &DB{
		sql:            sqlDB,
		dialect:        dialect,
		acquireTimeout: cfg.DBAcquireTimeout,
		logger:         logger,
	}

	// Validate connectivity early
	if err := d.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return d, nil
}

func baseConnector(cfg config.Config) (driver.Connector, Dialect, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pgCfg, err := pgx.ParseConfig(cfg.DBDSN)
		if err != nil {
			return nil, "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		if cfg.DBConnectTimeout > 0 {
			pgCfg.ConnectTimeout = cfg.DBConnectTimeout
		}
		return stdlib.GetConnector(*pgCfg), Postgres, nil
	case config.DriverSQLite:
		dsn, err := buildSQLiteDSN(cfg.SQLitePath)
		if err != nil {
			return nil, "", err
		}
		return &dsnConnector{dsn: dsn, driver: &sqlite3.SQLiteDriver{}}, SQLite, nil
	default:
		return nil, "", fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

func buildSQLiteDSN(path string) (string, error) {
	// - foreign_keys=on: enforce FK constraints
	// - busy_timeout: concurrent ingestion writers wait instead of failing with "database is locked"
	// - journal_mode=WAL: readers do not block the writer
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// dsnConnector adapts a driver that only implements Open to driver.Connector.
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c *dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.driver
}

func (d *DB) Dialect() Dialect {
	return d.dialect
}

// TimeArg converts t into the form the active dialect compares against
// stored timestamps.
func (d *DB) TimeArg(t time.Time) any {
	if d.dialect == SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func (d *DB) acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx := ctx
	if d.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, d.acquireTimeout)
		defer cancel()
	}

	conn, err := d.sql.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			d.logger.Warn("db pool exhausted", "wait", d.acquireTimeout, "in_use", d.sql.Stats().InUse)
			return nil, fmt.Errorf("%w (waited %s)", ErrPoolTimeout, d.acquireTimeout)
		}
		return nil, err
	}
	return conn, nil
}

// WithConn checks out one pooled connection for the duration of fn.
func (d *DB) WithConn(ctx context.Context, fn func(conn *sql.Conn) error) (err error) {
	conn, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("release connection: %w", closeErr)
		}
	}()
	return fn(conn)
}

// WithTransaction runs fn inside BEGIN/COMMIT on a dedicated connection.
// Any error from fn (or a panic, or ctx cancellation) rolls the transaction
// back and the original error is returned.
func (d *DB) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return d.WithConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				d.logger.Error("rollback failed", "error", rbErr, "cause", err)
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// Ping verifies a connection can be checked out and answers a trivial query.
func (d *DB) Ping(ctx context.Context) error {
	return d.WithConn(ctx, func(conn *sql.Conn) error {
		var ok int
		if err := conn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
			return err
		}
		if ok != 1 {
			return errors.New("database connection failed")
		}
		return nil
	})
}

func (d *DB) Stats() sql.DBStats {
	return d.sql.Stats()
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}
