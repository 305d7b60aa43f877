package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sensorhub/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DBDriver:         config.DriverSQLite,
		SQLitePath:       filepath.Join(t.TempDir(), "data", "test.db"),
		DBMaxOpenConns:   4,
		DBAcquireTimeout: time.Second,
	}
}

func openTestDB(t *testing.T, cfg config.Config, logger *slog.Logger) *DB {
	t.Helper()
	d, err := Open(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOpen_SQLiteCreatesDirectory(t *testing.T) {
	cfg := testConfig(t)
	d := openTestDB(t, cfg, slog.New(slog.DiscardHandler))

	if d.Dialect() != SQLite {
		t.Errorf("dialect: got %q, want %q", d.Dialect(), SQLite)
	}
	if _, err := os.Stat(filepath.Dir(cfg.SQLitePath)); err != nil {
		t.Errorf("expected data directory to exist: %v", err)
	}
	if err := d.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "mysql"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpen_InvalidPostgresDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = config.DriverPostgres
	cfg.DBDSN = "postgres://%zz"
	_, err := Open(context.Background(), cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "parse postgres dsn") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, testConfig(t), slog.New(slog.DiscardHandler))

	for i := 0; i < 2; i++ {
		if err := d.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema run %d: %v", i+1, err)
		}
	}

	err := d.WithConn(ctx, func(conn *sql.Conn) error {
		var applied int
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
			return err
		}
		if applied != 1 {
			t.Errorf("applied migrations: got %d, want 1", applied)
		}
		for _, table := range []string{"sensor_data", "sensor_logs"} {
			var n int
			if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
				t.Errorf("table %s: %v", table, err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithConn: %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"0001_telemetry.sql", "0001", "telemetry", true},
		{"0012_add_index.sql", "0012", "add_index", true},
		{"1_short.sql", "", "", false},
		{"0001_telemetry.txt", "", "", false},
	}
	for _, tt := range tests {
		v, n, ok := parseMigrationFilename(tt.in)
		if v != tt.wantVersion || n != tt.wantName || ok != tt.wantOK {
			t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, v, n, ok, tt.wantVersion, tt.wantName, tt.wantOK)
		}
	}
}

func TestPendingMigrations_BothDialects(t *testing.T) {
	for _, dialect := range []Dialect{Postgres, SQLite} {
		pending, err := pendingMigrations(string(dialect), map[string]bool{})
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		if len(pending) == 0 {
			t.Fatalf("%s: expected embedded schema files", dialect)
		}
		if !strings.Contains(pending[0].body, "sensor_data") {
			t.Errorf("%s: first schema file does not create sensor_data", dialect)
		}

		pending, err = pendingMigrations(string(dialect), map[string]bool{"0001": true})
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		for _, m := range pending {
			if m.version == "0001" {
				t.Errorf("%s: applied version 0001 returned as pending", dialect)
			}
		}
	}
}

func countLogs(t *testing.T, ctx context.Context, d *DB) int {
	t.Helper()
	var n int
	err := d.WithConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_logs`).Scan(&n)
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestWithTransaction_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, testConfig(t), slog.New(slog.DiscardHandler))
	if err := d.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	err := d.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO sensor_logs (message) VALUES ($1)`, "kept")
		return err
	})
	if err != nil {
		t.Fatalf("commit path: %v", err)
	}

	boom := errors.New("boom")
	err = d.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sensor_logs (message) VALUES ($1)`, "discarded"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("rollback path: got %v, want %v", err, boom)
	}

	if n := countLogs(t, ctx, d); n != 1 {
		t.Errorf("rows after rollback: got %d, want 1", n)
	}
}

func TestWithTransaction_PanicRollsBackAndRepanics(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, testConfig(t), slog.New(slog.DiscardHandler))
	if err := d.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Errorf("recovered %v, want kaboom", r)
			}
		}()
		_ = d.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO sensor_logs (message) VALUES ($1)`, "x"); err != nil {
				return err
			}
			panic("kaboom")
		})
	}()

	if n := countLogs(t, ctx, d); n != 0 {
		t.Errorf("rows after panic: got %d, want 0", n)
	}
	if in := d.Stats().InUse; in != 0 {
		t.Errorf("connections still in use after panic: %d", in)
	}
}

func TestWithTransaction_CancelledContextRollsBack(t *testing.T) {
	d := openTestDB(t, testConfig(t), slog.New(slog.DiscardHandler))
	if err := d.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	err := d.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sensor_logs (message) VALUES ($1)`, "x"); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if n := countLogs(t, context.Background(), d); n != 0 {
		t.Errorf("rows after cancel: got %d, want 0", n)
	}
}

func TestWithConn_PoolTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBMaxOpenConns = 1
	cfg.DBAcquireTimeout = 50 * time.Millisecond
	d := openTestDB(t, cfg, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- d.WithConn(ctx, func(*sql.Conn) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	start := time.Now()
	err := d.Ping(ctx)
	if !errors.Is(err, ErrPoolTimeout) {
		t.Fatalf("got %v, want ErrPoolTimeout", err)
	}
	if waited := time.Since(start); waited > 2*time.Second {
		t.Errorf("acquire waited %s, expected it to give up near the timeout", waited)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder: %v", err)
	}
	if err := d.Ping(ctx); err != nil {
		t.Errorf("Ping after release: %v", err)
	}
}

func TestWithConn_CallerCancellationIsNotPoolTimeout(t *testing.T) {
	d := openTestDB(t, testConfig(t), slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Ping(ctx)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if errors.Is(err, ErrPoolTimeout) {
		t.Errorf("cancelled caller reported as pool timeout: %v", err)
	}
}

func TestTimeArg(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.FixedZone("WIB", 7*3600))

	sqlite := &DB{dialect: SQLite}
	if got := sqlite.TimeArg(ts); got != "2024-03-01T05:30:45.123Z" {
		t.Errorf("sqlite TimeArg: got %v", got)
	}

	pg := &DB{dialect: Postgres}
	got, ok := pg.TimeArg(ts).(time.Time)
	if !ok || !got.Equal(ts) || got.Location() != time.UTC {
		t.Errorf("postgres TimeArg: got %v", pg.TimeArg(ts))
	}
}

func TestTime_Scan(t *testing.T) {
	want := time.Date(2024, 3, 1, 5, 30, 45, 123_000_000, time.UTC)
	tests := []struct {
		name string
		src  any
		want time.Time
		err  bool
	}{
		{"time", want.In(time.FixedZone("X", 3600)), want, false},
		{"sqlite text", "2024-03-01T05:30:45.123Z", want, false},
		{"bytes", []byte("2024-03-01T05:30:45.123Z"), want, false},
		{"space separated", "2024-03-01 05:30:45", want.Truncate(time.Second), false},
		{"nil", nil, time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, true},
		{"int", 42, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Time
			err := got.Scan(tt.src)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, wantErr %v", err, tt.err)
			}
			if !tt.err && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got.Time, tt.want)
			}
		})
	}
}

func TestBuildSQLiteDSN(t *testing.T) {
	dsn, err := buildSQLiteDSN("file:memdb?mode=memory")
	if err != nil {
		t.Fatalf("buildSQLiteDSN: %v", err)
	}
	if dsn != "file:memdb?mode=memory&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL" {
		t.Errorf("dsn: got %q", dsn)
	}

	path := filepath.Join(t.TempDir(), "nested", "x.db")
	dsn, err = buildSQLiteDSN(path)
	if err != nil {
		t.Fatalf("buildSQLiteDSN: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:"+path+"?") {
		t.Errorf("dsn: got %q", dsn)
	}
}
