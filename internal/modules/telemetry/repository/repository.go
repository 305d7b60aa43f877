package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"sensorhub/internal/db"
	"sensorhub/internal/modules/telemetry/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/insert-diagnostic.sql
var insertDiagnosticSQL string

//go:embed sql/get-latest-reading.sql
var getLatestReadingSQL string

const (
	readingsTable    = "sensor_data"
	diagnosticsTable = "sensor_logs"
)

var readingColumns = []string{
	"id", "temperature_inside", "temperature_outside", "voltage", "current", "power", "soc", "timestamp",
}

var diagnosticColumns = []string{"id", "message", "timestamp"}

type TelemetryRepository interface {
	InsertReading(ctx context.Context, m types.Measurements) (types.Reading, error)
	InsertDiagnostic(ctx context.Context, message string) (types.Diagnostic, error)
	ListReadings(ctx context.Context, rng types.TimeRange, limit, offset int) ([]types.Reading, int, error)
	ListDiagnostics(ctx context.Context, limit, offset int) ([]types.Diagnostic, int, error)
	GetLatestReading(ctx context.Context) (*types.Reading, error)
	DeleteAllReadings(ctx context.Context) error
}

type repositoryImpl struct {
	db *db.DB
}

func NewRepository(database *db.DB) TelemetryRepository {
	return &repositoryImpl{db: database}
}

// InsertReading writes one row inside its own transaction. The returned id
// is only handed back once the commit has succeeded.
func (r *repositoryImpl) InsertReading(ctx context.Context, m types.Measurements) (types.Reading, error) {
	var id int64
	var ts db.Time
	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, insertReadingSQL,
			m.TemperatureInside,
			m.TemperatureOutside,
			m.Voltage,
			m.Current,
			m.Power,
			m.SOC,
		).Scan(&id, &ts)
	})
	if err != nil {
		return types.Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	return types.Reading{ID: id, Measurements: m, Timestamp: ts.Time}, nil
}

// InsertDiagnostic runs on its own pooled connection, outside any telemetry
// transaction.
func (r *repositoryImpl) InsertDiagnostic(ctx context.Context, message string) (types.Diagnostic, error) {
	rec := types.Diagnostic{Message: message}
	var ts db.Time
	err := r.db.WithConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, insertDiagnosticSQL, message).Scan(&rec.ID, &ts)
	})
	if err != nil {
		return types.Diagnostic{}, fmt.Errorf("insert diagnostic: %w", err)
	}
	rec.Timestamp = ts.Time
	return rec, nil
}

func (r *repositoryImpl) ListReadings(ctx context.Context, rng types.TimeRange, limit, offset int) ([]types.Reading, int, error) {
	q := db.PageQuery{
		Table:   readingsTable,
		Columns: readingColumns,
		Limit:   limit,
		Offset:  offset,
	}
	if rng.Start != nil {
		q.Filters = append(q.Filters, db.Filter{Column: "timestamp", Op: ">=", Value: r.db.TimeArg(*rng.Start)})
	}
	if rng.End != nil {
		q.Filters = append(q.Filters, db.Filter{Column: "timestamp", Op: "<=", Value: r.db.TimeArg(*rng.End)})
	}

	return db.QueryPage(ctx, r.db, q, readingDest)
}

func (r *repositoryImpl) ListDiagnostics(ctx context.Context, limit, offset int) ([]types.Diagnostic, int, error) {
	q := db.PageQuery{
		Table:   diagnosticsTable,
		Columns: diagnosticColumns,
		Limit:   limit,
		Offset:  offset,
	}

	return db.QueryPage(ctx, r.db, q, func(rec *types.Diagnostic) []any {
		return []any{&rec.ID, &rec.Message, db.TimeDest(&rec.Timestamp)}
	})
}

// GetLatestReading returns nil when no reading has been stored yet.
func (r *repositoryImpl) GetLatestReading(ctx context.Context) (*types.Reading, error) {
	var rec types.Reading
	err := r.db.WithConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, getLatestReadingSQL).Scan(readingDest(&rec)...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest reading: %w", err)
	}
	return &rec, nil
}

func (r *repositoryImpl) DeleteAllReadings(ctx context.Context) error {
	if err := r.db.DeleteAll(ctx, readingsTable); err != nil {
		return fmt.Errorf("delete readings: %w", err)
	}
	return nil
}

func readingDest(rec *types.Reading) []any {
	return []any{
		&rec.ID,
		&rec.TemperatureInside,
		&rec.TemperatureOutside,
		&rec.Voltage,
		&rec.Current,
		&rec.Power,
		&rec.SOC,
		db.TimeDest(&rec.Timestamp),
	}
}
