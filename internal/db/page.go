package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Filter is one "column op $n" predicate. Column and Op come from code, never
// from request input; only Value is bound.
type Filter struct {
	Column string
	Op     string
	Value  any
}

// PageQuery describes one newest-first page over a table that has id and
// timestamp columns.
type PageQuery struct {
	Table   string
	Columns []string
	Filters []Filter
	Limit   int
	Offset  int
}

const maxPrealloc = 256

// args numbers placeholders in order of first use, which is the order both
// pgx and sqlite bind $n parameters in.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

func (q PageQuery) where(a *args) string {
	if len(q.Filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		parts = append(parts, fmt.Sprintf("%s %s %s", f.Column, f.Op, a.add(f.Value)))
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func (q PageQuery) pageSQL() (string, []any) {
	var a args
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.Columns, ", "))
	b.WriteString(", COUNT(*) OVER() AS total_count FROM ")
	b.WriteString(q.Table)
	b.WriteString(q.where(&a))
	b.WriteString(" ORDER BY timestamp DESC, id DESC")
	b.WriteString(" LIMIT " + a.add(q.Limit))
	b.WriteString(" OFFSET " + a.add(q.Offset))
	return b.String(), a
}

func (q PageQuery) countSQL() (string, []any) {
	var a args
	return "SELECT COUNT(*) FROM " + q.Table + q.where(&a), a
}

// QueryPage returns one page of rows plus the total number of rows matching
// the filters. The total comes from a window count in the same statement, so
// rows and total describe the same snapshot. A page past the end has no row
// to carry the window count, in which case a separate COUNT is issued.
//
// dest must return scan destinations for q.Columns, in order.
func QueryPage[T any](ctx context.Context, d *DB, q PageQuery, dest func(*T) []any) ([]T, int, error) {
	items := make([]T, 0, min(q.Limit, maxPrealloc))
	var total int

	err := d.WithConn(ctx, func(conn *sql.Conn) error {
		query, queryArgs := q.pageSQL()
		rows, err := conn.QueryContext(ctx, query, queryArgs...)
		if err != nil {
			return err
		}
		defer func() {
			if err := rows.Close(); err != nil {
				d.logger.Error("close page rows", "table", q.Table, "error", err)
			}
		}()

		for rows.Next() {
			var item T
			if err := rows.Scan(append(dest(&item), &total)...); err != nil {
				return err
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if len(items) == 0 && q.Offset > 0 {
			countQuery, countArgs := q.countSQL()
			return conn.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("query %s page: %w", q.Table, err)
	}
	return items, total, nil
}

// DeleteAll removes every row from table. It is irreversible.
func (d *DB) DeleteAll(ctx context.Context, table string) error {
	stmt := "DELETE FROM " + table
	if d.dialect == Postgres {
		stmt = "TRUNCATE TABLE " + table
	}
	return d.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, stmt)
		return err
	})
}
