package db

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// instrumentedConnector wraps a driver.Connector so every connection it opens
// logs its SQL at debug level and is retired after maxUses checkouts.
type instrumentedConnector struct {
	base    driver.Connector
	maxUses int64
	logger  *slog.Logger
}

// instrumentedConn wraps driver.Conn to provide statement logging and use counting.
type instrumentedConn struct {
	conn    driver.Conn
	maxUses int64
	uses    atomic.Int64
	logger  *slog.Logger
}

// instrumentedStmt wraps driver.Stmt to log Exec/Query and their args.
type instrumentedStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

// NewInstrumentedConnector returns a driver.Connector around base. Use
// sql.OpenDB(connector) to get a *sql.DB that logs. maxUses <= 0 disables
// connection recycling. If logger is nil, slog.Default() is used.
func NewInstrumentedConnector(base driver.Connector, maxUses int, logger *slog.Logger) driver.Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumentedConnector{base: base, maxUses: int64(maxUses), logger: logger}
}

// Driver implements driver.Connector.
func (c *instrumentedConnector) Driver() driver.Driver {
	return c.base.Driver()
}

// Connect implements driver.Connector.
func (c *instrumentedConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.base.Connect(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("db connection opened")
	ic := &instrumentedConn{conn: conn, maxUses: c.maxUses, logger: c.logger}
	// The first checkout of a new connection skips ResetSession.
	ic.uses.Store(1)
	return ic, nil
}

// Prepare implements driver.Conn.
func (c *instrumentedConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &instrumentedStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

// PrepareContext implements driver.ConnPrepareContext.
func (c *instrumentedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err := prep.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return &instrumentedStmt{stmt: stmt, query: query, logger: c.logger}, nil
	}
	return c.Prepare(query)
}

// Close implements driver.Conn.
func (c *instrumentedConn) Close() error {
	c.logger.Debug("db connection closed", "uses", c.uses.Load())
	return c.conn.Close()
}

// Begin implements driver.Conn.
func (c *instrumentedConn) Begin() (driver.Tx, error) {
	//nolint:staticcheck // SA1019 – required when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

// BeginTx implements driver.ConnBeginTx.
func (c *instrumentedConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	logSQL(ctx, c.logger, "begin", "BEGIN", nil)
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 – fallback when underlying conn does not implement ConnBeginTx
	return c.conn.Begin()
}

// ExecContext implements driver.ExecerContext. Multi-statement scripts rely
// on this path since postgres refuses them as prepared statements.
func (c *instrumentedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logSQL(ctx, c.logger, "exec", query, args)
	return execer.ExecContext(ctx, query, args)
}

// QueryContext implements driver.QueryerContext.
func (c *instrumentedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logSQL(ctx, c.logger, "query", query, args)
	return queryer.QueryContext(ctx, query, args)
}

// Ping implements driver.Pinger.
func (c *instrumentedConn) Ping(ctx context.Context) error {
	if pinger, ok := c.conn.(driver.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// CheckNamedValue implements driver.NamedValueChecker.
func (c *instrumentedConn) CheckNamedValue(nv *driver.NamedValue) error {
	if checker, ok := c.conn.(driver.NamedValueChecker); ok {
		return checker.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// ResetSession implements driver.SessionResetter. database/sql calls it each
// time an idle connection is handed out again, so together with the count
// taken in Connect it tracks every checkout.
func (c *instrumentedConn) ResetSession(ctx context.Context) error {
	c.uses.Add(1)
	if resetter, ok := c.conn.(driver.SessionResetter); ok {
		return resetter.ResetSession(ctx)
	}
	return nil
}

// IsValid implements driver.Validator. A connection past its use budget is
// closed instead of going back to the idle pool.
func (c *instrumentedConn) IsValid() bool {
	if c.maxUses > 0 && c.uses.Load() >= c.maxUses {
		c.logger.Debug("db connection retired", "uses", c.uses.Load(), "max_uses", c.maxUses)
		return false
	}
	if validator, ok := c.conn.(driver.Validator); ok {
		return validator.IsValid()
	}
	return true
}

// Exec implements driver.Stmt.
func (s *instrumentedStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.logQuery(context.Background(), "exec", valuesToNamed(args))
	//nolint:staticcheck // SA1019 – required when underlying stmt does not implement StmtExecContext
	return s.stmt.Exec(args)
}

// ExecContext implements driver.StmtExecContext.
func (s *instrumentedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	s.logQuery(ctx, "exec", args)
	execCtx, ok := s.stmt.(driver.StmtExecContext)
	if !ok {
		//nolint:staticcheck // SA1019 – fallback when underlying stmt does not implement StmtExecContext
		return s.stmt.Exec(namedValuesToValues(args))
	}
	return execCtx.ExecContext(ctx, args)
}

// Query implements driver.Stmt.
func (s *instrumentedStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.logQuery(context.Background(), "query", valuesToNamed(args))
	//nolint:staticcheck // SA1019 – required when underlying stmt does not implement StmtQueryContext
	return s.stmt.Query(args)
}

// QueryContext implements driver.StmtQueryContext.
func (s *instrumentedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	s.logQuery(ctx, "query", args)
	queryCtx, ok := s.stmt.(driver.StmtQueryContext)
	if !ok {
		//nolint:staticcheck // SA1019 – fallback when underlying stmt does not implement StmtQueryContext
		return s.stmt.Query(namedValuesToValues(args))
	}
	return queryCtx.QueryContext(ctx, args)
}

// Close implements driver.Stmt.
func (s *instrumentedStmt) Close() error {
	return s.stmt.Close()
}

// NumInput implements driver.Stmt; -1 means unknown.
func (s *instrumentedStmt) NumInput() int {
	return s.stmt.NumInput()
}

func (s *instrumentedStmt) logQuery(ctx context.Context, op string, args []driver.NamedValue) {
	logSQL(ctx, s.logger, op, s.query, args)
}

func logSQL(ctx context.Context, logger *slog.Logger, op, query string, args []driver.NamedValue) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	logger.DebugContext(ctx, "sql",
		"op", op,
		"sql", query,
		"args", formatArgs(args),
	)
}

func formatArgs(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = a.Name + "=" + formatArg(a.Value)
		} else {
			out[i] = formatArg(a.Value)
		}
	}
	return out
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

func namedValuesToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
