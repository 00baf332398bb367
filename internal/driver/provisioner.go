// Package driver opens database sessions through database/sql for the
// benchmark workers. Postgres goes through lib/pq; SQLite through the
// cgo-free modernc.org/sqlite driver.
package driver

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"pgbench/internal/config"
	"pgbench/internal/core"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown driver")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	connectTimeoutSeconds = 10
)

// Name normalizes a driver name, accepting the usual aliases.
func Name(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres", "postgresql", "pq":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	}
	return "", fmt.Errorf("%w %q (use postgres or sqlite)", ErrUnknownDriver, s)
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithDebug logs every query attempt to d.
func WithDebug(d *DebugLogger) Option {
	return func(p *Provisioner) { p.debug = d }
}

// Provisioner hands out one dedicated session per worker from a pool
// sized to the run's concurrency.
type Provisioner struct {
	db     *sql.DB
	driver string
	debug  *DebugLogger
}

// Open prepares the pool. No connection is made until Acquire.
func Open(cfg config.Config, runID string, opts ...Option) (*Provisioner, error) {
	name, err := Name(cfg.Driver)
	if err != nil {
		return nil, err
	}

	p := &Provisioner{driver: name}
	for _, opt := range opts {
		opt(p)
	}

	switch name {
	case DriverPostgres:
		connector, err := pq.NewConnector(PostgresDSN(cfg, runID))
		if err != nil {
			return nil, fmt.Errorf("postgres connector: %w", err)
		}
		p.db = sql.OpenDB(connector)
	case DriverSQLite:
		path := cfg.Database
		if path == "" {
			path = ":memory:"
		}
		p.db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
	}

	size := cfg.Concurrency
	if size < 1 {
		size = 1
	}
	p.db.SetMaxOpenConns(size)
	p.db.SetMaxIdleConns(size)
	return p, nil
}

// PostgresDSN builds a lib/pq key/value connection string. Empty settings
// are left out so lib/pq applies its own defaults and PG* environment
// variables (PGPASSWORD in particular).
func PostgresDSN(cfg config.Config, runID string) string {
	params := []struct{ key, value string }{
		{"host", cfg.Host},
		{"port", portString(cfg.Port)},
		{"user", cfg.User},
		{"dbname", cfg.Database},
		{"sslmode", cfg.SSLMode},
		{"application_name", "pgbench-" + runID},
		{"connect_timeout", strconv.Itoa(connectTimeoutSeconds)},
	}

	parts := make([]string, 0, len(params))
	for _, kv := range params {
		if kv.value == "" {
			continue
		}
		parts = append(parts, kv.key+"="+quoteDSNValue(kv.value))
	}
	return strings.Join(parts, " ")
}

func portString(port int) string {
	if port <= 0 {
		return ""
	}
	return strconv.Itoa(port)
}

func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Driver returns the normalized driver name.
func (p *Provisioner) Driver() string { return p.driver }

// Acquire takes a dedicated session and checks it with a ping. Failures
// are returned as *core.ConnectError; there is no retry.
func (p *Provisioner) Acquire(ctx context.Context) (core.Connection, error) {
	workerID := core.WorkerIDFromContext(ctx)

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, &core.ConnectError{WorkerID: workerID, Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		discardConn(conn)
		return nil, &core.ConnectError{WorkerID: workerID, Err: err}
	}
	return &Connection{conn: conn, workerID: workerID, debug: p.debug}, nil
}

// Close closes the pool.
func (p *Provisioner) Close() error {
	return p.db.Close()
}

// Connection is one worker's session.
type Connection struct {
	conn     *sql.Conn
	workerID int
	debug    *DebugLogger
}

// Query runs query and reads every row it returns. Errors are returned
// as *core.QueryError carrying their kind.
func (c *Connection) Query(ctx context.Context, query string) error {
	start := time.Now()
	c.debug.LogQuery(c.workerID, query)

	rowCount, err := c.run(ctx, query)
	if err != nil {
		qe := &core.QueryError{Kind: Classify(err), Err: err}
		c.debug.LogError(c.workerID, qe.Kind, err, time.Since(start))
		return qe
	}
	c.debug.LogResult(c.workerID, rowCount, time.Since(start))
	return nil
}

func (c *Connection) run(ctx context.Context, query string) (int, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		n++
	}
	err = rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Close returns the session to the pool, or drops it when discard is set.
func (c *Connection) Close(discard bool) error {
	if discard {
		discardConn(c.conn)
		return nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}

// discardConn makes database/sql close the driver connection instead of
// pooling it.
func discardConn(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return sqldriver.ErrBadConn })
	_ = conn.Close()
}
