// Package pgstore keeps work orders and timers in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	// postgres driver for database/sql
	_ "github.com/lib/pq"
)

const (
	WorkOrderTable    = "work_order"
	ProcessTimerTable = "process_timer"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// schema is applied by EnsureSchema; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS work_order (
		order_number TEXT PRIMARY KEY,
		product TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		status TEXT NOT NULL DEFAULT 'active',
		processes TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		finalized_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS process_timer (
		work_order_id TEXT NOT NULL REFERENCES work_order (order_number) ON DELETE CASCADE,
		process_name TEXT NOT NULL,
		accumulated_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		run_started_at TIMESTAMPTZ,
		last_updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (work_order_id, process_name)
	)`,
}

// ConnParam holds the connection settings for the database
type ConnParam struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConnectionString renders the parameters as a lib/pq key/value string.
// SSL is required unless a mode is given.
func (cp ConnParam) ConnectionString() string {
	var b strings.Builder
	add := func(key, value string) {
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(quoteValue(value))
	}

	add("host", cp.Host)
	add("port", cp.Port)
	add("user", cp.User)
	add("password", cp.Password)
	add("dbname", cp.DBName)
	if cp.SSLMode != "" {
		add("sslmode", cp.SSLMode)
	} else {
		add("sslmode", "require")
	}
	return b.String()
}

func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// runner is satisfied by *sql.DB and *sql.Tx
type runner interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Store is a PostgreSQL backed work order and timer store
type Store struct {
	DB     *sql.DB
	tx     *sql.Tx // set on the store handed to RunAtomic callbacks
	logger *zap.Logger
}

func (s *Store) runner() runner {
	if s.tx != nil {
		return s.tx
	}
	return s.DB
}

// Open connects to the database, checks the connection and creates the
// tables if they do not exist yet
func Open(ctx context.Context, cp ConnParam, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := sql.Open("postgres", cp.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database %s on %s: %w", cp.DBName, cp.Host, err)
	}

	s := &Store{DB: conn, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Debug("Connected to postgres", zap.String("host", cp.Host), zap.String("dbname", cp.DBName))
	return s, nil
}

// EnsureSchema creates the work order and timer tables
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build statement: %w", err)
	}
	res, err := s.runner().ExecContext(ctx, stmt, args...)
	if err != nil {
		// args may hold operator data, only the statement is logged
		s.logger.Debug("Statement failed", zap.String("stmt", stmt), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (s *Store) query(ctx context.Context, b sq.SelectBuilder) (*sql.Rows, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := s.runner().QueryContext(ctx, stmt, args...)
	if err != nil {
		s.logger.Debug("Query failed", zap.String("stmt", stmt), zap.Error(err))
		return nil, err
	}
	return rows, nil
}
