// internal/infra/store/db.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"work-pipeline/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Dialect selects placeholder style and id retrieval for a SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	// DialectMySQL needs parseTime=true in the DSN to scan timestamps.
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite3"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectPostgres:
		return "pgx", nil
	case DialectMySQL:
		return "mysql", nil
	case DialectSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported db driver: %s", d)
	}
}

// Rebind rewrites '?' placeholders into '$1, $2, ...' for postgres.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// returningID reports whether inserts fetch the id with RETURNING instead of LastInsertId.
func (d Dialect) returningID() bool {
	return d == DialectPostgres
}

// Store is the Persistence Gateway. It owns the *sql.DB handle and hands out
// one dedicated connection per session.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Open connects to the database described by driver and dsn and verifies it with a ping.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	dialect := Dialect(driver)
	driverName, err := dialect.driverName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driver, err)
	}
	return New(db, dialect, logger), nil
}

// New wraps an existing handle.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "store", "dialect", string(dialect)),
		tracer:  otel.Tracer("work-pipeline-store"),
	}
}

// DB exposes the underlying handle, for callers sharing it (tests, schema tooling).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Acquire takes one connection out of the handle for the caller's exclusive use.
func (s *Store) Acquire(ctx context.Context) (domain.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return &Session{
		q:       conn,
		closer:  conn.Close,
		dialect: s.dialect,
		logger:  s.logger,
		tracer:  s.tracer,
	}, nil
}

// Shared returns a session over the whole handle. Close is a no-op; it suits
// request-scoped callers such as the HTTP API.
func (s *Store) Shared() domain.Session {
	return &Session{
		q:       s.db,
		closer:  func() error { return nil },
		dialect: s.dialect,
		logger:  s.logger,
		tracer:  s.tracer,
	}
}

type pooledStore struct{ s *Store }

func (p pooledStore) Acquire(context.Context) (domain.Session, error) {
	return p.s.Shared(), nil
}

// Pooled adapts the store so every Acquire hands out the shared session.
func (s *Store) Pooled() domain.Store {
	return pooledStore{s}
}
