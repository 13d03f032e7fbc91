package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// querier is satisfied by both *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session implements domain.Session over a single querier.
type Session struct {
	q       querier
	closer  func() error
	dialect Dialect
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Close releases the session's connection.
func (s *Session) Close() error {
	return s.closer()
}

// insert runs an INSERT and returns the store-assigned id.
func (s *Session) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect.returningID() {
		var id int64
		err := s.q.QueryRowContext(ctx, s.dialect.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := s.q.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// normalize maps a stored timestamp to UTC whole seconds.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
