// internal/infra/store/work_repository.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"work-pipeline/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const workColumns = "id, work_code, add_up_to, done, updated_on, created_on"

// likeEscape is the ESCAPE character for prefix searches. '!' needs no quoting
// in any supported dialect, unlike a backslash.
const likeEscape = "!"

// CreateWork inserts work and returns a copy carrying the store-assigned id.
func (s *Session) CreateWork(ctx context.Context, work *domain.Work) (*domain.Work, error) {
	ctx, span := s.tracer.Start(ctx, "store.CreateWork")
	defer span.End()
	span.SetAttributes(attribute.String("work.code", work.WorkCode))

	if err := work.Validate(); err != nil {
		return nil, err
	}

	id, err := s.insert(ctx,
		"INSERT INTO works (work_code, add_up_to, done, updated_on, created_on) VALUES (?, ?, ?, ?, ?)",
		work.WorkCode, work.AddUpTo, work.Done, work.UpdatedOn, work.CreatedOn,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert work")
		return nil, fmt.Errorf("failed to create work %s: %w", work.WorkCode, err)
	}

	created := *work
	created.ID = id
	s.logger.Info("created work", "work_code", work.WorkCode, "add_up_to", work.AddUpTo, "id", id)
	return &created, nil
}

// RetrieveWork loads the Work with the given id. Anything other than exactly
// one row is an error.
func (s *Session) RetrieveWork(ctx context.Context, id int64) (*domain.Work, error) {
	ctx, span := s.tracer.Start(ctx, "store.RetrieveWork")
	defer span.End()
	span.SetAttributes(attribute.Int64("work.id", id))

	rows, err := s.q.QueryContext(ctx, s.dialect.Rebind("SELECT "+workColumns+" FROM works WHERE id = ?"), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query work")
		return nil, fmt.Errorf("failed to retrieve work %d: %w", id, err)
	}
	works, err := scanWorks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve work %d: %w", id, err)
	}

	switch len(works) {
	case 1:
		return works[0], nil
	case 0:
		return nil, fmt.Errorf("work %d: %w: %w", id, domain.ErrWorkNotFound, &domain.RowCountError{Op: "retrieve work", Count: 0})
	default:
		err := &domain.RowCountError{Op: "retrieve work", Count: int64(len(works))}
		span.RecordError(err)
		return nil, err
	}
}

// SearchWork returns works whose code starts with prefix and that were created after since.
func (s *Session) SearchWork(ctx context.Context, prefix string, since time.Time) ([]*domain.Work, error) {
	ctx, span := s.tracer.Start(ctx, "store.SearchWork")
	defer span.End()
	span.SetAttributes(attribute.String("work.code_prefix", prefix))

	query := "SELECT " + workColumns + " FROM works WHERE work_code LIKE ? ESCAPE '" + likeEscape + "' AND created_on > ? ORDER BY id"
	rows, err := s.q.QueryContext(ctx, s.dialect.Rebind(query), escapeLike(prefix)+"%", since.UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to search works")
		return nil, fmt.Errorf("failed to search works with prefix %q: %w", prefix, err)
	}
	works, err := scanWorks(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to search works with prefix %q: %w", prefix, err)
	}
	s.logger.Info("searched works", "prefix", prefix, "count", len(works))
	return works, nil
}

// MarkWorkDone flips done to true. done never goes back to false in this package.
func (s *Session) MarkWorkDone(ctx context.Context, id int64, at time.Time) error {
	ctx, span := s.tracer.Start(ctx, "store.MarkWorkDone")
	defer span.End()
	span.SetAttributes(attribute.Int64("work.id", id))

	res, err := s.q.ExecContext(ctx, s.dialect.Rebind("UPDATE works SET done = ?, updated_on = ? WHERE id = ?"), true, at.UTC(), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update work")
		return fmt.Errorf("failed to mark work %d done: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for work %d: %w", id, err)
	}
	if n != 1 {
		err := &domain.RowCountError{Op: fmt.Sprintf("mark work %d done", id), Count: n}
		span.RecordError(err)
		return err
	}
	return nil
}

func scanWorks(rows *sql.Rows) ([]*domain.Work, error) {
	defer rows.Close()

	var works []*domain.Work
	for rows.Next() {
		var w domain.Work
		if err := rows.Scan(&w.ID, &w.WorkCode, &w.AddUpTo, &w.Done, &w.UpdatedOn, &w.CreatedOn); err != nil {
			return nil, fmt.Errorf("failed to scan work row: %w", err)
		}
		w.UpdatedOn = normalize(w.UpdatedOn)
		w.CreatedOn = normalize(w.CreatedOn)
		works = append(works, &w)
	}
	return works, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return r.Replace(s)
}
