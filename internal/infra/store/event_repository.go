package store

import (
	"context"
	"fmt"

	"work-pipeline/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateEvent appends an event row. The work row it refers to may not exist yet.
func (s *Session) CreateEvent(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "store.CreateEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("work.code", event.WorkCode),
		attribute.String("event.variable", event.Variable),
	)

	id, err := s.insert(ctx,
		"INSERT INTO events (work_code, variable, value, created_on) VALUES (?, ?, ?, ?)",
		event.WorkCode, event.Variable, event.Value, event.CreatedOn,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert event")
		return nil, fmt.Errorf("failed to create event %s for %s: %w", event.Variable, event.WorkCode, err)
	}

	created := *event
	created.ID = id
	return &created, nil
}

// ListEvents returns the events of a work in recording order.
func (s *Session) ListEvents(ctx context.Context, workCode string) ([]*domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "store.ListEvents")
	defer span.End()
	span.SetAttributes(attribute.String("work.code", workCode))

	rows, err := s.q.QueryContext(ctx,
		s.dialect.Rebind("SELECT id, work_code, variable, value, created_on FROM events WHERE work_code = ? ORDER BY created_on, id"),
		workCode,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query events")
		return nil, fmt.Errorf("failed to list events for %s: %w", workCode, err)
	}
	defer rows.Close()

	events := make([]*domain.Event, 0)
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.WorkCode, &e.Variable, &e.Value, &e.CreatedOn); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.CreatedOn = normalize(e.CreatedOn)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events for %s: %w", workCode, err)
	}
	return events, nil
}
