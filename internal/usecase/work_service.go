package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"work-pipeline/internal/domain"
	"work-pipeline/internal/factory"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WorkService backs the Work API. It shares the store with the pipeline but
// never talks to the queue.
type WorkService struct {
	store  domain.Store
	prefix string
	window time.Duration
	logger *slog.Logger
	tracer trace.Tracer
}

// NewWorkService creates a WorkService. Works it creates are prefixed with
// prefix; searches only see rows created within window.
func NewWorkService(store domain.Store, prefix string, window time.Duration, logger *slog.Logger) *WorkService {
	return &WorkService{
		store:  store,
		prefix: prefix,
		window: window,
		logger: logger.With("component", "work-service"),
		tracer: otel.Tracer("work-pipeline-usecase"),
	}
}

func (s *WorkService) withSession(ctx context.Context, fn func(domain.Session) error) error {
	session, err := s.store.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.logger.Warn("failed to release store session", "error", cerr)
		}
	}()
	return fn(session)
}

// Create stores a random Work.
func (s *WorkService) Create(ctx context.Context) (*domain.Work, error) {
	ctx, span := s.tracer.Start(ctx, "service.Create")
	defer span.End()

	var created *domain.Work
	err := s.withSession(ctx, func(session domain.Session) error {
		var err error
		created, err = session.CreateWork(ctx, factory.GenerateRandomWork(s.prefix))
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create work")
		return nil, fmt.Errorf("failed to create work: %w", err)
	}
	span.SetAttributes(attribute.Int64("work.id", created.ID), attribute.String("work.code", created.WorkCode))
	return created, nil
}

// Get returns the Work with id. A missing id yields domain.ErrWorkNotFound.
func (s *WorkService) Get(ctx context.Context, id int64) (*domain.Work, error) {
	ctx, span := s.tracer.Start(ctx, "service.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("work.id", id))

	var work *domain.Work
	err := s.withSession(ctx, func(session domain.Session) error {
		var err error
		work, err = session.RetrieveWork(ctx, id)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get work from store")
		return nil, err
	}
	return work, nil
}

// Search lists works whose code starts with prefix and that were created
// within the service's window.
func (s *WorkService) Search(ctx context.Context, prefix string) ([]*domain.Work, error) {
	ctx, span := s.tracer.Start(ctx, "service.Search")
	defer span.End()
	span.SetAttributes(attribute.String("work.code_prefix", prefix))

	since := factory.Now().Add(-s.window)
	var works []*domain.Work
	err := s.withSession(ctx, func(session domain.Session) error {
		var err error
		works, err = session.SearchWork(ctx, prefix, since)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to search works")
		return nil, err
	}
	return works, nil
}

// ListEvents returns the events recorded for workCode, oldest first.
func (s *WorkService) ListEvents(ctx context.Context, workCode string) ([]*domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListEvents")
	defer span.End()
	span.SetAttributes(attribute.String("work.code", workCode))

	var events []*domain.Event
	err := s.withSession(ctx, func(session domain.Session) error {
		var err error
		events, err = session.ListEvents(ctx, workCode)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list events")
		return nil, err
	}
	return events, nil
}
