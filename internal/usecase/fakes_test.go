package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"work-pipeline/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQueue hands out queued demands one consume call at a time.
type fakeQueue struct {
	mu         sync.Mutex
	demands    []domain.WorkDemand
	warnings   []error
	consumeErr error
	publishErr error
	published  []domain.WorkDemand
}

func (q *fakeQueue) Publish(_ context.Context, demand domain.WorkDemand) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, demand)
	return nil
}

func (q *fakeQueue) Consume(_ context.Context, max int) (*domain.Batch, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consumeErr != nil {
		return nil, q.consumeErr
	}
	batch := &domain.Batch{Warnings: q.warnings}
	n := min(max, len(q.demands))
	batch.Demands = append(batch.Demands, q.demands[:n]...)
	q.demands = q.demands[n:]
	return batch, nil
}

var errInjected = errors.New("injected failure")

// faultyStore wraps a real store and fails selected session operations.
type faultyStore struct {
	domain.Store
	acquireErr   error
	failCreate   bool
	failEvents   bool
	failMarkDone bool
	failClose    bool

	acquired atomic.Int32
	closed   atomic.Int32
}

func (s *faultyStore) Acquire(ctx context.Context) (domain.Session, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	session, err := s.Store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.acquired.Add(1)
	return &faultySession{Session: session, s: s}, nil
}

type faultySession struct {
	domain.Session
	s *faultyStore
}

func (f *faultySession) CreateWork(ctx context.Context, work *domain.Work) (*domain.Work, error) {
	if f.s.failCreate {
		return nil, errInjected
	}
	return f.Session.CreateWork(ctx, work)
}

func (f *faultySession) CreateEvent(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	if f.s.failEvents {
		return nil, errInjected
	}
	return f.Session.CreateEvent(ctx, event)
}

func (f *faultySession) MarkWorkDone(ctx context.Context, id int64, at time.Time) error {
	if f.s.failMarkDone {
		return errInjected
	}
	return f.Session.MarkWorkDone(ctx, id, at)
}

func (f *faultySession) Close() error {
	f.s.closed.Add(1)
	err := f.Session.Close()
	if f.s.failClose {
		return errInjected
	}
	return err
}
