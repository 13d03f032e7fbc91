package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"work-pipeline/internal/domain"
	"work-pipeline/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeScheduler struct {
	mu      sync.Mutex
	specs   map[string]string
	started chan struct{}
	stopped chan struct{}
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		specs:   make(map[string]string),
		started: make(chan struct{}, 8),
		stopped: make(chan struct{}, 8),
	}
}

func (s *fakeScheduler) Start(ctx context.Context) error {
	s.started <- struct{}{}
	<-ctx.Done()
	s.stopped <- struct{}{}
	return ctx.Err()
}

func (s *fakeScheduler) Stop() {}

func (s *fakeScheduler) AddTask(spec string, task domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[task.Name()] = spec
	return nil
}

func (s *fakeScheduler) RemoveTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.specs, name)
	return nil
}

type fakeLeader struct {
	mu        sync.Mutex
	terms     chan chan struct{}
	campaigns int
	resigned  bool
	failFirst bool
}

func (l *fakeLeader) Campaign(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	l.campaigns++
	fail := l.failFirst && l.campaigns == 1
	l.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	select {
	case lost := <-l.terms:
		return lost, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeLeader) Resign(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resigned = true
	return nil
}

func (l *fakeLeader) IsLeader() bool { return false }

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestSchedulerServiceWithoutLeaderRunsDirectly(t *testing.T) {
	sched := newFakeScheduler()
	svc := NewSchedulerService(nil, sched, "node-a",
		ScheduledTask{Spec: "1/4 * * * * *", Task: NewProducer(&fakeQueue{}, quietLogger())},
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()

	waitFor(t, sched.started, "scheduler start")
	if got := testutil.ToFloat64(metrics.IsLeader.WithLabelValues("node-a")); got != 1 {
		t.Fatalf("is_leader: %v", got)
	}
	sched.mu.Lock()
	spec := sched.specs[ProducerTaskName]
	sched.mu.Unlock()
	if spec != "1/4 * * * * *" {
		t.Fatalf("producer not registered, specs: %v", sched.specs)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("start returned %v", err)
	}
	if got := testutil.ToFloat64(metrics.IsLeader.WithLabelValues("node-a")); got != 0 {
		t.Fatalf("is_leader after stop: %v", got)
	}
}

func TestSchedulerServiceFollowsLeadership(t *testing.T) {
	sched := newFakeScheduler()
	leader := &fakeLeader{terms: make(chan chan struct{}, 2), failFirst: true}
	svc := NewSchedulerService(leader, sched, "node-b",
		ScheduledTask{Spec: "1/4 * * * * *", Task: NewProducer(&fakeQueue{}, quietLogger())},
	)
	svc.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()

	first := make(chan struct{})
	leader.terms <- first
	waitFor(t, sched.started, "first term")
	if got := testutil.ToFloat64(metrics.IsLeader.WithLabelValues("node-b")); got != 1 {
		t.Fatalf("is_leader during term: %v", got)
	}

	close(first)
	waitFor(t, sched.stopped, "scheduler stop on lost leadership")

	leader.terms <- make(chan struct{})
	waitFor(t, sched.started, "second term")

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("start returned %v", err)
	}

	leader.mu.Lock()
	defer leader.mu.Unlock()
	if leader.campaigns < 3 {
		t.Fatalf("expected a failed campaign plus two terms, got %d campaigns", leader.campaigns)
	}
	if !leader.resigned {
		t.Fatalf("leader should resign on shutdown")
	}
}
