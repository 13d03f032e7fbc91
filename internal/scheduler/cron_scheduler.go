// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"work-pipeline/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CronScheduler fires tasks on six-field cron specs. robfig/cron starts every
// due entry in its own goroutine and never waits for the previous run, so
// invocations of the same task overlap freely.
type CronScheduler struct {
	cron   *cron.Cron
	tasks  map[string]cron.EntryID
	mu     sync.Mutex
	logger *slog.Logger
	tracer trace.Tracer

	// base parents every invocation started since the last Start. Stop
	// cancels it only after stopWait, for invocations it abandons.
	base       context.Context
	cancelBase context.CancelFunc
	stopWait   time.Duration
}

// NewCronScheduler builds a scheduler. stopWait bounds how long Stop waits for
// in-flight invocations before abandoning them.
func NewCronScheduler(logger *slog.Logger, stopWait time.Duration) *CronScheduler {
	logger = logger.With("component", "cron-scheduler")
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger{logger})),
		cron.WithLogger(cronLogger{logger}),
	)
	return &CronScheduler{
		cron:       c,
		tasks:      make(map[string]cron.EntryID),
		logger:     logger,
		tracer:     otel.Tracer("work-pipeline-scheduler"),
		stopWait:   stopWait,
	}
}

// Start runs the scheduler until ctx is done, then stops it. A stopped
// scheduler can be started again.
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.base, s.cancelBase = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopping...")
	s.Stop()
	return ctx.Err()
}

// Stop halts further ticks and waits up to stopWait for in-flight
// invocations. Whatever is still running after that is abandoned and its
// context cancelled.
func (s *CronScheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("cron scheduler stopped")
	case <-time.After(s.stopWait):
		s.logger.Warn("cron scheduler stopped, abandoning in-flight invocations", "waited", s.stopWait)
	}

	s.mu.Lock()
	if s.cancelBase != nil {
		s.cancelBase()
	}
	s.mu.Unlock()
}

func (s *CronScheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return context.Background()
	}
	return s.base
}

// AddTask registers task under spec, replacing a task of the same name.
func (s *CronScheduler) AddTask(spec string, task domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[task.Name()]; ok {
		s.cron.Remove(entryID)
	}

	wrapper := &cronTaskWrapper{
		task:   task,
		base:   s.baseContext,
		logger: s.logger.With("task", task.Name()),
		tracer: s.tracer,
	}

	entryID, err := s.cron.AddJob(spec, wrapper)
	if err != nil {
		s.logger.Error("failed to add task to cron", "task", task.Name(), "error", err)
		return fmt.Errorf("failed to schedule task %s with %q: %w", task.Name(), spec, err)
	}

	s.tasks[task.Name()] = entryID
	s.logger.Info("added task to scheduler", "task", task.Name(), "schedule", spec)
	return nil
}

// RemoveTask removes a task from the scheduler.
func (s *CronScheduler) RemoveTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
		s.logger.Info("removed task from scheduler", "task", name)
	}
	return nil
}

// cronTaskWrapper adapts a domain.Task to cron.Job.
type cronTaskWrapper struct {
	task   domain.Task
	base   func() context.Context
	logger *slog.Logger
	tracer trace.Tracer
}

// Run is called by the cron library on its own goroutine. A failing task only
// fails this invocation; the next tick fires it again.
func (w *cronTaskWrapper) Run() {
	ctx, span := w.tracer.Start(w.base(), "scheduler.Tick",
		trace.WithNewRoot(),
		trace.WithAttributes(attribute.String("task.name", w.task.Name())),
	)
	defer span.End()

	if err := w.task.Run(ctx); err != nil {
		w.logger.Error("task invocation failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
	}
}

// cronLogger bridges robfig/cron logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
