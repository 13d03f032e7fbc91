package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"work-pipeline/internal/domain"
	"work-pipeline/internal/factory"
	"work-pipeline/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ConsumerTaskName is the scheduler registration name of the consumer.
const ConsumerTaskName = "consumer"

// WorkerIDLength is the length of the per-invocation log correlation tag.
const WorkerIDLength = 5

// State is a consumer invocation's position in the work lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateClaiming   State = "claiming"
	StateClaimed    State = "claimed"
	StatePersisting State = "persisting"
	StateExecuting  State = "executing"
	StateRecording  State = "recording"
	StateCompleting State = "completing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Step names one fallible call made during an invocation.
type Step string

const (
	StepClaim        Step = "claim"
	StepAcquire      Step = "acquire_session"
	StepCreateWork   Step = "create_work"
	StepStartEvent   Step = "start_event"
	StepCompute      Step = "compute"
	StepStopEvent    Step = "stop_event"
	StepMarkDone     Step = "mark_done"
	StepResultEvent  Step = "result_event"
	StepCloseSession Step = "close_session"
)

// Policy decides what a failed step does to the invocation.
type Policy int

const (
	// Fatal ends the invocation in StateFailed.
	Fatal Policy = iota
	// BestEffort records the failure and moves on to the next step.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "fatal"
}

// StepPolicy maps steps to policies. Steps missing from the map are Fatal.
type StepPolicy map[Step]Policy

func (sp StepPolicy) For(step Step) Policy {
	if p, ok := sp[step]; ok {
		return p
	}
	return Fatal
}

// DefaultStepPolicy fails the invocation only when there is nothing to work
// on or nowhere to record it. Every write after that is best-effort, so a
// failed event insert never keeps a Work row at done=false.
var DefaultStepPolicy = StepPolicy{
	StepClaim:        Fatal,
	StepAcquire:      Fatal,
	StepCreateWork:   BestEffort,
	StepStartEvent:   BestEffort,
	StepCompute:      Fatal,
	StepStopEvent:    BestEffort,
	StepMarkDone:     BestEffort,
	StepResultEvent:  BestEffort,
	StepCloseSession: BestEffort,
}

// ErrNoDemand is returned when a claim yields no demand.
var ErrNoDemand = errors.New("no work demand claimed")

// ErrWorkNotPersisted marks completion skipped because the Work row was never written.
var ErrWorkNotPersisted = errors.New("work was never persisted")

// StepError wraps the failure of one step.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Outcome describes what one invocation did.
type Outcome struct {
	WorkerID string
	State    State
	Work     *domain.Work
	Result   int64
	// Failures holds every failed step in order.
	Failures []*StepError
	// Fatal is the failure that ended the invocation, if any.
	Fatal *StepError
	// Warnings are per-delivery problems reported by the queue.
	Warnings []error
}

// Failed reports whether step failed during the invocation.
func (o *Outcome) Failed(step Step) bool {
	for _, f := range o.Failures {
		if f.Step == step {
			return true
		}
	}
	return false
}

// ConsumerConfig tunes a Consumer.
type ConsumerConfig struct {
	// WorkerPrefix prefixes the codes of claimed works.
	WorkerPrefix string
	// StepDelay is slept once per addition of the simulated computation.
	StepDelay time.Duration
	// Policy overrides DefaultStepPolicy when set.
	Policy StepPolicy
}

// Consumer claims one demand per invocation and carries it through the
// work lifecycle: claim, persist, compute, record, complete.
type Consumer struct {
	queue  domain.WorkQueue
	store  domain.Store
	prefix string
	delay  time.Duration
	policy StepPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
	tracer trace.Tracer
}

func NewConsumer(queue domain.WorkQueue, store domain.Store, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultStepPolicy
	}
	return &Consumer{
		queue:  queue,
		store:  store,
		prefix: cfg.WorkerPrefix,
		delay:  cfg.StepDelay,
		policy: policy,
		sleep:  sleepContext,
		logger: logger.With("component", "consumer"),
		tracer: otel.Tracer("work-pipeline-usecase"),
	}
}

func (c *Consumer) Name() string { return ConsumerTaskName }

// Run processes one demand. It fails only when a Fatal step failed.
func (c *Consumer) Run(ctx context.Context) error {
	out := c.Process(ctx)
	if out.Fatal != nil {
		return out.Fatal
	}
	return nil
}

// invocation is the mutable state of a single Process call.
type invocation struct {
	c       *Consumer
	ctx     context.Context
	out     *Outcome
	logger  *slog.Logger
	session domain.Session
}

// Process runs the state machine once and reports the outcome.
func (c *Consumer) Process(ctx context.Context) *Outcome {
	workerID := factory.RandomAlphanumeric(WorkerIDLength)
	ctx, span := c.tracer.Start(ctx, "consumer.Process", trace.WithAttributes(attribute.String("worker.id", workerID)))
	defer span.End()

	inv := &invocation{
		c:      c,
		ctx:    ctx,
		out:    &Outcome{WorkerID: workerID, State: StateIdle},
		logger: c.logger.With("worker_id", workerID),
	}
	inv.run()

	out := inv.out
	metrics.ConsumerRunsTotal.WithLabelValues(string(out.State)).Inc()
	switch {
	case out.Fatal != nil:
		span.RecordError(out.Fatal)
		span.SetStatus(codes.Error, "consumer invocation failed")
		inv.logger.Error("consumer invocation failed", "step", out.Fatal.Step, "error", out.Fatal.Err)
	case len(out.Failures) > 0:
		inv.logger.Warn("consumer invocation completed with step failures", "failures", len(out.Failures), "result", out.Result)
	default:
		inv.logger.Info("consumer invocation completed", "result", out.Result)
	}
	return out
}

func (inv *invocation) run() {
	inv.transition(StateClaiming)
	var demand domain.WorkDemand
	ok := inv.do(StepClaim, func(ctx context.Context) error {
		batch, err := inv.c.queue.Consume(ctx, 1)
		if err != nil {
			return err
		}
		inv.out.Warnings = append(inv.out.Warnings, batch.Warnings...)
		for _, w := range batch.Warnings {
			inv.logger.Warn("queue reported a delivery problem", "error", w)
		}
		if len(batch.Demands) == 0 {
			return ErrNoDemand
		}
		demand = batch.Demands[0]
		return nil
	})
	if !ok {
		return
	}
	inv.transition(StateClaimed)

	work := factory.MapToWork(demand, inv.c.prefix)
	inv.out.Work = work
	inv.logger = inv.logger.With("work_code", work.WorkCode)

	if !inv.do(StepAcquire, func(ctx context.Context) error {
		session, err := inv.c.store.Acquire(ctx)
		if err != nil {
			return err
		}
		inv.session = session
		return nil
	}) {
		return
	}
	defer inv.release()

	inv.transition(StatePersisting)
	if !inv.do(StepCreateWork, func(ctx context.Context) error {
		created, err := inv.session.CreateWork(ctx, work)
		if err != nil {
			return err
		}
		inv.out.Work = created
		return nil
	}) {
		return
	}

	inv.transition(StateExecuting)
	if !inv.event(StepStartEvent, domain.VarComputeStart, "") {
		return
	}
	if !inv.do(StepCompute, func(ctx context.Context) error {
		total, err := inv.c.compute(ctx, inv.out.Work.AddUpTo)
		inv.out.Result = total
		return err
	}) {
		return
	}

	inv.transition(StateRecording)
	if !inv.event(StepStopEvent, domain.VarComputeStop, "") {
		return
	}

	inv.transition(StateCompleting)
	if !inv.do(StepMarkDone, func(ctx context.Context) error {
		w := inv.out.Work
		if !w.Persisted() {
			return ErrWorkNotPersisted
		}
		at := factory.CompletionTime(w.CreatedOn)
		if err := inv.session.MarkWorkDone(ctx, w.ID, at); err != nil {
			if rc, ok := domain.IsRowCount(err); ok && rc.Count > 1 {
				// More than one row changed; the target row is done too.
				w.Done, w.UpdatedOn = true, at
			}
			return err
		}
		w.Done, w.UpdatedOn = true, at
		return nil
	}) {
		return
	}
	if !inv.event(StepResultEvent, domain.VarComputeResult, strconv.FormatInt(inv.out.Result, 10)) {
		return
	}

	inv.transition(StateDone)
}

// do runs one step under its policy and reports whether the invocation continues.
func (inv *invocation) do(step Step, fn func(ctx context.Context) error) bool {
	ctx, span := inv.c.tracer.Start(inv.ctx, "consumer."+string(step))
	defer span.End()

	err := fn(ctx)
	if err == nil {
		return true
	}

	policy := inv.c.policy.For(step)
	serr := &StepError{Step: step, Err: err}
	inv.out.Failures = append(inv.out.Failures, serr)
	metrics.ConsumerStepFailuresTotal.WithLabelValues(string(step)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "step failed")

	if policy == Fatal {
		inv.out.Fatal = serr
		inv.transition(StateFailed)
		return false
	}
	inv.logger.Warn("step failed, continuing", "step", step, "policy", policy.String(), "error", err)
	return true
}

func (inv *invocation) event(step Step, variable, value string) bool {
	return inv.do(step, func(ctx context.Context) error {
		_, err := inv.session.CreateEvent(ctx, factory.NewEvent(inv.out.Work.WorkCode, variable, value))
		return err
	})
}

// release closes the session on every exit path after a successful acquire.
func (inv *invocation) release() {
	if inv.session == nil {
		return
	}
	inv.do(StepCloseSession, func(context.Context) error {
		return inv.session.Close()
	})
	inv.session = nil
}

func (inv *invocation) transition(to State) {
	inv.logger.Debug("consumer state transition", "from", inv.out.State, "to", to)
	inv.out.State = to
}

// compute sums 1..addUpTo-1, sleeping the step delay before each addition.
func (c *Consumer) compute(ctx context.Context, addUpTo int) (int64, error) {
	start := time.Now()
	defer func() { metrics.ComputeDuration.Observe(time.Since(start).Seconds()) }()

	var total int64
	for n := 1; n < addUpTo; n++ {
		if err := c.sleep(ctx, c.delay); err != nil {
			return total, fmt.Errorf("computation interrupted at step %d: %w", n, err)
		}
		total += int64(n)
	}
	return total, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
