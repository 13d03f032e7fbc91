package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"work-pipeline/internal/domain"
	"work-pipeline/internal/metrics"
)

// ScheduledTask pairs a task with its cron spec.
type ScheduledTask struct {
	Spec string
	Task domain.Task
}

// SchedulerService registers tasks on a scheduler and runs it. With a
// leader manager the scheduler only runs while this node leads.
type SchedulerService struct {
	leaderManager domain.LeaderElectionManager
	scheduler     domain.Scheduler
	tasks         []ScheduledTask
	nodeID        string
	retryDelay    time.Duration
}

// NewSchedulerService builds the service. leaderManager may be nil.
func NewSchedulerService(leaderManager domain.LeaderElectionManager, scheduler domain.Scheduler, nodeID string, tasks ...ScheduledTask) *SchedulerService {
	return &SchedulerService{
		leaderManager: leaderManager,
		scheduler:     scheduler,
		tasks:         tasks,
		nodeID:        nodeID,
		retryDelay:    5 * time.Second,
	}
}

// Start blocks until ctx is done.
func (s *SchedulerService) Start(ctx context.Context) error {
	log.Printf("Scheduler service for node %s starting...", s.nodeID)

	for _, t := range s.tasks {
		if err := s.scheduler.AddTask(t.Spec, t.Task); err != nil {
			return fmt.Errorf("failed to register task %s: %w", t.Task.Name(), err)
		}
	}

	if s.leaderManager == nil {
		metrics.IsLeader.WithLabelValues(s.nodeID).Set(1)
		defer metrics.IsLeader.WithLabelValues(s.nodeID).Set(0)
		return s.scheduler.Start(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("Scheduler service for node %s shutting down.", s.nodeID)
			return ctx.Err()
		default:
		}

		log.Printf("Node %s attempting to campaign for leadership...", s.nodeID)
		lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Node %s error during leadership campaign: %v. Retrying in %s...", s.nodeID, err, s.retryDelay)
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		log.Printf("Node %s successfully became the leader. Starting the scheduler.", s.nodeID)
		metrics.IsLeader.WithLabelValues(s.nodeID).Set(1)
		err = s.lead(ctx, lostLeadershipCh)
		metrics.IsLeader.WithLabelValues(s.nodeID).Set(0)
		if err != nil {
			return err
		}
		log.Printf("Node %s lost leadership. Scheduler stopped.", s.nodeID)
	}
}

// lead runs the scheduler for one leadership term. It returns nil when
// leadership is lost and ctx.Err() when ctx ends.
func (s *SchedulerService) lead(ctx context.Context, lost <-chan struct{}) error {
	termCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.scheduler.Start(termCtx)
	}()

	select {
	case <-lost:
		cancel()
		<-done
		return nil
	case <-ctx.Done():
		<-done
		resignCtx, stop := context.WithTimeout(context.Background(), s.retryDelay)
		defer stop()
		if err := s.leaderManager.Resign(resignCtx); err != nil {
			log.Printf("Node %s failed to resign leadership: %v", s.nodeID, err)
		}
		return ctx.Err()
	}
}
