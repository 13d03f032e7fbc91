package domain

import "context"

// Task is a unit of work fired by the scheduler. Every tick runs Run in its
// own goroutine; invocations may overlap.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler fires registered tasks on a cron cadence.
type Scheduler interface {
	// Start runs the scheduler until ctx is done, then stops it.
	Start(ctx context.Context) error
	// Stop halts further ticks. In-flight invocations get a grace period and
	// are abandoned after it.
	Stop()

	AddTask(spec string, task Task) error
	RemoveTask(name string) error
}
