package domain

import "context"

// LeaderElectionManager gates singleton duties (the producer's schedule) across replicas.
type LeaderElectionManager interface {
	// Campaign blocks until this node leads. The returned channel closes when leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
