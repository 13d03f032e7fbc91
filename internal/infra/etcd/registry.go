package etcd

import (
	"context"
	"fmt"
	"log/slog"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// NodeRegistryPrefix is where pipeline daemons register their health address.
	NodeRegistryPrefix = "/work-pipeline/nodes/"
)

// NodeKey builds the registration key of a daemon.
func NodeKey(role, nodeID string) string {
	return NodeRegistryPrefix + role + "/" + nodeID
}

// Registry keeps a daemon's registration alive under a lease.
type Registry struct {
	client  *clientv3.Client
	logger  *slog.Logger
	leaseID clientv3.LeaseID
	key     string
	value   string
}

// NewRegistry creates a new node registry.
func NewRegistry(client *clientv3.Client, logger *slog.Logger) *Registry {
	return &Registry{
		client: client,
		logger: logger.With("component", "node-registry"),
	}
}

// Register publishes addr under the node's key and keeps the lease alive
// until Deregister or process exit.
func (r *Registry) Register(ctx context.Context, role, nodeID, addr string, ttl int64) error {
	r.key = NodeKey(role, nodeID)
	r.value = addr

	leaseResp, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	r.leaseID = leaseResp.ID

	_, err = r.client.Put(ctx, r.key, r.value, clientv3.WithLease(r.leaseID))
	if err != nil {
		return fmt.Errorf("failed to put node registration key: %w", err)
	}

	keepAliveCh, err := r.client.KeepAlive(context.Background(), r.leaseID)
	if err != nil {
		return fmt.Errorf("failed to start keep-alive: %w", err)
	}

	go func() {
		for ka := range keepAliveCh {
			r.logger.Debug("lease keep-alive refreshed", "lease_id", ka.ID, "ttl", ka.TTL)
		}
		// Closed when the lease is revoked or expired.
		r.logger.Warn("keep-alive channel closed, node registration may have expired", "key", r.key)
	}()

	r.logger.Info("node registered successfully", "key", r.key, "value", r.value)
	return nil
}

// Deregister revokes the lease, which deletes the key.
func (r *Registry) Deregister(ctx context.Context) error {
	r.logger.Info("deregistering node", "key", r.key)
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	return nil
}
