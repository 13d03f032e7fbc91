package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Node is one registered pipeline daemon.
type Node struct {
	Role string
	ID   string
	Addr string
}

// ParseNodeKey splits a registration key into role and id.
func ParseNodeKey(key string) (role, id string, ok bool) {
	rest, found := strings.CutPrefix(key, NodeRegistryPrefix)
	if !found {
		return "", "", false
	}
	role, id, found = strings.Cut(rest, "/")
	if !found || role == "" || id == "" {
		return "", "", false
	}
	return role, id, true
}

// Discovery tracks the daemons registered in etcd.
type Discovery struct {
	client *clientv3.Client
	logger *slog.Logger
	nodes  map[string]Node // key -> node
	mu     sync.RWMutex
}

// NewDiscovery creates a new discovery service.
func NewDiscovery(client *clientv3.Client, logger *slog.Logger) *Discovery {
	return &Discovery{
		client: client,
		logger: logger.With("component", "node-discovery"),
		nodes:  make(map[string]Node),
	}
}

// Load replaces the known nodes with a fresh snapshot.
func (d *Discovery) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := d.client.Get(ctx, NodeRegistryPrefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("failed to list registered nodes: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = make(map[string]Node, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		d.apply(string(kv.Key), string(kv.Value), true)
	}
	return nil
}

// Watch keeps the node set current until ctx is done. It blocks.
func (d *Discovery) Watch(ctx context.Context) {
	d.logger.Info("starting to watch for nodes")
	if err := d.Load(ctx); err != nil {
		d.logger.Error("failed to perform initial node load", "error", err)
	}

	watchChan := d.client.Watch(ctx, NodeRegistryPrefix, clientv3.WithPrefix())
	for watchResp := range watchChan {
		d.mu.Lock()
		for _, event := range watchResp.Events {
			d.apply(string(event.Kv.Key), string(event.Kv.Value), event.Type == clientv3.EventTypePut)
		}
		d.mu.Unlock()
	}
	d.logger.Info("stopped watching for nodes")
}

// apply must be called with d.mu held.
func (d *Discovery) apply(key, addr string, put bool) {
	role, id, ok := ParseNodeKey(key)
	if !ok {
		d.logger.Warn("ignoring malformed node key", "key", key)
		return
	}
	if !put {
		d.logger.Info("node deregistered", "role", role, "id", id)
		delete(d.nodes, key)
		return
	}
	if _, known := d.nodes[key]; !known {
		d.logger.Info("node discovered", "role", role, "id", id, "addr", addr)
	}
	d.nodes[key] = Node{Role: role, ID: id, Addr: addr}
}

// Nodes returns the known nodes ordered by role then id.
func (d *Discovery) Nodes() []Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes := make([]Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Role != nodes[j].Role {
			return nodes[i].Role < nodes[j].Role
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}
