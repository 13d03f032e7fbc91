package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	otelgrpc "go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Prober checks the health of remote daemons, caching one client per address.
type Prober struct {
	opts    []grpc.DialOption
	clients map[string]*grpc.ClientConn
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewProber creates a prober. opts are appended to the default insecure,
// instrumented dial options.
func NewProber(logger *slog.Logger, opts ...grpc.DialOption) *Prober {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	return &Prober{
		opts:    append(defaults, opts...),
		clients: make(map[string]*grpc.ClientConn),
		logger:  logger.With("component", "health-prober"),
	}
}

func (p *Prober) client(addr string) (healthpb.HealthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.clients[addr]; ok {
		return healthpb.NewHealthClient(conn), nil
	}
	conn, err := grpc.NewClient(addr, p.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", addr, err)
	}
	p.clients[addr] = conn
	return healthpb.NewHealthClient(conn), nil
}

// Check returns the serving status the daemon at addr reports for service.
func (p *Prober) Check(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	client, err := p.client(addr)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		p.logger.Warn("health check failed", "addr", addr, "error", err)
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check of %s failed: %w", addr, err)
	}
	return resp.GetStatus(), nil
}

// Close closes every cached client.
func (p *Prober) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for addr, conn := range p.clients {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, addr)
	}
	return firstErr
}
