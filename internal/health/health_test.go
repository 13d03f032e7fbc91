package health

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startBufServer(t *testing.T) (*Server, *Prober) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer("consumer", logger)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	prober := NewProber(logger, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	t.Cleanup(func() { _ = prober.Close() })
	return srv, prober
}

func check(t *testing.T, p *Prober, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := p.Check(ctx, "passthrough:///bufnet", service)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return status
}

func TestHealthStatusFollowsServingFlag(t *testing.T) {
	srv, prober := startBufServer(t)

	if got := check(t, prober, "consumer"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status: %s", got)
	}

	srv.SetServing(true)
	if got := check(t, prober, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status: %s", got)
	}
	if got := check(t, prober, "consumer"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("service status: %s", got)
	}

	srv.SetServing(false)
	if got := check(t, prober, "consumer"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status after flip: %s", got)
	}
}

func TestProberUnknownService(t *testing.T) {
	_, prober := startBufServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := prober.Check(ctx, "passthrough:///bufnet", "nope"); err == nil {
		t.Fatalf("expected NotFound for an unregistered service")
	}
}

func TestProberCachesClients(t *testing.T) {
	_, prober := startBufServer(t)
	check(t, prober, "")
	check(t, prober, "consumer")

	prober.mu.Lock()
	n := len(prober.clients)
	prober.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected one cached client, got %d", n)
	}
}
