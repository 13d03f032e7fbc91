// Package daemon holds the bootstrapping shared by the pipeline daemons:
// signal handling, the metrics endpoint, the health server and etcd registration.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"work-pipeline/internal/config"
	"work-pipeline/internal/health"
	"work-pipeline/internal/infra/etcd"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// SetupGracefulShutdown cancels on SIGINT or SIGTERM.
func SetupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v. Initiating graceful shutdown...", sig)
		cancel()
	}()
}

// ServeMetrics exposes /metrics on addr. Callers Shutdown the returned server.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Metrics server failed: %v", err)
		}
	}()
	return server
}

// ServeHealth listens on addr and serves the gRPC health service for role.
// The server reports NOT_SERVING until the caller flips it.
func ServeHealth(addr, role string, logger *slog.Logger) (*health.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for gRPC: %w", err)
	}
	server := health.NewServer(role, logger)
	go func() {
		if err := server.Serve(lis); err != nil {
			logger.Error("gRPC health server stopped", "error", err)
		}
	}()
	return server, nil
}

// AdvertiseAddr turns a listen address into one other hosts can dial.
// An empty host becomes the machine's hostname.
func AdvertiseAddr(listenAddr string) (string, error) {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host, err = os.Hostname()
		if err != nil {
			return "", fmt.Errorf("failed to resolve hostname: %w", err)
		}
	}
	return net.JoinHostPort(host, port), nil
}

// Node is a daemon's etcd presence. A zero Node (no etcd configured) is valid
// and every method is a no-op on it.
type Node struct {
	Client   *clientv3.Client
	registry *etcd.Registry
	logger   *slog.Logger
}

// Join connects to etcd and registers the daemon's health address. It returns
// a zero Node when no etcd endpoints are configured.
func Join(ctx context.Context, cfg *config.Config, role, nodeID string, logger *slog.Logger) (*Node, error) {
	if !cfg.LeaderElectionEnabled() {
		log.Println("No etcd endpoints configured, running standalone.")
		return &Node{}, nil
	}

	client, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		return nil, err
	}
	log.Println("Connected to etcd.")

	addr, err := AdvertiseAddr(cfg.GrpcListenAddr)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	registry := etcd.NewRegistry(client, logger)
	regCtx, regCancel := context.WithTimeout(ctx, cfg.EtcdTimeout)
	defer regCancel()
	if err := registry.Register(regCtx, role, nodeID, addr, int64(cfg.LeaderElectionTTL.Seconds())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to register %s node: %w", role, err)
	}
	return &Node{Client: client, registry: registry, logger: logger}, nil
}

// Leave deregisters and closes the etcd client.
func (n *Node) Leave() {
	if n.Client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := n.registry.Deregister(ctx); err != nil {
		n.logger.Error("failed to deregister node", "error", err)
	}
	_ = n.Client.Close()
}
