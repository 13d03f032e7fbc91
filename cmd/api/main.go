// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"

	http_api "work-pipeline/internal/api/http"
	"work-pipeline/internal/config"
	"work-pipeline/internal/daemon"
	"work-pipeline/internal/infra/store"
	"work-pipeline/internal/tracing"
	"work-pipeline/internal/usecase"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const role = "api"

func main() {
	// 1. Initialize logger and load configuration
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tracerShutdown, err := tracing.InitTracer("work-pipeline-api", cfg.TracingEnabled)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	nodeID := uuid.New().String()
	log.Printf("Starting work API node %s...", nodeID)

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	daemon.SetupGracefulShutdown(cancel)

	// 3. Connect to the database
	st, err := store.Open(rootCtx, cfg.DbDriver, cfg.StoreDSN(), logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	log.Printf("Connected to %s database.", cfg.DbDriver)

	// 4. Health endpoint and etcd registration
	healthServer, err := daemon.ServeHealth(cfg.GrpcListenAddr, role, logger)
	if err != nil {
		log.Fatalf("Failed to start health server: %v", err)
	}
	node, err := daemon.Join(rootCtx, cfg, role, nodeID, logger)
	if err != nil {
		log.Fatalf("Failed to join etcd: %v", err)
	}
	defer node.Leave()

	// 5. Instantiate components
	workService := usecase.NewWorkService(st.Pooled(), cfg.ApiPrefix, cfg.SearchWindow, logger)
	workHandler := http_api.NewWorkHandler(workService, logger)

	// 6. Register routes and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	workHandler.RegisterRoutes(mux)

	// 7. Start HTTP API server with CORS middleware
	log.Printf("Starting HTTP API server on %s", cfg.HttpListenAddr)
	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: http_api.CORS(mux),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
	healthServer.SetServing(true)

	// 8. Block until shutdown
	<-rootCtx.Done()
	log.Println("Shutting down application gracefully...")

	healthServer.SetServing(false)
	healthServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown failed: %v", err)
	}

	log.Println("Application shut down.")
}
