// cmd/producer/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"work-pipeline/internal/config"
	"work-pipeline/internal/daemon"
	"work-pipeline/internal/domain"
	"work-pipeline/internal/infra/amqp"
	"work-pipeline/internal/infra/etcd"
	"work-pipeline/internal/scheduler"
	"work-pipeline/internal/tracing"
	"work-pipeline/internal/usecase"

	"github.com/google/uuid"
)

const role = "producer"

func main() {
	// 1. Initialize logger and load configuration
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tracerShutdown, err := tracing.InitTracer("work-pipeline-producer", cfg.TracingEnabled)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	nodeID := uuid.New().String()
	log.Printf("Starting work producer node %s...", nodeID)

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	daemon.SetupGracefulShutdown(cancel)

	// 3. Metrics and health endpoints
	metricsServer := daemon.ServeMetrics(cfg.MetricsListenAddr)
	healthServer, err := daemon.ServeHealth(cfg.GrpcListenAddr, role, logger)
	if err != nil {
		log.Fatalf("Failed to start health server: %v", err)
	}

	// 4. Join etcd, when configured, and campaign for the producer schedule
	node, err := daemon.Join(rootCtx, cfg, role, nodeID, logger)
	if err != nil {
		log.Fatalf("Failed to join etcd: %v", err)
	}
	defer node.Leave()

	var leaderManager domain.LeaderElectionManager
	if node.Client != nil {
		leaderManager = etcd.NewEtcdLeaderElectionManager(node.Client, nodeID, cfg.LeaderElectionTTL, logger)
	}

	// 5. Instantiate components
	queue := amqp.NewQueue(cfg.AmqpURL, cfg.AmqpQueue, nil, logger)
	producer := usecase.NewProducer(queue, logger)
	cronScheduler := scheduler.NewCronScheduler(logger, cfg.ShutdownTimeout)
	schedulerService := usecase.NewSchedulerService(leaderManager, cronScheduler, nodeID,
		usecase.ScheduledTask{Spec: cfg.ProduceSchedule, Task: producer},
	)

	// 6. Start SchedulerService
	done := make(chan error, 1)
	go func() {
		done <- schedulerService.Start(rootCtx)
	}()
	healthServer.SetServing(true)
	log.Printf("Producing on schedule %q to queue %s", cfg.ProduceSchedule, cfg.AmqpQueue)

	// 7. Block until shutdown
	select {
	case <-rootCtx.Done():
		<-done
	case err := <-done:
		logger.Error("scheduler service stopped", "error", err)
	}
	log.Println("Shutting down producer gracefully...")

	healthServer.SetServing(false)
	healthServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown failed: %v", err)
	}

	log.Println("Producer shut down.")
}
