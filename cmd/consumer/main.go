// cmd/consumer/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"work-pipeline/internal/config"
	"work-pipeline/internal/daemon"
	"work-pipeline/internal/infra/amqp"
	"work-pipeline/internal/infra/store"
	"work-pipeline/internal/scheduler"
	"work-pipeline/internal/tracing"
	"work-pipeline/internal/usecase"

	"github.com/google/uuid"
)

const role = "consumer"

func main() {
	// 1. Initialize logger and load configuration
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tracerShutdown, err := tracing.InitTracer("work-pipeline-consumer", cfg.TracingEnabled)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	nodeID := uuid.New().String()
	log.Printf("Starting work consumer node %s...", nodeID)

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

	// 4. Metrics and health endpoints
	metricsServer := daemon.ServeMetrics(cfg.MetricsListenAddr)
	healthServer, err := daemon.ServeHealth(cfg.GrpcListenAddr, role, logger)
	if err != nil {
		log.Fatalf("Failed to start health server: %v", err)
	}

	// 5. Register in etcd, when configured. Consumers compete for demands
	// on the queue, so every node runs its schedule.
	node, err := daemon.Join(rootCtx, cfg, role, nodeID, logger)
	if err != nil {
		log.Fatalf("Failed to join etcd: %v", err)
	}
	defer node.Leave()

	// 6. Instantiate components
	queue := amqp.NewQueue(cfg.AmqpURL, cfg.AmqpQueue, nil, logger)
	consumer := usecase.NewConsumer(queue, st, usecase.ConsumerConfig{
		WorkerPrefix: cfg.WorkerPrefix,
		StepDelay:    cfg.ComputeStepDelay,
	}, logger)
	cronScheduler := scheduler.NewCronScheduler(logger, cfg.ShutdownTimeout)
	schedulerService := usecase.NewSchedulerService(nil, cronScheduler, nodeID,
		usecase.ScheduledTask{Spec: cfg.ConsumeSchedule, Task: consumer},
	)

	// 7. Start SchedulerService
	done := make(chan error, 1)
	go func() {
		done <- schedulerService.Start(rootCtx)
	}()
	healthServer.SetServing(true)
	log.Printf("Consuming on schedule %q from queue %s", cfg.ConsumeSchedule, cfg.AmqpQueue)

	// 8. Block until shutdown
	select {
	case <-rootCtx.Done():
		<-done
	case err := <-done:
		logger.Error("scheduler service stopped", "error", err)
	}
	log.Println("Shutting down consumer gracefully...")

	healthServer.SetServing(false)
	healthServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown failed: %v", err)
	}

	log.Println("Consumer shut down.")
}
