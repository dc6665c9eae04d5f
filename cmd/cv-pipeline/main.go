package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talentpool/cv-pipeline/internal/agent/openai"
	"github.com/talentpool/cv-pipeline/internal/bus"
	"github.com/talentpool/cv-pipeline/internal/common"
	"github.com/talentpool/cv-pipeline/internal/dispatch"
	"github.com/talentpool/cv-pipeline/internal/pipeline"
	"github.com/talentpool/cv-pipeline/internal/server"
	"github.com/talentpool/cv-pipeline/internal/status"

	repo "github.com/talentpool/cv-pipeline/internal/repository"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(pool, logger)

	if err := repo.HealthCheck(ctx, pool, cfg.Database.HealthTimeout, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Messaging is best-effort: a broker outage degrades event delivery but
	// must not keep uploads from being accepted.
	manager := bus.NewManager(logger)
	if err := manager.Connect(cfg.NATS); err != nil {
		logger.Warn("messaging unavailable, continuing without events", "error", err)
	}
	defer manager.Disconnect()

	busService := bus.NewService(manager, logger)
	events := bus.NewPublisher(busService, logger)

	docsRepo := repo.NewDocumentRepository(pool, logger)
	statusStore := status.NewStore(logger)

	analyzer := openai.NewClient(openai.Config{
		APIKey:      cfg.Agent.APIKey,
		BaseURL:     cfg.Agent.BaseURL,
		Model:       cfg.Agent.Model,
		Temperature: cfg.Agent.Temperature,
		Timeout:     cfg.Agent.Timeout,
	}, logger)

	orchestrator := pipeline.NewOrchestrator(statusStore, events, analyzer, docsRepo,
		pipeline.DefaultGatePolicy, cfg.Pipeline.StageTimeout, logger)

	queue := dispatch.NewQueue(orchestrator, logger,
		dispatch.WithWorkers(cfg.Pipeline.Workers),
		dispatch.WithQueueSize(cfg.Pipeline.QueueSize),
	)

	dispatcher := dispatch.NewDispatcher(statusStore, docsRepo, queue, events,
		cfg.Upload.MaxFileSize, logger)

	svc := server.NewService(dispatcher, statusStore, docsRepo, manager,
		cfg.Upload.MaxFileSize, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: svc.Router(),
	}

	// Stale sessions are swept on an interval so the store stays bounded.
	go func() {
		ticker := time.NewTicker(cfg.Status.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := statusStore.Sweep(cfg.Status.MaxAge); removed > 0 {
					logger.Info("status sessions swept", "removed", removed)
				}
			}
		}
	}()

	logger.Info("cv-pipeline listening", "addr", cfg.Server.HTTPAddr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	queue.Shutdown(shutdownCtx)
}
