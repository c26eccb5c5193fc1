package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/runner"
	"github.com/agentfleet/task-planner/pkg/log"
)

func main() {
	cfg, err := runner.NewConfig()
	if err != nil {
		zap.S().Fatalw("reading configuration", "error", err)
	}

	logger := log.InitLog(log.ParseLevel(cfg.LogLevel))
	defer func() { _ = logger.Sync() }()

	undo := zap.ReplaceGlobals(logger)
	defer undo()

	zap.S().Infow("Starting task runner", "job", cfg.JobID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	executor := runner.NewExecutor(cfg,
		runner.NewClient(cfg),
		runner.NewHTTPFetcher(time.Duration(cfg.FetchTimeoutSeconds)*time.Second))

	if err := executor.Run(ctx); err != nil {
		zap.S().Errorw("task runner finished with error", "job", cfg.JobID, "error", err)
		os.Exit(1)
	}

	zap.S().Infow("task runner finished", "job", cfg.JobID)
}
