package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/agentfleet/task-planner/internal/api_server"
	"github.com/agentfleet/task-planner/internal/api_server/runnerserver"
	"github.com/agentfleet/task-planner/internal/config"
	"github.com/agentfleet/task-planner/internal/events"
	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the task-planner api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
		defer func() { _ = logger.Sync() }()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		evWriter := events.NewEventProducer(&events.StdoutWriter{})
		defer evWriter.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, s, evWriter, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("error running api server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.RunnerEndpointAddress)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := runnerserver.New(cfg, s, evWriter, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("error running runner server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("error running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
