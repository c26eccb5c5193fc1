package runnerserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/artifacts"
	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/config"
	"github.com/agentfleet/task-planner/internal/events"
	"github.com/agentfleet/task-planner/internal/handlers"
	"github.com/agentfleet/task-planner/internal/service"
	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/pkg/metrics"
	"github.com/agentfleet/task-planner/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second

	runnerPrefix = "/runner/api/v1"
)

// RunnerServer is the executor-facing listener. Runners hold job-scoped
// tokens minted at provisioning time; nothing on this surface accepts a
// caller credential.
type RunnerServer struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
	evWriter *events.EventProducer
}

func New(
	cfg *config.Config,
	store store.Store,
	ew *events.EventProducer,
	listener net.Listener,
) *RunnerServer {
	return &RunnerServer{
		cfg:      cfg,
		store:    store,
		evWriter: ew,
		listener: listener,
	}
}

func (s *RunnerServer) Run(ctx context.Context) error {
	zap.S().Named("runner_server").Info("Initializing runner-side API server")

	artifactStore, err := artifacts.NewStore(
		artifacts.WithEndpoint(s.cfg.Service.Artifacts.Endpoint),
		artifacts.WithBucket(s.cfg.Service.Artifacts.Bucket),
		artifacts.WithAccessKey(s.cfg.Service.Artifacts.AccessKey),
		artifacts.WithSecretKey(s.cfg.Service.Artifacts.SecretKey),
		artifacts.WithSSL(s.cfg.Service.Artifacts.UseSSL),
		artifacts.WithPresignExpiry(time.Duration(s.cfg.Service.Artifacts.PresignExpiry)*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("runner_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	runnerSrv := service.NewRunnerService(s.store, artifactStore, s.evWriter,
		s.cfg.Service.Runner.LogStreamPrefix, s.cfg.Service.Runner.ContainerName)
	runnerHandler := handlers.NewRunnerHandler(runnerSrv)

	router.Get("/health", handlers.Health)
	router.Route(runnerPrefix, func(r chi.Router) {
		r.Use(auth.NewRunnerAuthenticator(s.store).Authenticator)
		runnerHandler.Routes(r)
	})

	srv := http.Server{Addr: s.cfg.Service.RunnerEndpointAddress, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("runner_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
	}()

	zap.S().Named("runner_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
