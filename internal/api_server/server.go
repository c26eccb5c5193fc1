package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/artifacts"
	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/config"
	"github.com/agentfleet/task-planner/internal/events"
	"github.com/agentfleet/task-planner/internal/handlers"
	"github.com/agentfleet/task-planner/internal/provisioner"
	"github.com/agentfleet/task-planner/internal/queue"
	"github.com/agentfleet/task-planner/internal/service"
	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/pkg/metrics"
	"github.com/agentfleet/task-planner/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second

	apiPrefix = "/api/v1"
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
	evWriter *events.EventProducer
}

// New returns a new instance of the caller-facing task-planner server.
func New(
	cfg *config.Config,
	store store.Store,
	ew *events.EventProducer,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		evWriter: ew,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	authenticator, err := auth.NewTokenAuthenticator(s.cfg.Service.Auth)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	permissions, err := auth.LoadPermissions(s.cfg.Service.PermissionsFile)
	if err != nil {
		return fmt.Errorf("failed to load permission table: %w", err)
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	// Initialize pgx pool for River
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s dbname=%s",
		s.cfg.Database.Hostname,
		s.cfg.Database.User,
		s.cfg.Database.Password,
		s.cfg.Database.Port,
		s.cfg.Database.Name,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("failed to parse pgx config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer dbPool.Close()

	dockerProvisioner, err := provisioner.NewDockerProvisioner(s.cfg.Service.Runner, s.cfg.Service.BaseRunnerEndpointUrl)
	if err != nil {
		return fmt.Errorf("failed to create provisioner: %w", err)
	}

	queueClient, err := queue.NewClient(dbPool, service.NewProvisionService(s.store, dockerProvisioner))
	if err != nil {
		return fmt.Errorf("failed to create queue client: %w", err)
	}

	if err := queueClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue client: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queueClient.Stop(stopCtx); err != nil {
			zap.S().Named("api_server").Warnw("failed to stop queue client", "error", err)
		}
	}()

	zap.S().Named("api_server").Info("Provisioning queue initialized")

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

	jobSrv := service.NewJobService(s.store, queueClient, artifactStore, s.evWriter,
		s.cfg.Service.Runner.LogStreamPrefix, s.cfg.Service.Runner.ContainerName).
		WithTTL(time.Duration(s.cfg.Service.JobTTL) * time.Hour)
	membershipSrv := service.NewMembershipService(s.store)

	jobHandler := handlers.NewJobHandler(jobSrv)
	tenantHandler := handlers.NewTenantHandler(membershipSrv)

	router.Get("/health", handlers.Health)
	router.Route(apiPrefix, func(r chi.Router) {
		r.Use(auth.NewAuthorizer(authenticator, s.store, permissions, apiPrefix).Middleware)
		jobHandler.Routes(r)
		tenantHandler.Routes(r)
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
