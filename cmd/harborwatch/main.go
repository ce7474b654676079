package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/harborwatch/harborwatch/internal/access"
	"github.com/harborwatch/harborwatch/internal/app"
	"github.com/harborwatch/harborwatch/internal/audit"
	"github.com/harborwatch/harborwatch/internal/auth"
	"github.com/harborwatch/harborwatch/internal/fleet"
	"github.com/harborwatch/harborwatch/internal/observability"
	"github.com/harborwatch/harborwatch/internal/platform/cache"
	"github.com/harborwatch/harborwatch/internal/platform/db"
	"github.com/harborwatch/harborwatch/internal/shared"
	"github.com/harborwatch/harborwatch/internal/users"
	"github.com/harborwatch/harborwatch/internal/voyage"
	"github.com/harborwatch/harborwatch/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "harborwatch_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	asynqClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect asynq", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)

	sessions := auth.NewPGSessions(pool)
	authService := auth.NewService(usersRepo, sessions)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	fleetRepo := fleet.NewRepository(pool)
	directory := fleet.NewDirectory(fleetRepo)

	grantStore := access.NewPGGrantStore(pool, cfg.GrantStoreTimeout)
	setCache := access.NewSetCache(redisClient, cfg.AccessCacheTTL, logger)
	resolver := access.NewResolver(grantStore, directory, logger,
		access.WithSetCache(setCache),
		access.WithDecisionObserver(metrics),
	)
	guard := access.NewTenantGuard(directory, usersRepo)
	accessService := access.NewService(grantStore, guard, logger,
		access.WithServiceCache(setCache),
		access.WithAuditDispatcher(jobs.NewAuditDispatcher(asynqClient)),
	)

	accessMw := access.Middleware{Logger: logger}
	accessHandler := access.NewHandler(logger, accessService, accessMw)
	usersHandler := users.NewHandler(logger, usersService, accessMw)

	fleetService := fleet.NewService(fleetRepo, accessService, logger)
	fleetHandler := fleet.NewHandler(logger, fleetService, resolver, accessMw)

	voyageRepo := voyage.NewRepository(pool)
	voyageHandler := voyage.NewHandler(logger, voyageRepo, fleetRepo, resolver, accessMw)

	auditService := audit.NewService(pool)
	auditHandler := audit.NewHandler(logger, auditService, guard, accessMw)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		IdentityLoader: usersRepo,
		AuthHandler:    authHandler,
		UsersHandler:   usersHandler,
		AccessHandler:  accessHandler,
		FleetHandler:   fleetHandler,
		VoyageHandler:  voyageHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
