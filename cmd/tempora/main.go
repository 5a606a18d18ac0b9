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

	"github.com/hibiken/asynq"

	"github.com/tempora-hq/tempora/internal/app"
	"github.com/tempora-hq/tempora/internal/auth"
	"github.com/tempora-hq/tempora/internal/authz"
	"github.com/tempora-hq/tempora/internal/observability"
	"github.com/tempora-hq/tempora/internal/platform/cache"
	"github.com/tempora-hq/tempora/internal/platform/db"
	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/projects"
	"github.com/tempora-hq/tempora/internal/reports"
	"github.com/tempora-hq/tempora/internal/shared"
	"github.com/tempora-hq/tempora/internal/timesheet"
	"github.com/tempora-hq/tempora/internal/users"
	"github.com/tempora-hq/tempora/jobs"
	"github.com/tempora-hq/tempora/report"
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

	auditLogger := shared.NewAuditLogger(pool)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, auth.ServiceConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	authHandler := auth.NewHandler(logger, authService)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, auditLogger)
	usersHandler := users.NewHandler(logger, usersService)

	bootstrapAdmin(ctx, logger, cfg, usersService)

	projectsRepo := projects.NewRepository(pool)
	projectsService := projects.NewService(projectsRepo, auditLogger, projects.Config{
		SingleManagerPolicy: cfg.SingleManagerPolicy,
	})
	projectsHandler := projects.NewHandler(logger, projectsService)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	pdfClient := report.NewClient(cfg.GotenbergURL, cfg.GotenbergTimeout)
	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(logger, reportsRepo, reportCache, pdfClient, auditLogger)
	reportsHandler := reports.NewHandler(logger, reportsService)

	timesheetRepo := timesheet.NewRepository(pool)
	timesheetService := timesheet.NewService(logger, timesheetRepo, reportCache, auditLogger)
	timesheetHandler := timesheet.NewHandler(logger, timesheetService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthService:      authService,
		AuthHandler:      authHandler,
		UsersHandler:     usersHandler,
		ProjectsHandler:  projectsHandler,
		TimesheetHandler: timesheetHandler,
		ReportsHandler:   reportsHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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

// bootstrapAdmin creates the initial administrator from environment
// credentials. A forbidden result means an admin already exists and the
// instance is past its bootstrap window.
func bootstrapAdmin(ctx context.Context, logger *slog.Logger, cfg *app.Config, svc *users.Service) {
	if cfg.InitialAdminUsername == "" || cfg.InitialAdminPassword == "" {
		return
	}
	_, err := svc.Create(ctx, nil, users.CreateInput{
		Username: cfg.InitialAdminUsername,
		Password: cfg.InitialAdminPassword,
		Role:     authz.RoleAdmin,
	})
	switch {
	case err == nil:
		logger.Info("initial admin created", slog.String("username", cfg.InitialAdminUsername))
	case errors.Is(err, httpx.ErrForbidden):
		logger.Debug("initial admin skipped, admin already present")
	default:
		logger.Error("initial admin bootstrap", slog.Any("error", err))
	}
}
