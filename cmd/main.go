package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"obligation-service/internal/account"
	"obligation-service/internal/analysis"
	"obligation-service/internal/audit"
	"obligation-service/internal/blob"
	"obligation-service/internal/handler"
	mid "obligation-service/internal/middleware"
	"obligation-service/internal/model"
	"obligation-service/internal/obligation"
	"obligation-service/internal/party"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/config"
	"obligation-service/pkg/database"
	"obligation-service/pkg/jwtutil"
	"obligation-service/pkg/logger"
	"obligation-service/pkg/metrics"
	"obligation-service/pkg/tracing"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(&logger.LogConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Server.Env,
		Level:       cfg.Log.Level,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer logger.Sync()

	log.Info("Starting "+cfg.ServiceName, cfg.LogConfig()...)

	if err := run(cfg, log); err != nil {
		log.Error("Service stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	log.Info("Service stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	// Initialize database
	db, err := database.Open(&cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	// Migrations introspect tables without a tenant scope, so they run
	// before the tenant guard is installed.
	if err := database.Migrate(db, model.All()...); err != nil {
		return err
	}
	store, err := tenantdb.New(db, model.All()...)
	if err != nil {
		return err
	}
	log.Info("Database connection established")

	blobs, err := blob.NewFS(cfg.Blob.Root, cfg.Blob.MaxBytes)
	if err != nil {
		return err
	}

	var dispatch analysis.Dispatch = analysis.Nop{}
	if cfg.Analysis.Enabled {
		d := analysis.NewDispatcher(analysis.LogClient{}, cfg.Analysis.Workers, cfg.Analysis.QueueSize, cfg.Analysis.Timeout)
		defer func() {
			if err := d.Close(); err != nil {
				log.Warn("Analysis dispatcher stopped with error", zap.Error(err))
			}
		}()
		dispatch = d
		log.Info("Analysis dispatcher started", zap.Int("workers", cfg.Analysis.Workers))
	}

	tokens := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})
	recorder := audit.NewRecorder(store, cfg.ActivityPageSize)

	httpMetrics, err := metrics.NewHTTPMetrics(cfg.ServiceName, nil)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(mid.RequestID())
	e.Use(logger.Middleware())
	e.Use(httpMetrics.Middleware())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(mid.RateLimit(rate.Limit(cfg.Server.RateLimitPerSecond), cfg.Server.RateLimitBurst, 3*time.Minute))

	// Public routes - no authentication required
	health := handler.NewHealthHandler(cfg.ServiceName, func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})
	e.GET("/health", health.HealthCheck)
	e.GET("/readyz", health.Ready)
	e.GET("/metrics", echo.WrapHandler(httpMetrics.Handler()))

	routes := &handler.Routes{
		Parties:     handler.NewPartyHandler(party.NewService(store, recorder)),
		Obligations: handler.NewObligationHandler(obligation.NewService(store, recorder, blobs, dispatch)),
		Activity:    handler.NewActivityHandler(audit.NewService(store, recorder)),
		Accounts:    handler.NewAccountHandler(account.NewService(store, recorder, tokens)),
		Auth:        mid.Auth(tokens),
		Bootstrap:   mid.BootstrapKey(cfg.AdminBootstrapKey),
		LoginLimit:  mid.LoginRateLimit(),
	}
	routes.Register(e)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
