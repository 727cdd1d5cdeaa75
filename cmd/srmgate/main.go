package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/srmgate/srmgate/api"
	"github.com/srmgate/srmgate/core/cas"
	"github.com/srmgate/srmgate/core/codec"
	"github.com/srmgate/srmgate/core/config"
	"github.com/srmgate/srmgate/core/identity"
	"github.com/srmgate/srmgate/core/logger"
	"github.com/srmgate/srmgate/core/telemetry"
	"github.com/srmgate/srmgate/kgorm"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("Starting srmgate identity service",
		zap.Int("port", cfg.Port),
		zap.String("records", cfg.RecordBackend),
		zap.String("codec", cfg.IdentityCodec),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tel *telemetry.Provider
	if cfg.TelemetryEnabled {
		tcfg := telemetry.DefaultConfig()
		tcfg.Enabled = true
		if tel, err = telemetry.NewProvider(tcfg); err != nil {
			logger.Log.Fatal("failed to initialize telemetry", zap.Error(err))
		}
		defer tel.Shutdown(context.Background())
	}

	// Accounts and the reference index always live in the database; the
	// records may live elsewhere.
	repo, err := kgorm.Open(cfg.DBType, cfg.DSN, nil, cfg.SkipAutoMigrate)
	if err != nil {
		logger.Log.Fatal("failed to initialize repository", zap.Error(err))
	}
	hm := newHealth(version, repo)
	records, closeRecords, err := openRecords(cfg, repo, hm)
	if err != nil {
		logger.Log.Fatal("failed to initialize record store", zap.Error(err))
	}
	defer closeRecords()

	store := cas.NewStore(records,
		cas.WithCache(cfg.CacheSize, cfg.CacheTTL),
		cas.WithStripes(cfg.LockStripes),
		cas.WithMaxAttempts(cfg.MaxSaltAttempts),
		cas.WithLogger(logger.Log),
		cas.WithTelemetry(tel),
	)

	strategy, err := newStrategy(cfg, repo.Accounts())
	if err != nil {
		logger.Log.Fatal("failed to initialize login", zap.Error(err))
	}
	c, err := codec.New(cfg.IdentityCodec)
	if err != nil {
		logger.Log.Fatal("failed to initialize codec", zap.Error(err))
	}
	refs, err := kgorm.ParseReferences(cfg.GCReferences)
	if err != nil {
		logger.Log.Fatal("invalid GC_REFERENCES", zap.Error(err))
	}
	if len(refs) == 0 && cfg.GCInterval > 0 {
		logger.Log.Warn("GC_REFERENCES is empty, every record without a live identity is collectable")
	}

	manager := identity.NewManager(store, strategy, c,
		identity.WithLogger(logger.Log),
		identity.WithTelemetry(tel),
		identity.WithReferenceIndex(newReferenceIndex(cfg, repo, records, refs)),
	)

	go runGC(ctx, manager, cfg.GCInterval)

	h := api.NewHandler(manager, store)
	h.EnableReadiness(hm)
	if cfg.TelemetryEnabled {
		h.EnableMetrics()
	}

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Log.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// Routes
	h.RegisterSystemRoutes(e)
	h.RegisterRoutes(e.Group("/api/v1"))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Log.Info("Server is starting", zap.Int("port", cfg.Port))
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}
}
