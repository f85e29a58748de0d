package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sheetsmith/sheetsmith-engine/migrations"
	"github.com/sheetsmith/sheetsmith-engine/pkg/audit"
	"github.com/sheetsmith/sheetsmith-engine/pkg/auth"
	"github.com/sheetsmith/sheetsmith-engine/pkg/config"
	"github.com/sheetsmith/sheetsmith-engine/pkg/conversation"
	"github.com/sheetsmith/sheetsmith-engine/pkg/database"
	"github.com/sheetsmith/sheetsmith-engine/pkg/handlers"
	"github.com/sheetsmith/sheetsmith-engine/pkg/jobs"
	"github.com/sheetsmith/sheetsmith-engine/pkg/llm"
	"github.com/sheetsmith/sheetsmith-engine/pkg/logging"
	"github.com/sheetsmith/sheetsmith-engine/pkg/metrics"
	"github.com/sheetsmith/sheetsmith-engine/pkg/middleware"
	"github.com/sheetsmith/sheetsmith-engine/pkg/prompts"
	"github.com/sheetsmith/sheetsmith-engine/pkg/repositories"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
	"github.com/sheetsmith/sheetsmith-engine/pkg/storage"
	"github.com/sheetsmith/sheetsmith-engine/pkg/storage/s3"
	"github.com/sheetsmith/sheetsmith-engine/pkg/tokens"
	"github.com/sheetsmith/sheetsmith-engine/pkg/warehouse"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Env == "local" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("warehouse", logging.SanitizeConnectionString(cfg.WarehouseDSN())),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("archive", cfg.Storage.Enabled))

	// Engine metadata store
	if err := migrate(ctx, cfg, logger); err != nil {
		return err
	}
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to engine database: %w", err)
	}
	defer db.Close()

	// Live warehouse
	warehouseDB, err := database.OpenSQL(ctx, cfg.WarehouseDSN(), cfg.Warehouse.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer func() { _ = warehouseDB.Close() }()
	wh := warehouse.New(warehouseDB, cfg.Warehouse.Schema, logger)

	// Model access
	model, err := llm.New(&llm.Config{
		Provider:        cfg.LLM.Provider,
		Endpoint:        cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		VisionModel:     cfg.LLM.VisionModel,
		APIKey:          cfg.LLM.APIKey,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		Temperature:     cfg.LLM.Temperature,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}
	personas := prompts.MustLoadRegistry()
	counter := tokens.NewCounter(
		tokens.NewTiktoken(logger),
		tokens.NewHTTPImageSizer(10*time.Second),
		logger)

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}

	// Repositories and services
	descriptorRepo := repositories.NewTableDescriptorRepository()
	conversationRepo := repositories.NewConversationRepository()
	profileRepo := repositories.NewDataProfileRepository()

	sessions := conversation.NewRegistry(personas, logger)
	gateways := services.NewGatewayFactory(model, personas, counter, conversationRepo, services.GatewayConfig{
		MaxContextTokens: cfg.LLM.MaxContextTokens,
		RequestTimeout:   cfg.LLM.RequestTimeout,
	}, logger)

	catalogService := services.NewCatalogService(descriptorRepo, wh, logger)
	ingestService := services.NewIngestService(descriptorRepo, catalogService, wh, gateways, archive, cfg.Upload.SampleLines, logger)
	chatService := services.NewChatService(sessions, gateways, conversationRepo, logger)
	chartService := services.NewChartService(catalogService, gateways, conversationRepo, logger)
	extractionService := services.NewExtractionService(profileRepo, catalogService, wh, gateways, logger)
	profileService := services.NewProfileService(profileRepo, catalogService, logger)

	// Background jobs
	scheduler, err := jobs.NewScheduler(logger)
	if err != nil {
		return err
	}
	reconcile := jobs.NewReconcileJob(database.NewScopeProvider(db), catalogService, logger)
	if err := scheduler.Every("catalog-reconcile", cfg.Jobs.ReconcileInterval, reconcile.Run); err != nil {
		return err
	}
	sweep := jobs.NewSessionSweepJob(sessions, cfg.Jobs.SessionIdleTTL)
	if err := scheduler.Every("session-sweep", time.Minute, sweep.Run); err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error("Scheduler shutdown failed", zap.Error(err))
		}
	}()

	// HTTP
	validator, err := auth.NewValidator(ctx, auth.ValidatorConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSURL:            cfg.Auth.JWKSURL,
		HMACSecret:         cfg.Auth.HMACSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}
	authMiddleware := auth.NewMiddleware(validator, logger)
	auditor := audit.NewSecurityAuditor(logger)
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))
	sessionStore := auth.NewSessionStore(cfg.Auth.SessionSecret, cfg.Auth.SecureCookies, cfg.Auth.SessionMaxAge)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, map[string]handlers.HealthCheck{
		"engine_db": db.Ping,
		"warehouse": warehouseDB.PingContext,
	}, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	handlers.NewUploadsHandler(ingestService, cfg.Upload.MaxBytes, auditor, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewChatHandler(chatService, sessionStore, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewChartsHandler(chartService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewExtractionsHandler(extractionService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewProfilesHandler(profileService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewTablesHandler(catalogService, auditor, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads wait on up to three model calls.
		WriteTimeout: 3*cfg.LLM.RequestTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting sheetsmith-engine",
			zap.String("addr", server.Addr),
			zap.String("base_url", cfg.BaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// migrate applies the engine schema over a short-lived database/sql handle.
func migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := database.OpenSQL(ctx, cfg.Database.ConnectionString(), 2)
	if err != nil {
		return fmt.Errorf("failed to open engine database for migrations: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	if err := database.RunMigrations(sqlDB, migrations.FS, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func newArchive(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if !cfg.Storage.Enabled || strings.TrimSpace(cfg.Storage.Endpoint) == "" {
		return storage.NopStore{}, nil
	}
	store, err := s3.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload archive: %w", err)
	}
	return store, nil
}
