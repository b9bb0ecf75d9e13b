package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/audit"
	"github.com/hostwatch/hostwatch/internal/config"
	"github.com/hostwatch/hostwatch/internal/handler"
	"github.com/hostwatch/hostwatch/internal/migration"
	models "github.com/hostwatch/hostwatch/internal/model"
	"github.com/hostwatch/hostwatch/internal/repository"
	"github.com/hostwatch/hostwatch/internal/service"
	"github.com/hostwatch/hostwatch/internal/telemetry"
)

func main() {
	serverConfig, err := config.NewServerConfig()
	if err != nil {
		log.Fatal("Failed to parse configuration: ", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := newStorage(ctx, serverConfig, sugar)
	if err != nil {
		sugar.Fatalf("failed to initialize storage: %v", err)
	}
	defer storage.Close()

	metricService := service.NewMetricsService(storage)

	if serverConfig.Restore && metricService.IsMemStorage() {
		if err := metricService.RestoreMetrics(ctx, serverConfig.FileStoragePath, sugar); err != nil {
			sugar.Errorf("failed to restore metrics: %v", err)
		}
	}
	if serverConfig.StoreInterval > 0 && metricService.IsMemStorage() {
		go metricService.RunStoreTicker(ctx, serverConfig.StoreInterval, serverConfig.FileStoragePath, sugar)
	}

	srv := &handler.Server{
		Service:   metricService,
		Logger:    sugar,
		Config:    serverConfig,
		Telemetry: telemetry.New(),
		Audit:     setupAudit(serverConfig, sugar),
	}

	httpServer := &http.Server{
		Addr:              serverConfig.Address,
		Handler:           handler.Router(srv),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sugar.Infof("central server listening on %s", serverConfig.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("listen failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("http shutdown error: %v", err)
	}
	if metricService.IsMemStorage() {
		if err := metricService.SaveMetrics(context.Background(), serverConfig.FileStoragePath); err != nil {
			sugar.Errorf("final save failed: %v", err)
		}
	}
}

// newStorage selects the backend: PostgreSQL when a DSN is configured,
// Redis when an address is configured, in-memory otherwise.
func newStorage(ctx context.Context, cfg *config.ServerConfig, logger *zap.SugaredLogger) (repository.Repository, error) {
	switch {
	case cfg.DatabaseDSN != "":
		if err := migration.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			return nil, err
		}
		storage, err := repository.NewDBStorage(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := storage.Ping(ctx); err != nil {
			return nil, err
		}
		return storage, nil
	case cfg.RedisAddr != "":
		storage := repository.NewRedisStorage(cfg.RedisAddr, "", cfg.RedisDB)
		if err := storage.Ping(ctx); err != nil {
			logger.Errorf("redis ping failed: %v", err)
		}
		return storage, nil
	default:
		return repository.NewMemStorage(), nil
	}
}

// setupAudit wires the audit pipeline when at least one sink is configured.
func setupAudit(cfg *config.ServerConfig, logger *zap.SugaredLogger) audit.Logger {
	if cfg.AuditFile == "" && cfg.AuditURL == "" {
		return nil
	}
	events := make(chan models.AuditEvent, 100)
	var subs []chan<- models.AuditEvent
	if cfg.AuditFile != "" {
		fileChan := make(chan models.AuditEvent, 100)
		subs = append(subs, fileChan)
		go audit.FileSubscriber(fileChan, cfg.AuditFile, logger)
	}
	if cfg.AuditURL != "" {
		urlChan := make(chan models.AuditEvent, 100)
		subs = append(subs, urlChan)
		go audit.URLSubscriber(urlChan, cfg.AuditURL, logger)
	}
	go audit.Broadcaster(events, logger, subs...)
	return audit.NewLogger(events, logger)
}
