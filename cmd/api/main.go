package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/api/middleware"
	"github.com/novasettle/loan-marketplace/internal/api/rest"
	"github.com/novasettle/loan-marketplace/internal/api/server"
	"github.com/novasettle/loan-marketplace/internal/config"
	"github.com/novasettle/loan-marketplace/internal/events"
	"github.com/novasettle/loan-marketplace/internal/ledger"
	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/marketplace"
	"github.com/novasettle/loan-marketplace/internal/pricing"
	"github.com/novasettle/loan-marketplace/internal/providers/jetstream"
	"github.com/novasettle/loan-marketplace/internal/store"
	"github.com/novasettle/loan-marketplace/internal/verification"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "loan-marketplace-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting NovaSettle loan marketplace API")

	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	dataStore := openStore(ctx, cfg, clock)

	// Ledger
	var ledgerClient ledger.Ledger
	if cfg.Ledger.RPCURL != "" {
		l, closeLedger, err := ledger.Dial(ctx, cfg.Ledger.RPCURL, cfg.Ledger.Timeout)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to dial ledger RPC", zap.Error(err), zap.String("url", cfg.Ledger.RPCURL))
		}
		defer closeLedger()
		ledgerClient = ledger.NewCachedLedger(l, ledger.CacheConfig{
			TTL:         cfg.Ledger.StatusTTL,
			StaleWindow: cfg.Ledger.StatusStaleWindow,
		}, clock)
		logger.InfoCtx(ctx, "Connected to ledger RPC", zap.String("url", cfg.Ledger.RPCURL))
	} else {
		logger.WarnCtx(ctx, "Ledger RPC URL not configured, network status and balances are unavailable")
		ledgerClient = ledger.NewUnavailableLedger()
	}
	if cfg.Ledger.ConfirmPurchases && cfg.Ledger.RPCURL == "" {
		logger.WarnCtx(ctx, "Purchase confirmation enabled without a ledger, every purchase will be rejected")
	}

	prices, err := pricing.NewStaticPrices(cfg.Pricing.Prices)
	if err != nil {
		logger.FatalCtx(ctx, "Invalid price table", zap.Error(err))
	}

	verifier := verification.NewSimulatedVerifier(cfg.Verification.Delay, clock)

	// Listing events: in-process hub for SSE, JetStream when configured
	hub := events.NewHub(cfg.Events.SubscriberBuffer)
	var remote []events.Publisher
	if cfg.NATS.URL != "" {
		jsPublisher, err := jetstream.NewPublisher(ctx, jetstream.Config{
			URL:             cfg.NATS.URL,
			StreamName:      cfg.NATS.StreamName,
			SubjectPrefix:   cfg.NATS.SubjectPrefix,
			MaxReconnects:   cfg.NATS.MaxReconnects,
			ReconnectWait:   cfg.NATS.ReconnectWait,
			ConnectionName:  cfg.NATS.ConnectionName,
			PublishAttempts: cfg.NATS.PublishAttempts,
		}, adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer jsPublisher.Close()
		remote = append(remote, jsPublisher)
		logger.InfoCtx(ctx, "Publishing listing events to NATS JetStream",
			zap.String("stream", cfg.NATS.StreamName),
			zap.String("subject_prefix", cfg.NATS.SubjectPrefix))
	}
	// Not bound to ctx so queued deliveries survive the shutdown signal
	dispatcher := events.NewDispatcher(context.Background(), cfg.Events.PoolSize, cfg.Events.QueueSize, hub, remote...)
	// Registered after the publisher so pending events drain before NATS closes
	defer dispatcher.Close()

	service := marketplace.NewService(marketplace.Config{
		RequireVerification: cfg.Verification.Required,
		ConfirmPurchases:    cfg.Ledger.ConfirmPurchases,
	}, dataStore, verifier, ledgerClient, dispatcher, clock)

	if cfg.Store.SeedExamples {
		if err := service.SeedExamples(ctx); err != nil {
			logger.FatalCtx(ctx, "Failed to seed example listings", zap.Error(err))
		}
	}

	handler := rest.NewHandler(rest.HandlerConfig{
		HeartbeatInterval: cfg.Events.HeartbeatInterval,
	}, service, verifier, ledgerClient, prices, hub)

	readTimeout, writeTimeout, idleTimeout := cfg.Server.ServerTimeouts()
	srv := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}, handler)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Shutdown with a fresh context; ctx is already canceled
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, fmt.Errorf("server forced to shutdown: %w", err))
	}

	logger.Info("API server stopped")
}

// openStore builds the listing store selected by store.driver
func openStore(ctx context.Context, cfg *config.APIConfig, clock adapter.Clock) store.Store {
	if cfg.Store.Driver != config.StoreDriverPostgres {
		logger.InfoCtx(ctx, "Using in-memory listing store")
		return store.NewMemoryStore(clock)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}

	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	return store.NewPGStore(db, clock)
}
