package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/config"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/events"
	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/providers/jetstream"
	"github.com/novasettle/loan-marketplace/internal/providers/marketplaceapi"
	"github.com/novasettle/loan-marketplace/internal/viewsync"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	config.ChdirRepoRoot()
	cfg, err := config.LoadWatcherConfig(*configFile, *envPath)
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
			"service": "marketplace-watcher",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	clock := adapter.NewClock()
	api := marketplaceapi.NewClient(adapter.NewHTTPClient(cfg.HTTPTimeout), cfg.APIURL, adapter.NewJSON())

	exclude := cfg.ExcludeCreator
	if exclude == "" {
		exclude = cfg.WalletAddress
	}

	view := viewsync.New(api, viewsync.Config{
		PollInterval:   cfg.PollInterval,
		ExcludeCreator: exclude,
	}, clock)
	view.OnChange(logProjection)

	logger.InfoCtx(ctx, "Starting marketplace watcher",
		zap.String("api_url", cfg.APIURL),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("exclude_creator", exclude))

	if cfg.Demo.Enabled {
		actor := viewsync.NewActor(api, viewsync.NewSimulatedWallet(cfg.WalletAddress, clock), view)
		go runDemo(ctx, cfg, api, view, actor)
	}

	if cfg.NATS.URL != "" {
		subscriber, err := jetstream.NewSubscriber(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream(), adapter.NewJSON())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer subscriber.Close()

		go func() {
			err := subscriber.Run(ctx, func(events.ListingEvent) {
				view.Invalidate()
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorCtx(ctx, err, zap.String("component", "subscriber"))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- view.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, err, zap.String("component", "synchronizer"))
		}
	}

	logger.Info("Marketplace watcher stopped")
}

// logProjection prints the purchasable listings after each change
func logProjection(listings []domain.Listing) {
	logger.Info("Marketplace changed", zap.Int("purchasable", len(listings)))
	for _, l := range listings {
		logger.Info("Listing",
			zap.Uint64("id", l.ID),
			zap.String("loan", l.LoanAmount.String()+" "+string(l.LoanToken)),
			zap.String("collateral", l.CollateralAmount.String()+" "+string(l.CollateralToken)),
			zap.String("apr", l.APR.String()),
			zap.Int("term_days", l.TermDays),
			zap.String("creator", l.Creator))
	}
}

// runDemo verifies the wallet, then purchases or cancels one listing through the actor
func runDemo(ctx context.Context, cfg *config.WatcherConfig, api *marketplaceapi.Client, view *viewsync.Synchronizer, actor *viewsync.Actor) {
	wallet := cfg.WalletAddress

	if _, err := api.Verify(ctx, wallet); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("demo verification failed: %w", err), zap.String("wallet", wallet))
		return
	}

	if cfg.Demo.CancelOnly {
		if cfg.Demo.ListingID == 0 {
			logger.WarnCtx(ctx, "Demo cancel needs demo.listing_id")
			return
		}
		l, err := actor.Cancel(ctx, cfg.Demo.ListingID)
		if err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("demo cancel failed: %w", err), zap.Uint64("listing_id", cfg.Demo.ListingID))
			return
		}
		logger.InfoCtx(ctx, "Demo cancelled listing", zap.Uint64("listing_id", l.ID))
		return
	}

	if err := view.Refresh(ctx); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("demo refresh failed: %w", err))
		return
	}

	target, ok := pickListing(view.Snapshot(), cfg.Demo.ListingID)
	if !ok {
		logger.WarnCtx(ctx, "Demo found no purchasable listing", zap.Uint64("listing_id", cfg.Demo.ListingID))
		return
	}

	l, err := actor.Purchase(ctx, target)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("demo purchase failed: %w", err), zap.Uint64("listing_id", target.ID))
		return
	}
	logger.InfoCtx(ctx, "Demo purchased listing",
		zap.Uint64("listing_id", l.ID),
		zap.Stringp("transaction_hash", l.TransactionHash))
}

// pickListing returns the listing with id, or the first listing when id is zero
func pickListing(listings []domain.Listing, id uint64) (domain.Listing, bool) {
	for _, l := range listings {
		if id == 0 || l.ID == id {
			return l, true
		}
	}
	return domain.Listing{}, false
}
