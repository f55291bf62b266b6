// Package marketplace orchestrates listing operations: it consults the
// verification and ledger capabilities before touching the store, evaluates
// the lifecycle rules atomically through store guards and announces every
// committed mutation as a listing event.
package marketplace

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/events"
	"github.com/novasettle/loan-marketplace/internal/ledger"
	"github.com/novasettle/loan-marketplace/internal/lifecycle"
	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/metrics"
	"github.com/novasettle/loan-marketplace/internal/store"
	"github.com/novasettle/loan-marketplace/internal/verification"
)

// ErrTransactionNotConfirmed is wrapped in an ExternalCapabilityError when the
// ledger does not know a purchase transaction
var ErrTransactionNotConfirmed = errors.New("transaction not confirmed on ledger")

// errNoop aborts a guarded write whose target status is already current
var errNoop = errors.New("status unchanged")

// Config holds service behavior switches
type Config struct {
	// RequireVerification gates create and purchase on a verified wallet
	RequireVerification bool
	// ConfirmPurchases checks the purchase transaction on the ledger before recording it
	ConfirmPurchases bool
}

// Service is the marketplace use-case layer shared by the HTTP handlers
type Service interface {
	CreateListing(ctx context.Context, input domain.CreateListingInput) (*domain.Listing, error)
	GetListing(ctx context.Context, id uint64) (*domain.Listing, error)
	ListListings(ctx context.Context) ([]domain.Listing, error)
	ListByCreator(ctx context.Context, address string) ([]domain.Listing, error)
	ListByOwner(ctx context.Context, address string) ([]domain.Listing, error)
	// Marketplace returns the listings matching q and the number of purchasable listings before search and filter
	Marketplace(ctx context.Context, q Query) ([]domain.Listing, int, error)
	PurchaseListing(ctx context.Context, id uint64, owner, txHash string) (*domain.Listing, error)
	CancelListing(ctx context.Context, id uint64, actor string) (*domain.Listing, error)
	// UpdateStatus applies an administrative status change; setting the current status is a no-op
	UpdateStatus(ctx context.Context, id uint64, status domain.ListingStatus, actor string) (*domain.Listing, error)
	// ResetDev replaces every listing with the development fixture for wallet
	ResetDev(ctx context.Context, wallet string) ([]domain.Listing, error)
	// SeedExamples publishes the example listings when the store is empty
	SeedExamples(ctx context.Context) error
}

type service struct {
	cfg       Config
	store     store.Store
	verifier  verification.Verifier
	ledger    ledger.Ledger
	publisher events.Publisher
	clock     adapter.Clock
}

// NewService creates the marketplace service
func NewService(cfg Config, st store.Store, verifier verification.Verifier, l ledger.Ledger, publisher events.Publisher, clock adapter.Clock) Service {
	return &service{
		cfg:       cfg,
		store:     st,
		verifier:  verifier,
		ledger:    l,
		publisher: publisher,
		clock:     clock,
	}
}

func (s *service) CreateListing(ctx context.Context, input domain.CreateListingInput) (*domain.Listing, error) {
	if s.cfg.RequireVerification && strings.TrimSpace(input.Creator) != "" {
		verified, err := s.isVerified(ctx, strings.TrimSpace(input.Creator))
		if err != nil {
			return nil, err
		}
		if err := lifecycle.CheckCreate(input.Creator, verified); err != nil {
			recordTransition(domain.ListingStatusActive, "rejected")
			return nil, err
		}
	}

	l, err := s.store.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	recordTransition(domain.ListingStatusActive, "ok")
	logger.InfoCtx(ctx, "Listing created",
		zap.Uint64("listing_id", l.ID),
		zap.String("creator", l.Creator),
		zap.String("loan", l.LoanAmount.String()+" "+string(l.LoanToken)))
	s.publish(ctx, events.EventListingCreated, l)
	return l, nil
}

func (s *service) GetListing(ctx context.Context, id uint64) (*domain.Listing, error) {
	return s.store.GetByID(ctx, id)
}

func (s *service) ListListings(ctx context.Context) ([]domain.Listing, error) {
	return s.store.GetAll(ctx)
}

func (s *service) ListByCreator(ctx context.Context, address string) ([]domain.Listing, error) {
	return s.store.GetByCreator(ctx, address)
}

func (s *service) ListByOwner(ctx context.Context, address string) ([]domain.Listing, error) {
	return s.store.GetByOwner(ctx, address)
}

func (s *service) Marketplace(ctx context.Context, q Query) ([]domain.Listing, int, error) {
	all, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(Purchasable(all, q.ExcludeCreator))
	return Apply(all, q), total, nil
}

func (s *service) PurchaseListing(ctx context.Context, id uint64, owner, txHash string) (*domain.Listing, error) {
	owner = strings.TrimSpace(owner)
	txHash = strings.TrimSpace(txHash)

	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	verified := true
	if s.cfg.RequireVerification && owner != "" {
		if verified, err = s.isVerified(ctx, owner); err != nil {
			return nil, err
		}
	}

	// Reject early so that an illegal purchase never reaches the ledger
	if owner != "" {
		if err := lifecycle.CheckPurchase(*current, owner, verified); err != nil {
			recordTransition(domain.ListingStatusPurchased, "rejected")
			return nil, err
		}
	}

	if s.cfg.ConfirmPurchases && txHash != "" {
		confirmed, err := s.ledger.ConfirmTransaction(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if !confirmed {
			return nil, &domain.ExternalCapabilityError{Capability: "ledger", Op: "confirm transaction", Err: ErrTransactionNotConfirmed}
		}
	}

	purchased, err := s.store.RecordPurchase(ctx, id, owner, txHash, func(latest domain.Listing) error {
		return lifecycle.CheckPurchase(latest, owner, verified)
	})
	if err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			recordTransition(domain.ListingStatusPurchased, "rejected")
		}
		return nil, err
	}

	recordTransition(domain.ListingStatusPurchased, "ok")
	logger.InfoCtx(ctx, "Listing purchased",
		zap.Uint64("listing_id", purchased.ID),
		zap.String("owner", owner),
		zap.String("transaction_hash", txHash))
	s.publish(ctx, events.EventListingPurchased, purchased)
	return purchased, nil
}

func (s *service) CancelListing(ctx context.Context, id uint64, actor string) (*domain.Listing, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, domain.NewValidationError("actorAddress", "is required")
	}
	return s.UpdateStatus(ctx, id, domain.ListingStatusCancelled, actor)
}

func (s *service) UpdateStatus(ctx context.Context, id uint64, status domain.ListingStatus, actor string) (*domain.Listing, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "must be one of active, purchased, cancelled, repaid, defaulted")
	}
	actor = strings.TrimSpace(actor)

	updated, err := s.store.SetStatus(ctx, id, status, func(latest domain.Listing) error {
		if lifecycle.IsNoop(latest, status) {
			return errNoop
		}
		return lifecycle.CheckStatusUpdate(latest, status, actor)
	})
	if errors.Is(err, errNoop) {
		recordTransition(status, "noop")
		return s.store.GetByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			recordTransition(status, "rejected")
		}
		return nil, err
	}

	recordTransition(status, "ok")
	logger.InfoCtx(ctx, "Listing status changed",
		zap.Uint64("listing_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.String("actor", actor))
	s.publish(ctx, events.EventListingStatusChanged, updated)
	return updated, nil
}

func (s *service) ResetDev(ctx context.Context, wallet string) ([]domain.Listing, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, domain.NewValidationError("walletAddress", "is required")
	}

	if err := s.store.Reset(ctx); err != nil {
		return nil, err
	}

	for _, seed := range devResetSeeds(wallet) {
		l, err := s.store.Create(ctx, seed.input)
		if err != nil {
			return nil, err
		}
		if seed.purchasedByCaller && l.Creator != wallet {
			if _, err := s.store.RecordPurchase(ctx, l.ID, wallet, devPurchaseTx); err != nil {
				return nil, err
			}
		}
	}

	logger.InfoCtx(ctx, "Development data reset", zap.String("wallet", wallet))
	s.publish(ctx, events.EventListingsReset, nil)
	return s.store.GetAll(ctx)
}

func (s *service) SeedExamples(ctx context.Context) error {
	existing, err := s.store.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.InfoCtx(ctx, "Store not empty, skipping example listings", zap.Int("listings", len(existing)))
		return nil
	}

	for _, input := range exampleListings {
		if _, err := s.store.Create(ctx, input); err != nil {
			return err
		}
	}
	logger.InfoCtx(ctx, "Seeded example listings", zap.Int("listings", len(exampleListings)))
	return nil
}

func (s *service) isVerified(ctx context.Context, address string) (bool, error) {
	verified, err := s.verifier.IsVerified(ctx, address)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrExternal) {
			return false, err
		}
		return false, &domain.ExternalCapabilityError{Capability: "verification", Op: "lookup", Err: err}
	}
	return verified, nil
}

func (s *service) publish(ctx context.Context, typ events.EventType, l *domain.Listing) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.NewListingEvent(s.clock, typ, l)); err != nil {
		logger.WarnCtx(ctx, "Failed to publish listing event", zap.Error(err), zap.String("type", string(typ)))
	}
}

func recordTransition(to domain.ListingStatus, result string) {
	metrics.ListingTransitions.WithLabelValues(string(to), result).Inc()
}
