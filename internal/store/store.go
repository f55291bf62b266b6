package store

import (
	"context"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

// Guard is evaluated against the current committed state of a listing inside the
// same critical section as the mutation it protects. A non-nil error aborts the
// mutation and is returned unchanged.
type Guard func(current domain.Listing) error

// Store is the authoritative listing set.
// Every mutation is atomic: readers observe either the state before or after it, never a mix.
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// Create validates the input, assigns the next id and persists an active listing
	Create(ctx context.Context, input domain.CreateListingInput) (*domain.Listing, error)
	// GetByID retrieves a listing by id
	GetByID(ctx context.Context, id uint64) (*domain.Listing, error)
	// GetAll retrieves every listing in id order
	GetAll(ctx context.Context) ([]domain.Listing, error)
	// GetByCreator retrieves listings created by address in id order
	GetByCreator(ctx context.Context, address string) ([]domain.Listing, error)
	// GetByOwner retrieves listings purchased by address in id order
	GetByOwner(ctx context.Context, address string) ([]domain.Listing, error)
	// SetStatus overwrites the status after every guard accepted the current state
	SetStatus(ctx context.Context, id uint64, status domain.ListingStatus, guards ...Guard) (*domain.Listing, error)
	// RecordPurchase sets owner, transaction hash, purchase time and the purchased status in one step.
	// The first writer wins: a listing that is not active or already owned is left untouched.
	RecordPurchase(ctx context.Context, id uint64, owner, txHash string, guards ...Guard) (*domain.Listing, error)
	// Reset removes every listing and restarts id allocation
	Reset(ctx context.Context) error
}

// checkPurchasable is the store-level precondition of RecordPurchase
func checkPurchasable(l domain.Listing, owner string) error {
	var reason domain.TransitionReason
	switch {
	case l.Status != domain.ListingStatusActive:
		reason = domain.ReasonNotActive
	case l.Owner != nil:
		reason = domain.ReasonAlreadyOwned
	default:
		return nil
	}
	return &domain.IllegalTransitionError{
		ListingID: l.ID,
		From:      l.Status,
		To:        domain.ListingStatusPurchased,
		Actor:     owner,
		Reason:    reason,
	}
}

func validatePurchase(owner, txHash string) error {
	verr := &domain.ValidationError{}
	if owner == "" {
		verr.Add("ownerAddress", "is required")
	}
	if txHash == "" {
		verr.Add("transactionHash", "is required")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func runGuards(current domain.Listing, guards []Guard) error {
	for _, g := range guards {
		if g == nil {
			continue
		}
		if err := g(current); err != nil {
			return err
		}
	}
	return nil
}
