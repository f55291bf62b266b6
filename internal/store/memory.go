package store

import (
	"context"
	"sort"
	"sync"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/domain"
)

type memoryStore struct {
	mu       sync.RWMutex
	clock    adapter.Clock
	listings map[uint64]domain.Listing
	nextID   uint64
}

// NewMemoryStore creates a process-local store. Its content does not survive a restart.
func NewMemoryStore(clock adapter.Clock) Store {
	return &memoryStore{
		clock:    clock,
		listings: make(map[uint64]domain.Listing),
		nextID:   1,
	}
}

func (s *memoryStore) Create(ctx context.Context, input domain.CreateListingInput) (*domain.Listing, error) {
	nl, err := input.Validate()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l := domain.Listing{
		ID:               s.nextID,
		LoanToken:        nl.LoanToken,
		LoanAmount:       nl.LoanAmount,
		CollateralToken:  nl.CollateralToken,
		CollateralAmount: nl.CollateralAmount,
		APR:              nl.APR,
		TermDays:         nl.TermDays,
		Creator:          nl.Creator,
		TokenAddress:     nl.TokenAddress,
		Status:           domain.ListingStatusActive,
		CreatedAt:        s.clock.Now().UTC(),
	}
	s.listings[l.ID] = l
	s.nextID++

	out := l.Clone()
	return &out, nil
}

func (s *memoryStore) GetByID(ctx context.Context, id uint64) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, domain.NewListingNotFoundError(id)
	}
	out := l.Clone()
	return &out, nil
}

func (s *memoryStore) GetAll(ctx context.Context) ([]domain.Listing, error) {
	return s.filter(func(domain.Listing) bool { return true }), nil
}

func (s *memoryStore) GetByCreator(ctx context.Context, address string) ([]domain.Listing, error) {
	return s.filter(func(l domain.Listing) bool { return l.Creator == address }), nil
}

func (s *memoryStore) GetByOwner(ctx context.Context, address string) ([]domain.Listing, error) {
	return s.filter(func(l domain.Listing) bool { return l.Owner != nil && *l.Owner == address }), nil
}

func (s *memoryStore) SetStatus(ctx context.Context, id uint64, status domain.ListingStatus, guards ...Guard) (*domain.Listing, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "unknown status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, domain.NewListingNotFoundError(id)
	}
	if err := runGuards(l.Clone(), guards); err != nil {
		return nil, err
	}

	l.Status = status
	s.listings[id] = l

	out := l.Clone()
	return &out, nil
}

func (s *memoryStore) RecordPurchase(ctx context.Context, id uint64, owner, txHash string, guards ...Guard) (*domain.Listing, error) {
	if err := validatePurchase(owner, txHash); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, domain.NewListingNotFoundError(id)
	}
	if err := checkPurchasable(l, owner); err != nil {
		return nil, err
	}
	if err := runGuards(l.Clone(), guards); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	l.Owner = &owner
	l.TransactionHash = &txHash
	l.PurchasedAt = &now
	l.Status = domain.ListingStatusPurchased
	s.listings[id] = l

	out := l.Clone()
	return &out, nil
}

func (s *memoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listings = make(map[uint64]domain.Listing)
	s.nextID = 1
	return nil
}

func (s *memoryStore) filter(keep func(domain.Listing) bool) []domain.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if keep(l) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
