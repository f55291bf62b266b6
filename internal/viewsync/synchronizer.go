package viewsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/marketplace"
)

// DefaultPollInterval bounds the staleness seen by passive viewers
const DefaultPollInterval = 3 * time.Second

// Config configures a Synchronizer
type Config struct {
	PollInterval time.Duration
	// ExcludeCreator hides the viewer's own listings from the projection
	ExcludeCreator string
}

// Synchronizer maintains the purchasable projection of the marketplace.
// The projection is replaced as a whole so readers never observe a partial refresh.
type Synchronizer struct {
	source     Source
	cfg        Config
	clock      adapter.Clock
	invalidate chan struct{}

	mu          sync.RWMutex
	snapshot    []domain.Listing
	refreshedAt time.Time
	listeners   []func([]domain.Listing)
	// started numbers each fetch; applied is the number of the fetch behind snapshot
	started uint64
	applied uint64
}

// New creates a synchronizer reading from source
func New(source Source, cfg Config, clock adapter.Clock) *Synchronizer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Synchronizer{
		source:     source,
		cfg:        cfg,
		clock:      clock,
		invalidate: make(chan struct{}, 1),
	}
}

// Run refreshes the projection until ctx is cancelled. A failed refresh keeps
// the last good projection and is retried on the next tick.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.refreshAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.cfg.PollInterval):
		case <-s.invalidate:
		}
		s.refreshAndLog(ctx)
	}
}

// Invalidate requests an immediate out-of-band refresh. Requests made while
// one is already pending are coalesced.
func (s *Synchronizer) Invalidate() {
	select {
	case s.invalidate <- struct{}{}:
	default:
	}
}

// Refresh fetches the listings once and replaces the projection.
// A fetch that completes after a later-started one has been applied is discarded.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.started++
	ticket := s.started
	s.mu.Unlock()

	all, err := s.source.ListListings(ctx)
	if err != nil {
		return err
	}
	view := marketplace.Apply(all, marketplace.Query{
		Filter:         marketplace.FilterAll,
		Sort:           marketplace.SortNewest,
		ExcludeCreator: s.cfg.ExcludeCreator,
	})

	s.mu.Lock()
	if ticket < s.applied {
		s.mu.Unlock()
		logger.DebugCtx(ctx, "Discarding out of order marketplace refresh", zap.Uint64("fetch", ticket))
		return nil
	}
	s.applied = ticket
	changed := s.refreshedAt.IsZero() || !sameProjection(s.snapshot, view)
	s.snapshot = view
	s.refreshedAt = s.clock.Now()
	listeners := append([]func([]domain.Listing){}, s.listeners...)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(cloneAll(view))
		}
	}
	return nil
}

// Snapshot returns a copy of the current projection
func (s *Synchronizer) Snapshot() []domain.Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.snapshot)
}

// RefreshedAt returns the time of the last successful refresh
func (s *Synchronizer) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// OnChange registers fn to be called with the new projection whenever it changes
func (s *Synchronizer) OnChange(fn func([]domain.Listing)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Synchronizer) refreshAndLog(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		logger.WarnCtx(ctx, "Failed to refresh marketplace view", zap.Error(err))
	}
}

func sameProjection(a, b []domain.Listing) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Status != b[i].Status || a[i].HasOwner() != b[i].HasOwner() {
			return false
		}
	}
	return true
}

func cloneAll(listings []domain.Listing) []domain.Listing {
	out := make([]domain.Listing, len(listings))
	for i, l := range listings {
		out[i] = l.Clone()
	}
	return out
}
