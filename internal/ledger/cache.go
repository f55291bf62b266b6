package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

// CacheConfig holds configuration for the network status cache
type CacheConfig struct {
	// TTL is how long a connected status is served without asking the ledger
	TTL time.Duration

	// StaleWindow is how long a connected status may still be served while the
	// ledger is unreachable. Older data is dropped and the failure is reported.
	StaleWindow time.Duration
}

// cachedLedger caches NetworkStatus. Balance and ConfirmTransaction always hit the ledger.
type cachedLedger struct {
	Ledger
	config CacheConfig
	clock  adapter.Clock

	mu        sync.RWMutex
	status    *NetworkStatus
	fetchedAt time.Time
}

// NewCachedLedger wraps inner with a TTL cache on NetworkStatus
func NewCachedLedger(inner Ledger, config CacheConfig, clock adapter.Clock) Ledger {
	return &cachedLedger{
		Ledger: inner,
		config: config,
		clock:  clock,
	}
}

// NetworkStatus returns the latest status, using the cache while it is fresh
func (l *cachedLedger) NetworkStatus(ctx context.Context) (*NetworkStatus, error) {
	l.mu.RLock()
	cached, fetchedAt := l.status, l.fetchedAt
	l.mu.RUnlock()

	now := l.clock.Now()

	if cached != nil && now.Sub(fetchedAt) < l.config.TTL {
		logger.DebugCtx(ctx, "Using cached network status", zap.Uint64("slot", cached.Slot))
		return copyStatus(cached), nil
	}

	status, err := l.Ledger.NetworkStatus(ctx)
	if err != nil || status == nil || !status.Connected {
		if cached != nil && now.Sub(fetchedAt) < l.config.StaleWindow {
			logger.DebugCtx(ctx, "Using stale network status", zap.Uint64("slot", cached.Slot))
			return copyStatus(cached), nil
		}
		return status, err
	}

	l.mu.Lock()
	l.status = copyStatus(status)
	l.fetchedAt = now
	l.mu.Unlock()

	return status, nil
}

func copyStatus(s *NetworkStatus) *NetworkStatus {
	out := *s
	return &out
}
