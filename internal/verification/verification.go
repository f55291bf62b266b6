// Package verification provides the identity (KYC) gate consulted before
// creating or purchasing listings.
package verification

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

// Verifier checks and establishes the verification state of a wallet address
//
//go:generate mockgen -source=verification.go -destination=../mocks/verification.go -package=mocks -mock_names=Verifier=MockVerifier
type Verifier interface {
	// IsVerified reports whether address completed verification
	IsVerified(ctx context.Context, address string) (bool, error)
	// Verify runs verification for address and reports the outcome
	Verify(ctx context.Context, address string) (bool, error)
}

// simulatedVerifier approves every address after a fixed delay
type simulatedVerifier struct {
	mu       sync.RWMutex
	verified map[string]bool
	delay    time.Duration
	clock    adapter.Clock
}

// NewSimulatedVerifier creates a verifier that always succeeds after delay
func NewSimulatedVerifier(delay time.Duration, clock adapter.Clock) Verifier {
	return &simulatedVerifier{
		verified: make(map[string]bool),
		delay:    delay,
		clock:    clock,
	}
}

func (v *simulatedVerifier) IsVerified(ctx context.Context, address string) (bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return false, domain.NewValidationError("walletAddress", "is required")
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.verified[address], nil
}

func (v *simulatedVerifier) Verify(ctx context.Context, address string) (bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return false, domain.NewValidationError("walletAddress", "is required")
	}

	if v.delay > 0 {
		select {
		case <-v.clock.After(v.delay):
		case <-ctx.Done():
			return false, &domain.ExternalCapabilityError{Capability: "verification", Op: "verify", Err: ctx.Err()}
		}
	}

	v.mu.Lock()
	v.verified[address] = true
	v.mu.Unlock()

	logger.InfoCtx(ctx, "Wallet verified", zap.String("address", address))
	return true, nil
}
