// Package ledger talks to the blockchain the marketplace settles on.
// Only read operations live here; signing belongs to the wallet.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

// ErrNotConfigured is returned by every operation of a ledger without an RPC endpoint
var ErrNotConfigured = errors.New("ledger RPC endpoint not configured")

// NetworkStatus is a point-in-time view of the ledger
type NetworkStatus struct {
	Connected bool       `json:"connected"`
	Slot      uint64     `json:"slot,omitempty"`
	BlockTime *time.Time `json:"blockTime,omitempty"`
}

// Ledger is the read-only ledger capability
//
//go:generate mockgen -source=ledger.go -destination=../mocks/ledger.go -package=mocks -mock_names=Ledger=MockLedger
type Ledger interface {
	// NetworkStatus reports connectivity and the current slot. Connection failures
	// are reported as Connected=false rather than as an error.
	NetworkStatus(ctx context.Context) (*NetworkStatus, error)
	// Balance returns the native balance of address in whole SOL
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	// ConfirmTransaction reports whether signature landed on the ledger without error
	ConfirmTransaction(ctx context.Context, signature string) (bool, error)
}

type unavailableLedger struct{}

// NewUnavailableLedger returns a ledger used when no RPC endpoint is configured
func NewUnavailableLedger() Ledger {
	return unavailableLedger{}
}

func (unavailableLedger) NetworkStatus(ctx context.Context) (*NetworkStatus, error) {
	return &NetworkStatus{Connected: false}, nil
}

func (unavailableLedger) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	return decimal.Zero, &domain.ExternalCapabilityError{Capability: "ledger", Op: "balance", Err: ErrNotConfigured}
}

func (unavailableLedger) ConfirmTransaction(ctx context.Context, signature string) (bool, error) {
	return false, &domain.ExternalCapabilityError{Capability: "ledger", Op: "confirm transaction", Err: ErrNotConfigured}
}
