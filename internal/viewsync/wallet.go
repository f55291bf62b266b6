package viewsync

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

type simulatedWallet struct {
	address string
	clock   adapter.Clock
}

// NewSimulatedWallet returns a wallet that accepts every transaction without
// touching a ledger. Handles are unique and time ordered.
func NewSimulatedWallet(address string, clock adapter.Clock) Wallet {
	return &simulatedWallet{address: strings.TrimSpace(address), clock: clock}
}

func (w *simulatedWallet) Address() string {
	return w.address
}

func (w *simulatedWallet) CreateToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token := "tok" + ulid.MustNewDefault(w.clock.Now()).String()
	logger.DebugCtx(ctx, "Simulated token mint", zap.String("token_address", token))
	return token, nil
}

func (w *simulatedWallet) SignAndSubmit(ctx context.Context, transfer Transfer) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !transfer.Amount.IsPositive() {
		return "", domain.NewValidationError("amount", "must be greater than 0")
	}
	signature := "sig" + ulid.MustNewDefault(w.clock.Now()).String()
	logger.DebugCtx(ctx, "Simulated transfer",
		zap.Uint64("listing_id", transfer.ListingID),
		zap.String("amount", transfer.Amount.String()+" "+string(transfer.Token)),
		zap.String("signature", signature))
	return signature, nil
}
