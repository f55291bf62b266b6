package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

// lamportsPerSOL as a decimal exponent: 1 SOL = 10^9 lamports
const lamportsExp = -9

// RPCClient is the JSON-RPC 2.0 transport; *rpc.Client satisfies it
//
//go:generate mockgen -source=rpc.go -destination=../mocks/ledger_rpc.go -package=mocks -mock_names=RPCClient=MockRPCClient
type RPCClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

type rpcLedger struct {
	client  RPCClient
	timeout time.Duration
}

// Dial connects to a Solana-compatible JSON-RPC endpoint
func Dial(ctx context.Context, url string, timeout time.Duration) (Ledger, func(), error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial ledger RPC: %w", err)
	}
	return NewRPCLedger(client, timeout), client.Close, nil
}

// NewRPCLedger creates a ledger backed by a JSON-RPC client
func NewRPCLedger(client RPCClient, timeout time.Duration) Ledger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &rpcLedger{client: client, timeout: timeout}
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

type signatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

type signatureStatusesResult struct {
	Value []*signatureStatus `json:"value"`
}

func (l *rpcLedger) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.client.CallContext(ctx, result, method, args...)
}

func (l *rpcLedger) NetworkStatus(ctx context.Context) (*NetworkStatus, error) {
	var slot uint64
	if err := l.call(ctx, &slot, "getSlot"); err != nil {
		logger.WarnCtx(ctx, "Ledger unreachable", zap.Error(err))
		return &NetworkStatus{Connected: false}, nil
	}

	status := &NetworkStatus{Connected: true, Slot: slot}

	// Block time is informational; nodes may have pruned it
	var blockTime *int64
	if err := l.call(ctx, &blockTime, "getBlockTime", slot); err != nil {
		logger.DebugCtx(ctx, "Block time unavailable", zap.Uint64("slot", slot), zap.Error(err))
	} else if blockTime != nil {
		t := time.Unix(*blockTime, 0).UTC()
		status.BlockTime = &t
	}

	return status, nil
}

func (l *rpcLedger) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return decimal.Zero, domain.NewValidationError("address", "is required")
	}

	var res balanceResult
	if err := l.call(ctx, &res, "getBalance", address); err != nil {
		return decimal.Zero, &domain.ExternalCapabilityError{Capability: "ledger", Op: "balance", Err: err}
	}

	return decimal.NewFromUint64(res.Value).Shift(lamportsExp), nil
}

func (l *rpcLedger) ConfirmTransaction(ctx context.Context, signature string) (bool, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false, domain.NewValidationError("transactionHash", "is required")
	}

	var res signatureStatusesResult
	err := l.call(ctx, &res, "getSignatureStatuses",
		[]string{signature},
		map[string]bool{"searchTransactionHistory": true},
	)
	if err != nil {
		return false, &domain.ExternalCapabilityError{Capability: "ledger", Op: "confirm transaction", Err: err}
	}

	if len(res.Value) == 0 || res.Value[0] == nil {
		return false, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		logger.WarnCtx(ctx, "Transaction failed on ledger", zap.String("signature", signature), zap.Any("err", st.Err))
		return false, nil
	}

	return st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized", nil
}
