package viewsync

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/lifecycle"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

// Invalidator is notified after every mutating action
type Invalidator interface {
	Invalidate()
}

// Actor performs mutating marketplace actions for one wallet.
// External wallet calls happen before the API is reached, and the local view is
// invalidated once the API answered, whatever the outcome.
type Actor struct {
	api    MarketplaceAPI
	wallet Wallet
	view   Invalidator
}

// NewActor creates an actor for wallet
func NewActor(api MarketplaceAPI, wallet Wallet, view Invalidator) *Actor {
	return &Actor{api: api, wallet: wallet, view: view}
}

// Purchase buys l: the buyer must be verified, then the payment is signed and
// submitted, then the purchase is recorded with the returned signature
func (a *Actor) Purchase(ctx context.Context, l domain.Listing) (*domain.Listing, error) {
	buyer := a.wallet.Address()

	verified, err := a.api.IsVerified(ctx, buyer)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CheckPurchase(l, buyer, verified); err != nil {
		return nil, err
	}

	signature, err := a.wallet.SignAndSubmit(ctx, Transfer{
		ListingID:    l.ID,
		TokenAddress: l.TokenAddress,
		Token:        l.LoanToken,
		Amount:       l.LoanAmount,
	})
	if err != nil {
		return nil, walletError("sign and submit", err)
	}

	defer a.view.Invalidate()
	purchased, err := a.api.PurchaseListing(ctx, l.ID, buyer, signature)
	if err != nil {
		logger.WarnCtx(ctx, "Purchase rejected after payment was submitted",
			zap.Uint64("listing_id", l.ID),
			zap.String("signature", signature),
			zap.Error(err))
		return nil, err
	}
	return purchased, nil
}

// Create mints the listing token and publishes the listing. Creator and
// TokenAddress of input are filled in from the wallet.
func (a *Actor) Create(ctx context.Context, input domain.CreateListingInput) (*domain.Listing, error) {
	input.Creator = a.wallet.Address()

	tokenAddress, err := a.wallet.CreateToken(ctx)
	if err != nil {
		return nil, walletError("create token", err)
	}
	input.TokenAddress = strings.TrimSpace(tokenAddress)

	defer a.view.Invalidate()
	return a.api.CreateListing(ctx, input)
}

// Cancel withdraws one of the wallet's own listings
func (a *Actor) Cancel(ctx context.Context, id uint64) (*domain.Listing, error) {
	defer a.view.Invalidate()
	return a.api.CancelListing(ctx, id, a.wallet.Address())
}

func walletError(op string, err error) error {
	if errors.Is(err, domain.ErrExternal) {
		return err
	}
	return &domain.ExternalCapabilityError{Capability: "wallet", Op: op, Err: err}
}
