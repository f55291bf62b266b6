// Package viewsync keeps a client-side projection of the marketplace fresh.
// The projection is refetched on a fixed poll interval and immediately after
// the local actor completes a mutating action.
package viewsync

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

//go:generate mockgen -source=viewsync.go -destination=../mocks/viewsync.go -package=mocks -mock_names=Source=MockSource,MarketplaceAPI=MockMarketplaceAPI,Wallet=MockWallet

// Source is the read endpoint of the listing store
type Source interface {
	ListListings(ctx context.Context) ([]domain.Listing, error)
}

// MarketplaceAPI is the transport boundary used by an acting viewer
type MarketplaceAPI interface {
	Source
	CreateListing(ctx context.Context, input domain.CreateListingInput) (*domain.Listing, error)
	PurchaseListing(ctx context.Context, id uint64, owner, txHash string) (*domain.Listing, error)
	CancelListing(ctx context.Context, id uint64, actor string) (*domain.Listing, error)
	IsVerified(ctx context.Context, address string) (bool, error)
}

// Transfer is the ledger payment that backs a purchase
type Transfer struct {
	ListingID    uint64
	TokenAddress string
	Token        domain.Token
	Amount       decimal.Decimal
}

// Wallet signs and submits ledger transactions on behalf of its address
type Wallet interface {
	Address() string
	// CreateToken mints the ledger token that represents a new listing
	CreateToken(ctx context.Context) (string, error)
	// SignAndSubmit returns the transaction signature once the ledger accepted it
	SignAndSubmit(ctx context.Context, transfer Transfer) (string, error)
}
