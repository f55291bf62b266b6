package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/ledger"
	"github.com/novasettle/loan-marketplace/internal/pricing"
)

// ListingResponse is a listing enriched with its collateralization ratio and return projections
type ListingResponse struct {
	domain.Listing
	// CollateralizationRatio is collateral value over loan value in percent
	CollateralizationRatio *decimal.Decimal `json:"collateralizationRatio,omitempty"`
	// ExpectedInterest is the simple interest due at maturity, in loan token units
	ExpectedInterest decimal.Decimal `json:"expectedInterest"`
	// ExpectedReturn is ExpectedInterest as a percentage of the loan amount
	ExpectedReturn decimal.Decimal `json:"expectedReturn"`
	MaturesAt      time.Time       `json:"maturesAt"`
}

// NewListingResponse builds the response for l; the ratio is omitted when a price is missing
func NewListingResponse(l domain.Listing, prices pricing.PriceSource) ListingResponse {
	resp := ListingResponse{
		Listing:          l,
		ExpectedInterest: pricing.ExpectedInterest(l),
		ExpectedReturn:   pricing.ExpectedReturn(l),
		MaturesAt:        pricing.MaturityDate(l),
	}
	if prices == nil {
		return resp
	}
	if ratio, ok := pricing.CollateralizationRatio(l, prices); ok {
		resp.CollateralizationRatio = &ratio
	}
	return resp
}

// NewListingResponses builds responses for listings, never returning nil
func NewListingResponses(listings []domain.Listing, prices pricing.PriceSource) []ListingResponse {
	out := make([]ListingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, NewListingResponse(l, prices))
	}
	return out
}

// MarketplaceResponse represents the filtered purchasable listings
type MarketplaceResponse struct {
	Listings []ListingResponse `json:"listings"`
	// Total counts every purchasable listing visible to the viewer, before search and filter
	Total int `json:"total"`
}

// VerificationResponse represents the verification state of a wallet
type VerificationResponse struct {
	WalletAddress string `json:"walletAddress"`
	Verified      bool   `json:"verified"`
}

// BalanceResponse represents the native balance of a wallet
type BalanceResponse struct {
	Address string          `json:"address"`
	Token   domain.Token    `json:"token"`
	Balance decimal.Decimal `json:"balance"`
}

// NetworkStatusResponse represents the ledger connectivity
type NetworkStatusResponse struct {
	Status    string     `json:"status"`
	Slot      uint64     `json:"slot,omitempty"`
	BlockTime *time.Time `json:"blockTime,omitempty"`
}

const (
	NetworkConnected    = "connected"
	NetworkDisconnected = "disconnected"
)

// NewNetworkStatusResponse converts a ledger status
func NewNetworkStatusResponse(s *ledger.NetworkStatus) NetworkStatusResponse {
	if s == nil || !s.Connected {
		return NetworkStatusResponse{Status: NetworkDisconnected}
	}
	return NetworkStatusResponse{Status: NetworkConnected, Slot: s.Slot, BlockTime: s.BlockTime}
}
