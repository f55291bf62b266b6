package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus represents the lifecycle state of a listing
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusPurchased ListingStatus = "purchased"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusRepaid    ListingStatus = "repaid"
	ListingStatusDefaulted ListingStatus = "defaulted"
)

// Valid checks if the status is a known lifecycle state
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusActive, ListingStatusPurchased, ListingStatusCancelled,
		ListingStatusRepaid, ListingStatusDefaulted:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave this state
func (s ListingStatus) Terminal() bool {
	return s == ListingStatusCancelled || s == ListingStatusRepaid || s == ListingStatusDefaulted
}

// ParseListingStatus parses a raw status value
func ParseListingStatus(raw string) (ListingStatus, error) {
	s := ListingStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return "", NewValidationError("status", "is required")
	}
	if !s.Valid() {
		return "", NewValidationError("status", "must be one of active, purchased, cancelled, repaid, defaulted")
	}
	return s, nil
}

// Listing is a loan offer: a lender-side request for a loan of LoanAmount LoanToken
// secured by CollateralAmount CollateralToken, for TermDays at APR percent.
//
// Owner, TransactionHash and PurchasedAt are either all nil or all set.
type Listing struct {
	ID               uint64          `json:"id"`
	LoanToken        Token           `json:"loanToken"`
	LoanAmount       decimal.Decimal `json:"loanAmount"`
	CollateralToken  Token           `json:"collateralToken"`
	CollateralAmount decimal.Decimal `json:"collateralAmount"`
	APR              decimal.Decimal `json:"apr"`
	TermDays         int             `json:"termDays"`
	Creator          string          `json:"creator"`
	TokenAddress     string          `json:"tokenAddress"`
	Status           ListingStatus   `json:"status"`
	Owner            *string         `json:"owner"`
	TransactionHash  *string         `json:"transactionHash"`
	CreatedAt        time.Time       `json:"createdAt"`
	PurchasedAt      *time.Time      `json:"purchasedAt"`
}

// HasOwner reports whether the listing has been purchased by someone
func (l Listing) HasOwner() bool {
	return l.Owner != nil
}

// Clone returns a copy that shares no pointers with the receiver
func (l Listing) Clone() Listing {
	c := l
	if l.Owner != nil {
		owner := *l.Owner
		c.Owner = &owner
	}
	if l.TransactionHash != nil {
		tx := *l.TransactionHash
		c.TransactionHash = &tx
	}
	if l.PurchasedAt != nil {
		at := *l.PurchasedAt
		c.PurchasedAt = &at
	}
	return c
}

// CreateListingInput holds raw creation fields as received from a caller
type CreateListingInput struct {
	LoanToken        string
	LoanAmount       string
	CollateralToken  string
	CollateralAmount string
	APR              string
	TermDays         int
	Creator          string
	TokenAddress     string
	Status           string
}

// NewListing is a validated creation request
type NewListing struct {
	LoanToken        Token
	LoanAmount       decimal.Decimal
	CollateralToken  Token
	CollateralAmount decimal.Decimal
	APR              decimal.Decimal
	TermDays         int
	Creator          string
	TokenAddress     string
}

// Validate checks every field and returns the normalized listing terms.
// All offending fields are reported in a single *ValidationError.
func (in CreateListingInput) Validate() (NewListing, error) {
	verr := &ValidationError{}
	var out NewListing

	out.LoanToken = parseTokenField(verr, "loanToken", in.LoanToken)
	out.CollateralToken = parseTokenField(verr, "collateralToken", in.CollateralToken)
	out.LoanAmount = parsePositiveDecimal(verr, "loanAmount", in.LoanAmount)
	out.CollateralAmount = parsePositiveDecimal(verr, "collateralAmount", in.CollateralAmount)

	if apr, ok := parseDecimalField(verr, "apr", in.APR); ok {
		if apr.IsNegative() {
			verr.Add("apr", "must not be negative")
		}
		out.APR = apr
	}

	if in.TermDays <= 0 {
		verr.Add("termDays", "must be greater than zero")
	}
	out.TermDays = in.TermDays

	out.Creator = strings.TrimSpace(in.Creator)
	if out.Creator == "" {
		verr.Add("creator", "is required")
	}

	out.TokenAddress = strings.TrimSpace(in.TokenAddress)
	if out.TokenAddress == "" {
		verr.Add("tokenAddress", "is required")
	}

	if status := strings.TrimSpace(in.Status); status != "" && ListingStatus(strings.ToLower(status)) != ListingStatusActive {
		verr.Add("status", "new listings must be active")
	}

	if verr.HasErrors() {
		return NewListing{}, verr
	}
	return out, nil
}

func parseTokenField(verr *ValidationError, field, raw string) Token {
	if strings.TrimSpace(raw) == "" {
		verr.Add(field, "is required")
		return ""
	}
	t, ok := ParseToken(raw)
	if !ok {
		verr.Add(field, "must be one of USDC, USDT, SOL, BTC, ETH")
	}
	return t
}

func parseDecimalField(verr *ValidationError, field, raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		verr.Add(field, "is required")
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		verr.Add(field, "must be a decimal number")
		return decimal.Zero, false
	}
	return d, true
}

func parsePositiveDecimal(verr *ValidationError, field, raw string) decimal.Decimal {
	d, ok := parseDecimalField(verr, field, raw)
	if ok && !d.IsPositive() {
		verr.Add(field, "must be greater than zero")
	}
	return d
}
