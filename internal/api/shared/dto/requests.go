package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

// NumericString accepts a JSON number or a JSON string and keeps its exact text,
// so amounts never pass through a float
type NumericString string

func (n *NumericString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumericString(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected a number or numeric string: %w", err)
	}
	*n = NumericString(num.String())
	return nil
}

func (n NumericString) String() string {
	return string(n)
}

// CreateListingRequest represents the request body for creating a listing
type CreateListingRequest struct {
	LoanToken        string        `json:"loanToken"`
	LoanAmount       NumericString `json:"loanAmount"`
	CollateralToken  string        `json:"collateralToken"`
	CollateralAmount NumericString `json:"collateralAmount"`
	APR              NumericString `json:"apr"`
	TermDays         NumericString `json:"termDays"`
	Creator          string        `json:"creator"`
	TokenAddress     string        `json:"tokenAddress"`
	Status           string        `json:"status,omitempty"`
}

// ToInput converts the request into store input. Field validation happens in the store.
func (r *CreateListingRequest) ToInput() (domain.CreateListingInput, error) {
	var termDays int
	if raw := r.TermDays.String(); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return domain.CreateListingInput{}, domain.NewValidationError("termDays", "must be a whole number of days")
		}
		termDays = days
	}

	return domain.CreateListingInput{
		LoanToken:        r.LoanToken,
		LoanAmount:       r.LoanAmount.String(),
		CollateralToken:  r.CollateralToken,
		CollateralAmount: r.CollateralAmount.String(),
		APR:              r.APR.String(),
		TermDays:         termDays,
		Creator:          r.Creator,
		TokenAddress:     r.TokenAddress,
		Status:           r.Status,
	}, nil
}

// PurchaseRequest represents the request body for purchasing a listing
type PurchaseRequest struct {
	OwnerAddress    string `json:"ownerAddress"`
	TransactionHash string `json:"transactionHash"`
}

// Validate validates the request body
func (r *PurchaseRequest) Validate() error {
	verr := &domain.ValidationError{}
	if strings.TrimSpace(r.OwnerAddress) == "" {
		verr.Add("ownerAddress", "is required")
	}
	if strings.TrimSpace(r.TransactionHash) == "" {
		verr.Add("transactionHash", "is required")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// StatusRequest represents the request body for an administrative status change
type StatusRequest struct {
	Status       string `json:"status"`
	ActorAddress string `json:"actorAddress,omitempty"`
}

// Parse validates the request body and returns the target status
func (r *StatusRequest) Parse() (domain.ListingStatus, error) {
	return domain.ParseListingStatus(r.Status)
}

// CancelRequest represents the request body for cancelling a listing
type CancelRequest struct {
	ActorAddress string `json:"actorAddress"`
}

// WalletRequest carries a single wallet address; used by dev reset and verification
type WalletRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// Validate validates the request body
func (r *WalletRequest) Validate() error {
	if strings.TrimSpace(r.WalletAddress) == "" {
		return domain.NewValidationError("walletAddress", "is required")
	}
	return nil
}
