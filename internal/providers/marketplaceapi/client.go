package marketplaceapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	apierrors "github.com/novasettle/loan-marketplace/internal/api/shared/errors"
	"github.com/novasettle/loan-marketplace/internal/api/shared/dto"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/viewsync"
)

const capability = "marketplace-api"

// Client talks to a running marketplace API over REST
type Client struct {
	httpClient adapter.HTTPClient
	baseURL    string
	json       adapter.JSON
}

var _ viewsync.MarketplaceAPI = (*Client)(nil)

// NewClient creates a new marketplace API client
func NewClient(httpClient adapter.HTTPClient, baseURL string, json adapter.JSON) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		json:       json,
	}
}

// ListListings fetches every listing
func (c *Client) ListListings(ctx context.Context) ([]domain.Listing, error) {
	resp, err := c.httpClient.Get(ctx, c.baseURL+"/api/listings")
	if err != nil {
		return nil, transportError("list listings", err)
	}

	var listings []domain.Listing
	if err := c.decode(resp, "list listings", &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// CreateListing posts a new listing
func (c *Client) CreateListing(ctx context.Context, input domain.CreateListingInput) (*domain.Listing, error) {
	req := dto.CreateListingRequest{
		LoanToken:        input.LoanToken,
		LoanAmount:       dto.NumericString(input.LoanAmount),
		CollateralToken:  input.CollateralToken,
		CollateralAmount: dto.NumericString(input.CollateralAmount),
		APR:              dto.NumericString(input.APR),
		TermDays:         dto.NumericString(fmt.Sprintf("%d", input.TermDays)),
		Creator:          input.Creator,
		TokenAddress:     input.TokenAddress,
		Status:           input.Status,
	}
	return c.sendListing(ctx, http.MethodPost, "/api/listings", "create listing", req)
}

// PurchaseListing records a purchase backed by the given ledger transaction
func (c *Client) PurchaseListing(ctx context.Context, id uint64, owner, txHash string) (*domain.Listing, error) {
	req := dto.PurchaseRequest{OwnerAddress: owner, TransactionHash: txHash}
	return c.sendListing(ctx, http.MethodPost, fmt.Sprintf("/api/listings/%d/purchase", id), "purchase listing", req)
}

// CancelListing withdraws an active listing on behalf of its creator
func (c *Client) CancelListing(ctx context.Context, id uint64, actor string) (*domain.Listing, error) {
	req := dto.CancelRequest{ActorAddress: actor}
	return c.sendListing(ctx, http.MethodPost, fmt.Sprintf("/api/listings/%d/cancel", id), "cancel listing", req)
}

// IsVerified reports the KYC state of a wallet
func (c *Client) IsVerified(ctx context.Context, address string) (bool, error) {
	resp, err := c.httpClient.Get(ctx, c.baseURL+"/api/kyc/"+url.PathEscape(address))
	if err != nil {
		return false, transportError("get verification", err)
	}

	var out dto.VerificationResponse
	if err := c.decode(resp, "get verification", &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

// Verify runs the KYC flow for a wallet and returns the resulting state
func (c *Client) Verify(ctx context.Context, address string) (bool, error) {
	body, err := c.json.Marshal(dto.WalletRequest{WalletAddress: address})
	if err != nil {
		return false, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	resp, err := c.httpClient.Send(ctx, http.MethodPost, c.baseURL+"/api/kyc/verify", body)
	if err != nil {
		return false, transportError("verify wallet", err)
	}

	var out dto.VerificationResponse
	if err := c.decode(resp, "verify wallet", &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

func (c *Client) sendListing(ctx context.Context, method, path, op string, payload interface{}) (*domain.Listing, error) {
	body, err := c.json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	resp, err := c.httpClient.Send(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, transportError(op, err)
	}

	var listing domain.Listing
	if err := c.decode(resp, op, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// decode unmarshals a successful response into out, or turns the error envelope
// back into a domain error
func (c *Client) decode(resp *adapter.HTTPResponse, op string, out interface{}) error {
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apierrors.APIError
		if err := c.json.Unmarshal(resp.Body, &apiErr); err != nil || apiErr.Code == "" {
			logger.Warn("Unexpected error response from marketplace API",
				zap.String("op", op),
				zap.Int("status", resp.StatusCode))
			return &domain.ExternalCapabilityError{
				Capability: capability,
				Op:         op,
				Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
			}
		}
		return apiErr.ToDomain()
	}

	if err := c.json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", op, err)
	}
	return nil
}

func transportError(op string, err error) error {
	return &domain.ExternalCapabilityError{Capability: capability, Op: op, Err: err}
}
