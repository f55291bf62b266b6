package rest_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/api/middleware"
	"github.com/novasettle/loan-marketplace/internal/api/rest"
	"github.com/novasettle/loan-marketplace/internal/api/shared/dto"
	apierrors "github.com/novasettle/loan-marketplace/internal/api/shared/errors"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/events"
	"github.com/novasettle/loan-marketplace/internal/ledger"
	"github.com/novasettle/loan-marketplace/internal/marketplace"
	"github.com/novasettle/loan-marketplace/internal/mocks"
	"github.com/novasettle/loan-marketplace/internal/pricing"
	"github.com/novasettle/loan-marketplace/internal/store"
	"github.com/novasettle/loan-marketplace/internal/verification"
)

const (
	creator = "7tWZ9mXkE1uHd3fD2FqUjGzP4bNcV8sLrYaQ6wT5iKoM"
	buyer   = "3hRcK8vLpN2xQwE5tY7uJ9mB4gF6dS1aZ0oI8nHyTrWe"
	sig     = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz1CosKDYVCJjBRah"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	store  store.Store
	ledger *mocks.MockLedger
	hub    *events.Hub
}

type fixtureOptions struct {
	service marketplace.Config
	auth    middleware.AuthConfig
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	ctrl := gomock.NewController(t)
	clock := adapter.NewClock()

	f := &fixture{
		store:  store.NewMemoryStore(clock),
		ledger: mocks.NewMockLedger(ctrl),
		hub:    events.NewHub(16),
	}
	verifier := verification.NewSimulatedVerifier(0, clock)
	svc := marketplace.NewService(opts.service, f.store, verifier, f.ledger, f.hub, clock)
	handler := rest.NewHandler(rest.HandlerConfig{}, svc, verifier, f.ledger, pricing.DefaultPrices(), f.hub)

	f.router = gin.New()
	rest.SetupRoutes(f.router, handler, opts.auth)
	return f
}

func (f *fixture) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func createBody(creator string) map[string]interface{} {
	return map[string]interface{}{
		"loanToken":        "USDC",
		"loanAmount":       "5000",
		"collateralToken":  "SOL",
		"collateralAmount": 100,
		"apr":              "8.5",
		"termDays":         30,
		"creator":          creator,
		"tokenAddress":     "CT5zKYSQHNmP6TXc5n1nqP9V1CZL15gyY6DoBP3qKhry",
	}
}

func decodeListing(t *testing.T, w *httptest.ResponseRecorder) dto.ListingResponse {
	t.Helper()
	var l dto.ListingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l), w.Body.String())
	return l
}

func decodeListings(t *testing.T, w *httptest.ResponseRecorder) []dto.ListingResponse {
	t.Helper()
	var ls []dto.ListingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ls), w.Body.String())
	return ls
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierrors.APIError {
	t.Helper()
	var apiErr apierrors.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr), w.Body.String())
	return apiErr
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	w := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"loan-marketplace-api"}`, w.Body.String())
}

func TestPurchaseHappyPath(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(http.MethodPost, "/api/listings", createBody(creator))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeListing(t, w)
	assert.Equal(t, uint64(1), created.ID)
	assert.Equal(t, domain.ListingStatusActive, created.Status)
	assert.True(t, created.CollateralAmount.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, created.CollateralizationRatio)
	assert.Equal(t, "100", created.CollateralizationRatio.String())
	assert.True(t, created.ExpectedInterest.IsPositive())
	assert.True(t, created.CreatedAt.AddDate(0, 0, created.TermDays).Equal(created.MaturesAt))

	w = f.do(http.MethodPost, "/api/listings/1/purchase", map[string]string{"ownerAddress": buyer, "transactionHash": sig})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	purchased := decodeListing(t, w)
	assert.Equal(t, domain.ListingStatusPurchased, purchased.Status)
	assert.Equal(t, buyer, *purchased.Owner)
	assert.Equal(t, sig, *purchased.TransactionHash)
	assert.NotNil(t, purchased.PurchasedAt)

	w = f.do(http.MethodGet, "/api/listings/owner/"+buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeListings(t, w), 1)

	w = f.do(http.MethodGet, "/api/listings/creator/"+creator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeListings(t, w), 1)

	w = f.do(http.MethodGet, "/api/marketplace", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var market dto.MarketplaceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &market))
	assert.Empty(t, market.Listings)
	assert.Zero(t, market.Total)

	// second purchase loses
	w = f.do(http.MethodPost, "/api/listings/1/purchase", map[string]string{"ownerAddress": "Other1111111111111111111111111111111111111", "transactionHash": "tx2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.ErrCodeIllegalTransition, decodeError(t, w).Code)
}

func TestSelfPurchase(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	w := f.do(http.MethodPost, "/api/listings/1/purchase", map[string]string{"ownerAddress": creator, "transactionHash": sig})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	apiErr := decodeError(t, w)
	assert.Equal(t, apierrors.ErrCodeIllegalTransition, apiErr.Code)
	require.NotNil(t, apiErr.Transition)
	assert.Equal(t, string(domain.ReasonSelfPurchase), apiErr.Transition.Reason)

	w = f.do(http.MethodGet, "/api/listings/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	l := decodeListing(t, w)
	assert.Equal(t, domain.ListingStatusActive, l.Status)
	assert.Nil(t, l.Owner)
}

func TestGetListing(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(http.MethodGet, "/api/listings/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.ErrCodeBadRequest, decodeError(t, w).Code)

	w = f.do(http.MethodGet, "/api/listings/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apierrors.ErrCodeNotFound, decodeError(t, w).Code)
}

func TestListListings(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(http.MethodGet, "/api/listings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)
	}
	w = f.do(http.MethodGet, "/api/listings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listings := decodeListings(t, w)
	require.Len(t, listings, 3)
	for i, l := range listings {
		assert.Equal(t, uint64(i+1), l.ID)
	}
}

func TestCreateListingValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	t.Run("field errors", func(t *testing.T) {
		body := createBody(creator)
		body["loanAmount"] = "-1"
		body["loanToken"] = "DOGE"
		body["termDays"] = 0

		w := f.do(http.MethodPost, "/api/listings", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		apiErr := decodeError(t, w)
		assert.Equal(t, apierrors.ErrCodeValidationFailed, apiErr.Code)

		fields := map[string]bool{}
		for _, fe := range apiErr.Fields {
			fields[fe.Field] = true
		}
		assert.True(t, fields["loanAmount"])
		assert.True(t, fields["loanToken"])
		assert.True(t, fields["termDays"])
	})

	t.Run("malformed body", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/listings", `{"loanAmount":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apierrors.ErrCodeBadRequest, decodeError(t, w).Code)
	})

	t.Run("fractional term", func(t *testing.T) {
		body := createBody(creator)
		body["termDays"] = 1.5
		w := f.do(http.MethodPost, "/api/listings", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apierrors.ErrCodeValidationFailed, decodeError(t, w).Code)
	})

	w := f.do(http.MethodGet, "/api/listings", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateListingRequiresVerification(t *testing.T) {
	f := newFixture(t, fixtureOptions{service: marketplace.Config{RequireVerification: true}})

	w := f.do(http.MethodPost, "/api/listings", createBody(creator))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	apiErr := decodeError(t, w)
	require.NotNil(t, apiErr.Transition)
	assert.Equal(t, string(domain.ReasonUnverified), apiErr.Transition.Reason)

	w = f.do(http.MethodPost, "/api/kyc/verify", map[string]string{"walletAddress": creator})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"walletAddress":"`+creator+`","verified":true}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/kyc/"+creator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"walletAddress":"`+creator+`","verified":true}`, w.Body.String())

	w = f.do(http.MethodPost, "/api/listings", createBody(creator))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	w := f.do(http.MethodPost, "/api/listings/1/purchase", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	apiErr := decodeError(t, w)
	assert.Equal(t, apierrors.ErrCodeValidationFailed, apiErr.Code)
	assert.Len(t, apiErr.Fields, 2)

	w = f.do(http.MethodPost, "/api/listings/42/purchase", map[string]string{"ownerAddress": buyer, "transactionHash": sig})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseConfirmation(t *testing.T) {
	f := newFixture(t, fixtureOptions{service: marketplace.Config{ConfirmPurchases: true}})
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	f.ledger.EXPECT().ConfirmTransaction(gomock.Any(), sig).Return(false, nil)
	w := f.do(http.MethodPost, "/api/listings/1/purchase", map[string]string{"ownerAddress": buyer, "transactionHash": sig})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, apierrors.ErrCodeExternalCapability, decodeError(t, w).Code)

	l, err := f.store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, l.Status)

	f.ledger.EXPECT().ConfirmTransaction(gomock.Any(), sig).Return(true, nil)
	w = f.do(http.MethodPost, "/api/listings/1/purchase", map[string]string{"ownerAddress": buyer, "transactionHash": sig})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   apierrors.ErrorCode
	}{
		{name: "missing status", body: map[string]string{}, status: http.StatusBadRequest, code: apierrors.ErrCodeValidationFailed},
		{name: "unknown status", body: map[string]string{"status": "archived"}, status: http.StatusBadRequest, code: apierrors.ErrCodeValidationFailed},
		{name: "purchase through status", body: map[string]string{"status": "purchased", "actorAddress": buyer}, status: http.StatusBadRequest, code: apierrors.ErrCodeIllegalTransition},
		{name: "cancel by stranger", body: map[string]string{"status": "cancelled", "actorAddress": buyer}, status: http.StatusBadRequest, code: apierrors.ErrCodeIllegalTransition},
		{name: "same status", body: map[string]string{"status": "active"}, status: http.StatusOK},
		{name: "cancel by creator", body: map[string]string{"status": "cancelled", "actorAddress": creator}, status: http.StatusOK},
		{name: "cancel again", body: map[string]string{"status": "cancelled", "actorAddress": creator}, status: http.StatusOK},
		{name: "out of terminal state", body: map[string]string{"status": "active", "actorAddress": creator}, status: http.StatusBadRequest, code: apierrors.ErrCodeIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPatch, "/api/listings/1/status", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeError(t, w).Code)
			}
		})
	}

	w := f.do(http.MethodPatch, "/api/listings/7/status", map[string]string{"status": "repaid"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	w := f.do(http.MethodPost, "/api/listings/1/cancel", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierrors.ErrCodeValidationFailed, decodeError(t, w).Code)

	w = f.do(http.MethodPost, "/api/listings/1/cancel", map[string]string{"actorAddress": creator})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ListingStatusCancelled, decodeListing(t, w).Status)

	w = f.do(http.MethodPost, "/api/listings/1/purchase", map[string]string{"ownerAddress": buyer, "transactionHash": sig})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarketplace(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	high := createBody(buyer)
	high["apr"] = "14.5"
	high["loanToken"] = "ETH"
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", high).Code)

	w := f.do(http.MethodGet, "/api/marketplace?filter=high-apr&sort=lowest-apr", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var market dto.MarketplaceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &market))
	assert.Equal(t, 2, market.Total)
	require.Len(t, market.Listings, 1)
	assert.Equal(t, uint64(2), market.Listings[0].ID)

	w = f.do(http.MethodGet, "/api/marketplace?exclude_creator="+buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &market))
	assert.Equal(t, 1, market.Total)
	require.Len(t, market.Listings, 1)
	assert.Equal(t, uint64(1), market.Listings[0].ID)

	w = f.do(http.MethodGet, "/api/marketplace?filter=cheap&sort=random", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, decodeError(t, w).Fields, 2)
}

func TestResetDev(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	w := f.do(http.MethodPost, "/api/dev/reset", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/dev/reset", map[string]string{"walletAddress": buyer})
	require.Equal(t, http.StatusOK, w.Code)
	listings := decodeListings(t, w)
	require.Len(t, listings, 4)
	assert.Equal(t, uint64(1), listings[0].ID)
	assert.Equal(t, buyer, listings[0].Creator)
	assert.Equal(t, domain.ListingStatusPurchased, listings[3].Status)
	assert.Equal(t, buyer, *listings[3].Owner)
}

func TestAdminRoutesRequireCredentials(t *testing.T) {
	f := newFixture(t, fixtureOptions{auth: middleware.AuthConfig{APIKeys: []string{"admin-key"}}})
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	w := f.do(http.MethodPost, "/api/dev/reset", map[string]string{"walletAddress": buyer})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPatch, "/api/listings/1/status", map[string]string{"status": "cancelled", "actorAddress": creator})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/dev/reset", map[string]string{"walletAddress": buyer}, "Authorization", "ApiKey admin-key")
	assert.Equal(t, http.StatusOK, w.Code)

	// public routes stay open
	w = f.do(http.MethodGet, "/api/listings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNetworkStatus(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	f.ledger.EXPECT().NetworkStatus(gomock.Any()).Return(&ledger.NetworkStatus{Connected: true, Slot: 301234567}, nil)
	w := f.do(http.MethodGet, "/api/network/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"connected","slot":301234567}`, w.Body.String())

	f.ledger.EXPECT().NetworkStatus(gomock.Any()).Return(nil, errors.New("dial tcp: connection refused"))
	w = f.do(http.MethodGet, "/api/network/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"disconnected"}`, w.Body.String())
}

func TestWalletBalance(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	f.ledger.EXPECT().Balance(gomock.Any(), buyer).Return(decimal.RequireFromString("1.5"), nil)
	w := f.do(http.MethodGet, "/api/wallets/"+buyer+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"address":"`+buyer+`","token":"SOL","balance":"1.5"}`, w.Body.String())

	f.ledger.EXPECT().Balance(gomock.Any(), buyer).Return(decimal.Zero, &domain.ExternalCapabilityError{Capability: "ledger", Op: "getBalance", Err: ledger.ErrNotConfigured})
	w = f.do(http.MethodGet, "/api/wallets/"+buyer+"/balance", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, apierrors.ErrCodeExternalCapability, decodeError(t, w).Code)
}

func TestStreamListingEvents(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events/listings", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/listings", createBody(creator)).Code)

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var eventName, data string
	timeout := time.After(5 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			switch {
			case strings.HasPrefix(line, "event:"):
				eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:") && eventName != "":
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		case <-timeout:
			t.Fatal("no event received")
		}
	}

	assert.Equal(t, string(events.EventListingCreated), eventName)
	var ev events.ListingEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, uint64(1), ev.ListingID)
	assert.NotEmpty(t, ev.ID)

	cancel()
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}
