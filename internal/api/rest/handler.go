package rest

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novasettle/loan-marketplace/internal/api/middleware"
	"github.com/novasettle/loan-marketplace/internal/api/shared/dto"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/events"
	"github.com/novasettle/loan-marketplace/internal/ledger"
	"github.com/novasettle/loan-marketplace/internal/logger"
	"github.com/novasettle/loan-marketplace/internal/marketplace"
	"github.com/novasettle/loan-marketplace/internal/pricing"
	"github.com/novasettle/loan-marketplace/internal/verification"
)

const defaultHeartbeatInterval = 15 * time.Second

// Handler defines the interface for REST API handlers
type Handler interface {
	// ListListings returns every listing in id order
	// GET /api/listings
	ListListings(c *gin.Context)

	// GetListing returns a single listing
	// GET /api/listings/:id
	GetListing(c *gin.Context)

	// CreateListing publishes a new active listing
	// POST /api/listings
	CreateListing(c *gin.Context)

	// ListByCreator returns the listings created by an address
	// GET /api/listings/creator/:address
	ListByCreator(c *gin.Context)

	// ListByOwner returns the listings purchased by an address
	// GET /api/listings/owner/:address
	ListByOwner(c *gin.Context)

	// PurchaseListing records a purchase backed by a ledger transaction
	// POST /api/listings/:id/purchase
	PurchaseListing(c *gin.Context)

	// CancelListing withdraws an active listing on behalf of its creator
	// POST /api/listings/:id/cancel
	CancelListing(c *gin.Context)

	// UpdateStatus applies an administrative status change
	// PATCH /api/listings/:id/status
	UpdateStatus(c *gin.Context)

	// Marketplace returns the purchasable listings
	// GET /api/marketplace?q=<search>&filter=<filter>&sort=<sort>&exclude_creator=<address>
	Marketplace(c *gin.Context)

	// StreamListingEvents streams committed listing mutations as server-sent events
	// GET /api/events/listings
	StreamListingEvents(c *gin.Context)

	// VerifyWallet runs wallet verification
	// POST /api/kyc/verify
	VerifyWallet(c *gin.Context)

	// GetVerification reports whether a wallet is verified
	// GET /api/kyc/:address
	GetVerification(c *gin.Context)

	// NetworkStatus reports ledger connectivity
	// GET /api/network/status
	NetworkStatus(c *gin.Context)

	// WalletBalance returns the native balance of a wallet
	// GET /api/wallets/:address/balance
	WalletBalance(c *gin.Context)

	// ResetDev replaces every listing with the development fixture
	// POST /api/dev/reset
	ResetDev(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// HandlerConfig holds handler settings
type HandlerConfig struct {
	ServiceName string
	// HeartbeatInterval keeps idle event streams open through proxies
	HeartbeatInterval time.Duration
}

// handler implements the Handler interface
type handler struct {
	cfg      HandlerConfig
	service  marketplace.Service
	verifier verification.Verifier
	ledger   ledger.Ledger
	prices   pricing.PriceSource
	hub      *events.Hub
}

// NewHandler creates a new REST API handler
func NewHandler(cfg HandlerConfig, service marketplace.Service, verifier verification.Verifier, l ledger.Ledger, prices pricing.PriceSource, hub *events.Hub) Handler {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "loan-marketplace-api"
	}
	return &handler{
		cfg:      cfg,
		service:  service,
		verifier: verifier,
		ledger:   l,
		prices:   prices,
		hub:      hub,
	}
}

func (h *handler) ListListings(c *gin.Context) {
	listings, err := h.service.ListListings(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "Failed to list listings")
		return
	}
	c.JSON(http.StatusOK, dto.NewListingResponses(listings, h.prices))
}

func (h *handler) GetListing(c *gin.Context) {
	id, ok := parseListingID(c)
	if !ok {
		respondBadRequest(c, "Invalid listing id", c.Param("id"))
		return
	}

	l, err := h.service.GetListing(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "Failed to get listing")
		return
	}
	c.JSON(http.StatusOK, dto.NewListingResponse(*l, h.prices))
}

func (h *handler) CreateListing(c *gin.Context) {
	var req dto.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	input, err := req.ToInput()
	if err != nil {
		respondDomainError(c, err, "Invalid listing")
		return
	}

	l, err := h.service.CreateListing(c.Request.Context(), input)
	if err != nil {
		respondDomainError(c, err, "Failed to create listing")
		return
	}
	c.JSON(http.StatusCreated, dto.NewListingResponse(*l, h.prices))
}

func (h *handler) ListByCreator(c *gin.Context) {
	listings, err := h.service.ListByCreator(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondDomainError(c, err, "Failed to list listings by creator")
		return
	}
	c.JSON(http.StatusOK, dto.NewListingResponses(listings, h.prices))
}

func (h *handler) ListByOwner(c *gin.Context) {
	listings, err := h.service.ListByOwner(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondDomainError(c, err, "Failed to list listings by owner")
		return
	}
	c.JSON(http.StatusOK, dto.NewListingResponses(listings, h.prices))
}

func (h *handler) PurchaseListing(c *gin.Context) {
	id, ok := parseListingID(c)
	if !ok {
		respondBadRequest(c, "Invalid listing id", c.Param("id"))
		return
	}

	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondDomainError(c, err, "Invalid purchase")
		return
	}

	l, err := h.service.PurchaseListing(c.Request.Context(), id, req.OwnerAddress, req.TransactionHash)
	if err != nil {
		respondDomainError(c, err, "Failed to purchase listing")
		return
	}
	c.JSON(http.StatusOK, dto.NewListingResponse(*l, h.prices))
}

func (h *handler) CancelListing(c *gin.Context) {
	id, ok := parseListingID(c)
	if !ok {
		respondBadRequest(c, "Invalid listing id", c.Param("id"))
		return
	}

	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	l, err := h.service.CancelListing(c.Request.Context(), id, req.ActorAddress)
	if err != nil {
		respondDomainError(c, err, "Failed to cancel listing")
		return
	}
	c.JSON(http.StatusOK, dto.NewListingResponse(*l, h.prices))
}

func (h *handler) UpdateStatus(c *gin.Context) {
	id, ok := parseListingID(c)
	if !ok {
		respondBadRequest(c, "Invalid listing id", c.Param("id"))
		return
	}

	var req dto.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	status, err := req.Parse()
	if err != nil {
		respondDomainError(c, err, "Invalid status")
		return
	}

	actor := strings.TrimSpace(req.ActorAddress)
	if actor == "" {
		actor = middleware.AuthSubject(c)
	}

	l, err := h.service.UpdateStatus(c.Request.Context(), id, status, actor)
	if err != nil {
		respondDomainError(c, err, "Failed to update listing status")
		return
	}
	c.JSON(http.StatusOK, dto.NewListingResponse(*l, h.prices))
}

func (h *handler) Marketplace(c *gin.Context) {
	query, err := ParseMarketplaceQuery(c)
	if err != nil {
		respondDomainError(c, err, "Invalid marketplace query")
		return
	}

	listings, total, err := h.service.Marketplace(c.Request.Context(), query)
	if err != nil {
		respondDomainError(c, err, "Failed to query marketplace")
		return
	}
	c.JSON(http.StatusOK, dto.MarketplaceResponse{
		Listings: dto.NewListingResponses(listings, h.prices),
		Total:    total,
	})
}

func (h *handler) StreamListingEvents(c *gin.Context) {
	stream, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	logger.DebugCtx(c.Request.Context(), "Event stream opened", zap.Int("subscribers", h.hub.Subscribers()))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case at := <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": at.UTC()})
			return true
		}
	})
}

func (h *handler) VerifyWallet(c *gin.Context) {
	var req dto.WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondDomainError(c, err, "Invalid verification request")
		return
	}

	address := strings.TrimSpace(req.WalletAddress)
	verified, err := h.verifier.Verify(c.Request.Context(), address)
	if err != nil {
		respondDomainError(c, err, "Failed to verify wallet")
		return
	}
	c.JSON(http.StatusOK, dto.VerificationResponse{WalletAddress: address, Verified: verified})
}

func (h *handler) GetVerification(c *gin.Context) {
	address := c.Param("address")
	verified, err := h.verifier.IsVerified(c.Request.Context(), address)
	if err != nil {
		respondDomainError(c, err, "Failed to get verification")
		return
	}
	c.JSON(http.StatusOK, dto.VerificationResponse{WalletAddress: address, Verified: verified})
}

func (h *handler) NetworkStatus(c *gin.Context) {
	status, err := h.ledger.NetworkStatus(c.Request.Context())
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "Failed to get network status", zap.Error(err))
		status = nil
	}
	c.JSON(http.StatusOK, dto.NewNetworkStatusResponse(status))
}

func (h *handler) WalletBalance(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	balance, err := h.ledger.Balance(c.Request.Context(), address)
	if err != nil {
		respondDomainError(c, err, "Failed to get wallet balance")
		return
	}
	c.JSON(http.StatusOK, dto.BalanceResponse{Address: address, Token: domain.TokenSOL, Balance: balance})
}

func (h *handler) ResetDev(c *gin.Context) {
	var req dto.WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondDomainError(c, err, "Invalid reset request")
		return
	}

	listings, err := h.service.ResetDev(c.Request.Context(), req.WalletAddress)
	if err != nil {
		respondDomainError(c, err, "Failed to reset development data")
		return
	}
	c.JSON(http.StatusOK, dto.NewListingResponses(listings, h.prices))
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.cfg.ServiceName,
	})
}
