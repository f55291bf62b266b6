package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/novasettle/loan-marketplace/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no prefix)
	router.GET("/health", handler.HealthCheck)

	// Administrative routes require credentials only when some are configured
	admin := middleware.Auth(authCfg)

	api := router.Group("/api")
	{
		// Listing endpoints
		api.GET("/listings", handler.ListListings)
		api.POST("/listings", handler.CreateListing)
		api.GET("/listings/creator/:address", handler.ListByCreator)
		api.GET("/listings/owner/:address", handler.ListByOwner)
		api.GET("/listings/:id", handler.GetListing)
		api.POST("/listings/:id/purchase", handler.PurchaseListing)
		api.POST("/listings/:id/cancel", handler.CancelListing)
		api.PATCH("/listings/:id/status", admin, handler.UpdateStatus)

		// Purchasable projection with search, filter and sort
		api.GET("/marketplace", handler.Marketplace)

		// Push alternative to polling
		api.GET("/events/listings", handler.StreamListingEvents)

		// Verification
		api.POST("/kyc/verify", handler.VerifyWallet)
		api.GET("/kyc/:address", handler.GetVerification)

		// Ledger
		api.GET("/network/status", handler.NetworkStatus)
		api.GET("/wallets/:address/balance", handler.WalletBalance)

		// Development helpers
		api.POST("/dev/reset", admin, handler.ResetDev)
	}
}
