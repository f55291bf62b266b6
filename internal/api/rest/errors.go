package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/novasettle/loan-marketplace/internal/api/shared/errors"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/logger"
)

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError(message, details...))
}

// respondNotFound responds with a not found error
func respondNotFound(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusNotFound, apierrors.NewNotFoundError(message, details...))
}

// respondValidationError responds with the offending fields
func respondValidationError(c *gin.Context, verr *domain.ValidationError) {
	c.JSON(http.StatusBadRequest, apierrors.NewValidationError(verr.Fields))
}

// respondInternalError responds with an internal server error and logs the error
func respondInternalError(c *gin.Context, err error, message string, fields ...zap.Field) {
	logger.ErrorCtx(c.Request.Context(), err, fields...)
	c.JSON(http.StatusInternalServerError, apierrors.NewInternalError(message))
}

// respondDomainError maps the domain error taxonomy to a status code and envelope
func respondDomainError(c *gin.Context, err error, message string) {
	var verr *domain.ValidationError
	var illegal *domain.IllegalTransitionError

	switch {
	case errors.As(err, &verr):
		respondValidationError(c, verr)
	case errors.As(err, &illegal):
		c.JSON(http.StatusBadRequest, apierrors.NewIllegalTransitionError(illegal))
	case errors.Is(err, domain.ErrNotFound):
		respondNotFound(c, err.Error())
	case errors.Is(err, domain.ErrExternal):
		logger.WarnCtx(c.Request.Context(), message, zap.Error(err))
		c.JSON(http.StatusBadGateway, apierrors.NewExternalCapabilityError(message, err.Error()))
	case errors.Is(err, domain.ErrStore):
		logger.ErrorCtx(c.Request.Context(), err, zap.String("message", message))
		c.JSON(http.StatusInternalServerError, apierrors.NewStoreError(message))
	default:
		respondInternalError(c, err, message)
	}
}
