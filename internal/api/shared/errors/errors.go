package errors

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest        ErrorCode = "bad_request"
	ErrCodeNotFound          ErrorCode = "not_found"
	ErrCodeValidationFailed  ErrorCode = "validation_failed"
	ErrCodeIllegalTransition ErrorCode = "illegal_transition"
	ErrCodeUnauthorized      ErrorCode = "unauthorized"
	ErrCodeForbidden         ErrorCode = "forbidden"

	// Server errors (5xx)
	ErrCodeInternalError      ErrorCode = "internal_error"
	ErrCodeStoreError         ErrorCode = "store_error"
	ErrCodeExternalCapability ErrorCode = "external_capability"
)

// TransitionDetail describes a rejected lifecycle transition
type TransitionDetail struct {
	ListingID uint64 `json:"listingId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Actor     string `json:"actor,omitempty"`
	Reason    string `json:"reason"`
}

// APIError represents a structured API error that carries error code and details
type APIError struct {
	Code       ErrorCode           `json:"code"`
	Message    string              `json:"message"`
	Details    string              `json:"details,omitempty"`
	Fields     []domain.FieldError `json:"fields,omitempty"`
	Transition *TransitionDetail   `json:"transition,omitempty"`
}

func (e *APIError) Error() string {
	jsonErr, _ := json.Marshal(e)
	return string(jsonErr)
}

// ToDomain converts a decoded API error back into the domain error taxonomy
func (e *APIError) ToDomain() error {
	switch e.Code {
	case ErrCodeValidationFailed:
		if len(e.Fields) > 0 {
			return &domain.ValidationError{Fields: e.Fields}
		}
		return domain.NewValidationError("request", e.Details)
	case ErrCodeBadRequest:
		return domain.NewValidationError("request", strings.TrimSpace(e.Message+" "+e.Details))
	case ErrCodeNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, e.Message)
	case ErrCodeIllegalTransition:
		if t := e.Transition; t != nil {
			return &domain.IllegalTransitionError{
				ListingID: t.ListingID,
				From:      domain.ListingStatus(t.From),
				To:        domain.ListingStatus(t.To),
				Actor:     t.Actor,
				Reason:    domain.TransitionReason(t.Reason),
			}
		}
		return fmt.Errorf("%w: %s", domain.ErrIllegalTransition, e.Message)
	case ErrCodeExternalCapability:
		return &domain.ExternalCapabilityError{Capability: "api", Op: e.Message, Err: e}
	case ErrCodeStoreError:
		return &domain.StoreError{Op: e.Message, Err: e}
	}
	return e
}

// Error constructors for common error types
func NewBadRequestError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewNotFoundError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewValidationError(fields []domain.FieldError, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeValidationFailed,
		Message: "Validation failed",
		Details: strings.Join(details, ", "),
		Fields:  fields,
	}
}

func NewIllegalTransitionError(err *domain.IllegalTransitionError) *APIError {
	return &APIError{
		Code:    ErrCodeIllegalTransition,
		Message: err.Error(),
		Transition: &TransitionDetail{
			ListingID: err.ListingID,
			From:      string(err.From),
			To:        string(err.To),
			Actor:     err.Actor,
			Reason:    string(err.Reason),
		},
	}
}

func NewUnauthorizedError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewForbiddenError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewInternalError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeInternalError,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewStoreError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeStoreError,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewExternalCapabilityError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeExternalCapability,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}
