package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches any *ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches any *NotFoundError
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition matches any *IllegalTransitionError
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrExternal matches any *ExternalCapabilityError
	ErrExternal = errors.New("external capability failed")

	// ErrStore matches any *StoreError
	ErrStore = errors.New("store failure")
)

// FieldError describes a single invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when input is malformed.
// It carries every offending field, not only the first one.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add appends a field error
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field error was recorded
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError is returned when a referenced entity does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

// NewListingNotFoundError creates a not found error for a listing id
func NewListingNotFoundError(id uint64) *NotFoundError {
	return &NotFoundError{Resource: "listing", ID: fmt.Sprintf("%d", id)}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransitionReason is a machine readable cause of an illegal transition
type TransitionReason string

const (
	ReasonSelfPurchase TransitionReason = "self_purchase"
	ReasonNotActive    TransitionReason = "not_active"
	ReasonAlreadyOwned TransitionReason = "already_owned"
	ReasonUnverified   TransitionReason = "unverified"
	ReasonNotCreator   TransitionReason = "not_creator"
	ReasonTerminal     TransitionReason = "terminal_state"
	ReasonNotAllowed   TransitionReason = "not_allowed"
)

// IllegalTransitionError is returned when a lifecycle precondition is violated:
// wrong actor, wrong current state or an already owned listing
type IllegalTransitionError struct {
	ListingID uint64
	From      ListingStatus
	To        ListingStatus
	Actor     string
	Reason    TransitionReason
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition of listing %d from %s to %s: %s", e.ListingID, e.From, e.To, e.Reason)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// ExternalCapabilityError wraps a failure of the wallet, ledger or verification capability.
// The store is never mutated when one of these is returned.
type ExternalCapabilityError struct {
	Capability string
	Op         string
	Err        error
}

func (e *ExternalCapabilityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Capability, e.Op)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Capability, e.Op, e.Err)
}

func (e *ExternalCapabilityError) Unwrap() error {
	return e.Err
}

func (e *ExternalCapabilityError) Is(target error) bool {
	return target == ErrExternal
}

// StoreError wraps an internal storage failure
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
