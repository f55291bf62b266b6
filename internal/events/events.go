// Package events carries committed listing mutations to interested parties:
// in-process subscribers (server-sent events) and the message broker.
package events

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/domain"
)

// EventType identifies the kind of committed mutation
type EventType string

const (
	EventListingCreated       EventType = "listing.created"
	EventListingPurchased     EventType = "listing.purchased"
	EventListingStatusChanged EventType = "listing.status_changed"
	EventListingsReset        EventType = "listings.reset"
)

// ListingEvent describes one committed mutation.
// Listing is the state right after the mutation; it is nil for a reset.
type ListingEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	ListingID uint64          `json:"listingId,omitempty"`
	Listing   *domain.Listing `json:"listing,omitempty"`
	At        time.Time       `json:"at"`
}

// NewListingEvent creates an event with a time-ordered unique id
func NewListingEvent(clock adapter.Clock, typ EventType, listing *domain.Listing) ListingEvent {
	now := clock.Now()
	ev := ListingEvent{
		ID:   ulid.MustNewDefault(now).String(),
		Type: typ,
		At:   now.UTC(),
	}
	if listing != nil {
		l := listing.Clone()
		ev.ListingID = l.ID
		ev.Listing = &l
	}
	return ev
}

// Publisher delivers listing events
//
//go:generate mockgen -source=events.go -destination=../mocks/events.go -package=mocks -mock_names=Publisher=MockEventPublisher
type Publisher interface {
	Publish(ctx context.Context, event ListingEvent) error
}
