// Package lifecycle holds the pure transition rules of a listing.
// Nothing here touches storage; the store evaluates these checks under its own lock.
package lifecycle

import (
	"github.com/novasettle/loan-marketplace/internal/domain"
)

// administrative transitions reachable through a plain status update
var statusUpdates = map[domain.ListingStatus]map[domain.ListingStatus]bool{
	domain.ListingStatusActive: {
		domain.ListingStatusCancelled: true,
	},
	domain.ListingStatusPurchased: {
		domain.ListingStatusRepaid:    true,
		domain.ListingStatusDefaulted: true,
	},
}

// Purchasable reports whether a listing may be bought and therefore shown in the marketplace
func Purchasable(l domain.Listing) bool {
	return l.Status == domain.ListingStatusActive && l.Owner == nil
}

// IsNoop reports whether setting the status to `to` would change nothing
func IsNoop(l domain.Listing, to domain.ListingStatus) bool {
	return l.Status == to
}

// CheckPurchase validates the active → purchased transition for buyer
func CheckPurchase(l domain.Listing, buyer string, verified bool) error {
	switch {
	case buyer == l.Creator:
		return illegal(l, domain.ListingStatusPurchased, buyer, domain.ReasonSelfPurchase)
	case l.Status != domain.ListingStatusActive:
		return illegal(l, domain.ListingStatusPurchased, buyer, domain.ReasonNotActive)
	case l.Owner != nil:
		return illegal(l, domain.ListingStatusPurchased, buyer, domain.ReasonAlreadyOwned)
	case !verified:
		return illegal(l, domain.ListingStatusPurchased, buyer, domain.ReasonUnverified)
	}
	return nil
}

// CheckCancel validates the active → cancelled transition for actor
func CheckCancel(l domain.Listing, actor string) error {
	switch {
	case l.Status.Terminal():
		return illegal(l, domain.ListingStatusCancelled, actor, domain.ReasonTerminal)
	case l.Status != domain.ListingStatusActive:
		return illegal(l, domain.ListingStatusCancelled, actor, domain.ReasonNotActive)
	case actor != l.Creator:
		return illegal(l, domain.ListingStatusCancelled, actor, domain.ReasonNotCreator)
	case l.Owner != nil:
		return illegal(l, domain.ListingStatusCancelled, actor, domain.ReasonAlreadyOwned)
	}
	return nil
}

// CheckStatusUpdate validates a direct status update.
// Purchases are excluded: they must go through CheckPurchase so that owner,
// transaction hash and purchase time are recorded together.
// A same-status update is always legal and callers must treat it as a no-op.
func CheckStatusUpdate(l domain.Listing, to domain.ListingStatus, actor string) error {
	if IsNoop(l, to) {
		return nil
	}
	if l.Status.Terminal() {
		return illegal(l, to, actor, domain.ReasonTerminal)
	}
	if to == domain.ListingStatusCancelled {
		return CheckCancel(l, actor)
	}
	if !statusUpdates[l.Status][to] {
		return illegal(l, to, actor, domain.ReasonNotAllowed)
	}
	return nil
}

// CheckCreate validates that creator may publish a new listing
func CheckCreate(creator string, verified bool) error {
	if !verified {
		return &domain.IllegalTransitionError{
			To:     domain.ListingStatusActive,
			Actor:  creator,
			Reason: domain.ReasonUnverified,
		}
	}
	return nil
}

func illegal(l domain.Listing, to domain.ListingStatus, actor string, reason domain.TransitionReason) error {
	return &domain.IllegalTransitionError{
		ListingID: l.ID,
		From:      l.Status,
		To:        to,
		Actor:     actor,
		Reason:    reason,
	}
}
