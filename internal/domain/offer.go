// README: Dispatch offer record: one order proposed to one driver for a bounded time.
package domain

import (
	"time"

	"easyfuel/internal/types"
)

type OfferStatus string

const (
	OfferPending    OfferStatus = "pending"
	OfferAccepted   OfferStatus = "accepted"
	OfferRejected   OfferStatus = "rejected"
	OfferExpired    OfferStatus = "expired"
	OfferSuperseded OfferStatus = "superseded"
)

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

type Offer struct {
	ID       types.ID
	OrderID  types.ID
	DriverID types.ID
	Status   OfferStatus
	// Round counts dispatch requests; re-dispatch after exhaustion opens a new one.
	Round      int
	Attempt    int
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time
}

func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	cp := *o
	cp.ResolvedAt = cloneTime(o.ResolvedAt)
	return &cp
}

// CanResolveOffer: only pending offers move, and only once.
func CanResolveOffer(from, to OfferStatus) bool {
	if from != OfferPending {
		return false
	}
	switch to {
	case OfferAccepted, OfferRejected, OfferExpired, OfferSuperseded:
		return true
	}
	return false
}
