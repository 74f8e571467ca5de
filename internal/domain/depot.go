// README: Depot fulfillment sub-state attached to orders collected at a supplier depot.
package domain

import (
	"time"

	"easyfuel/internal/types"
)

type DepotStatus string

const (
	DepotPending                 DepotStatus = "pending"
	DepotAccepted                DepotStatus = "accepted"
	DepotRejected                DepotStatus = "rejected"
	DepotPendingPayment          DepotStatus = "pending_payment"
	DepotPaid                    DepotStatus = "paid"
	DepotReadyForPickup          DepotStatus = "ready_for_pickup"
	DepotAwaitingDriverSignature DepotStatus = "awaiting_driver_signature"
	DepotReleased                DepotStatus = "released"
	DepotCompleted               DepotStatus = "completed"
)

// depotRank orders the forward path. Rejected sits outside the ranking.
var depotRank = map[DepotStatus]int{
	DepotPending:                 0,
	DepotAccepted:                1,
	DepotPendingPayment:          2,
	DepotPaid:                    3,
	DepotReadyForPickup:          4,
	DepotAwaitingDriverSignature: 5,
	DepotReleased:                6,
	DepotCompleted:               7,
}

// DepotTransitions is the sub-machine flow. The pending_payment self-loop is the
// payment dispute path; rejected is terminal.
var DepotTransitions = map[DepotStatus][]DepotStatus{
	DepotPending:                 {DepotAccepted, DepotRejected},
	DepotAccepted:                {DepotPendingPayment},
	DepotPendingPayment:          {DepotPendingPayment, DepotPaid},
	DepotPaid:                    {DepotReadyForPickup},
	DepotReadyForPickup:          {DepotAwaitingDriverSignature},
	DepotAwaitingDriverSignature: {DepotReleased},
	DepotReleased:                {DepotCompleted},
}

func CanTransitionDepot(from, to DepotStatus) bool {
	for _, s := range DepotTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DepotMonotonic reports whether from -> to never moves backwards.
func DepotMonotonic(from, to DepotStatus) bool {
	if to == DepotRejected {
		return from == DepotPending
	}
	fr, ok1 := depotRank[from]
	tr, ok2 := depotRank[to]
	if !ok1 || !ok2 {
		return false
	}
	if from == DepotPendingPayment && to == DepotPendingPayment {
		return true
	}
	return tr > fr
}

func IsDepotTerminal(s DepotStatus) bool {
	return s == DepotRejected || s == DepotCompleted
}

// Evidence is an opaque artifact reference (image, document) plus who provided it and when.
type Evidence struct {
	Ref      string
	SignerID types.ID
	At       time.Time
}

type DepotOrder struct {
	OrderID           types.ID
	SupplierID        types.ID
	DriverID          types.ID
	Status            DepotStatus
	Version           int
	PaymentProof      *Evidence
	PaymentAttempts   int
	SupplierSignature *Evidence
	DriverSignature   *Evidence
	RejectionReason   *string
	DisputeReason     *string
	CreatedAt         time.Time
	AcceptedAt        *time.Time
	PaidAt            *time.Time
	ReadyAt           *time.Time
	ReleasedAt        *time.Time
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

func (d *DepotOrder) Clone() *DepotOrder {
	if d == nil {
		return nil
	}
	cp := *d
	cp.PaymentProof = cloneEvidence(d.PaymentProof)
	cp.SupplierSignature = cloneEvidence(d.SupplierSignature)
	cp.DriverSignature = cloneEvidence(d.DriverSignature)
	cp.RejectionReason = cloneString(d.RejectionReason)
	cp.DisputeReason = cloneString(d.DisputeReason)
	cp.AcceptedAt = cloneTime(d.AcceptedAt)
	cp.PaidAt = cloneTime(d.PaidAt)
	cp.ReadyAt = cloneTime(d.ReadyAt)
	cp.ReleasedAt = cloneTime(d.ReleasedAt)
	cp.CompletedAt = cloneTime(d.CompletedAt)
	return &cp
}

func cloneEvidence(e *Evidence) *Evidence {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
