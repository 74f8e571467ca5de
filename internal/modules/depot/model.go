// README: Depot actions and the command that carries them.
package depot

import (
	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

type Action string

const (
	ActionAccept         Action = "accept"
	ActionReject         Action = "reject"
	ActionSubmitPayment  Action = "submit_payment"
	ActionVerifyPayment  Action = "verify_payment"
	ActionDisputePayment Action = "dispute_payment"
	ActionSupplierSign   Action = "supplier_sign"
	ActionRelease        Action = "release"
	ActionDriverSign     Action = "driver_sign"
)

type step struct {
	actor string
	from  domain.DepotStatus
	// path lists every status passed through; the last entry is where the record lands.
	path     []domain.DepotStatus
	evidence bool
}

var steps = map[Action]step{
	ActionAccept:         {actor: domain.ActorSupplier, from: domain.DepotPending, path: []domain.DepotStatus{domain.DepotAccepted, domain.DepotPendingPayment}},
	ActionReject:         {actor: domain.ActorSupplier, from: domain.DepotPending, path: []domain.DepotStatus{domain.DepotRejected}},
	ActionSubmitPayment:  {actor: domain.ActorDriver, from: domain.DepotPendingPayment, path: []domain.DepotStatus{domain.DepotPendingPayment}, evidence: true},
	ActionVerifyPayment:  {actor: domain.ActorSupplier, from: domain.DepotPendingPayment, path: []domain.DepotStatus{domain.DepotPaid}},
	ActionDisputePayment: {actor: domain.ActorSupplier, from: domain.DepotPendingPayment, path: []domain.DepotStatus{domain.DepotPendingPayment}},
	ActionSupplierSign:   {actor: domain.ActorSupplier, from: domain.DepotPaid, path: []domain.DepotStatus{domain.DepotReadyForPickup}, evidence: true},
	ActionRelease:        {actor: domain.ActorSupplier, from: domain.DepotReadyForPickup, path: []domain.DepotStatus{domain.DepotAwaitingDriverSignature}},
	ActionDriverSign:     {actor: domain.ActorDriver, from: domain.DepotAwaitingDriverSignature, path: []domain.DepotStatus{domain.DepotReleased, domain.DepotCompleted}, evidence: true},
}

func (a Action) Valid() bool {
	_, ok := steps[a]
	return ok
}

type TransitionCommand struct {
	OrderID types.ID
	Actor   domain.Actor
	Action  Action
	// EvidenceRef is the opaque reference to a payment proof or signature artifact.
	EvidenceRef     string
	Reason          string
	ExpectedVersion *int
}
