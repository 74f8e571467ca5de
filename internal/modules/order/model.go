// README: Order commands accepted by the order service.
package order

import (
	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

type CreateCommand struct {
	CustomerID    types.ID
	SupplierID    types.ID
	FuelType      string
	Litres        string
	Pickup        types.Point
	Dropoff       types.Point
	Mode          domain.FulfillmentMode
	PaymentMethod string
}

// TransitionCommand drives one driver or admin step. ExpectedVersion, when set,
// is the status version the caller last observed; a mismatch is a conflict.
type TransitionCommand struct {
	OrderID         types.ID
	Actor           domain.Actor
	ExpectedVersion *int
}

type CancelCommand struct {
	OrderID         types.ID
	Actor           domain.Actor
	Reason          string
	ExpectedVersion *int
}
