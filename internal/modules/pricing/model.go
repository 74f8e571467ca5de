// README: Pricing rates and quote results. All money is integer cents.
package pricing

import (
	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

// Rate is the current pump price for one fuel type.
type Rate struct {
	FuelType      string
	PerLitreCents int64
	Currency      string
}

// Tariff holds the delivery and service components applied on top of fuel.
type Tariff struct {
	DeliveryBaseCents  int64
	DeliveryPerKmCents int64
	// ServiceBasisPoints is charged on the fuel component (100 bps = 1%).
	ServiceBasisPoints int64
}

type Quote struct {
	FuelType   string
	Quantity   types.Millilitres
	Price      domain.Price
	Currency   string
	DistanceKm float64
}
