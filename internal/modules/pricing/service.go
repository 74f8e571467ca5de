// README: Pricing service computes order prices server side.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"easyfuel/internal/domain"
	"easyfuel/internal/maps"
	"easyfuel/internal/types"
)

type RateSource interface {
	GetRate(ctx context.Context, fuelType string) (Rate, error)
}

type Distancer interface {
	DistanceKm(ctx context.Context, from, to types.Point) (float64, error)
}

type Service struct {
	rates    RateSource
	distance Distancer
	tariff   Tariff
	logger   *slog.Logger
}

func NewService(rates RateSource, distance Distancer, tariff Tariff, logger *slog.Logger) *Service {
	if distance == nil {
		distance = maps.StraightLine{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{rates: rates, distance: distance, tariff: tariff, logger: logger.With("component", "pricing")}
}

func (s *Service) Quote(ctx context.Context, fuelType string, qty types.Millilitres, pickup, dropoff types.Point) (Quote, error) {
	if fuelType == "" || qty <= 0 {
		return Quote{}, fmt.Errorf("quote %q %s: %w", fuelType, qty, domain.ErrBadRequest)
	}
	rate, err := s.rates.GetRate(ctx, fuelType)
	if err != nil {
		return Quote{}, err
	}

	km, err := s.distance.DistanceKm(ctx, pickup, dropoff)
	if err != nil {
		s.logger.Warn("route distance unavailable, using straight line", "err", err)
		km = maps.HaversineKm(pickup, dropoff)
	}

	fuel := FuelCents(rate.PerLitreCents, qty)
	delivery := s.tariff.DeliveryBaseCents + int64(math.Round(float64(s.tariff.DeliveryPerKmCents)*km))
	service := BasisPoints(fuel, s.tariff.ServiceBasisPoints)

	currency := rate.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	return Quote{
		FuelType:   fuelType,
		Quantity:   qty,
		Price:      domain.NewPrice(fuel, delivery, service),
		Currency:   currency,
		DistanceKm: km,
	}, nil
}

// FuelCents is price-per-litre times litres, rounded half up to the cent.
func FuelCents(perLitre int64, qty types.Millilitres) int64 {
	return (perLitre*int64(qty) + 500) / 1000
}

// BasisPoints applies bps to amount, rounded half up to the cent.
func BasisPoints(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
