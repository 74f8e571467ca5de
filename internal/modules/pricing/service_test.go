package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

type fixedDistance struct {
	km  float64
	err error
}

func (f fixedDistance) DistanceKm(context.Context, types.Point, types.Point) (float64, error) {
	return f.km, f.err
}

func TestService_Quote(t *testing.T) {
	rates := StaticRates{"diesel": 2100, "petrol_95": 2347}
	pickup := types.Point{Lat: -26.2041, Lng: 28.0473}
	dropoff := types.Point{Lat: -26.1076, Lng: 28.0567}

	tests := []struct {
		name      string
		fuel      string
		litres    string
		tariff    Tariff
		km        float64
		wantPrice domain.Price
	}{
		{
			name:      "500 litres diesel totals 11070.50",
			fuel:      "diesel",
			litres:    "500",
			tariff:    Tariff{DeliveryBaseCents: 35000, ServiceBasisPoints: 210},
			wantPrice: domain.Price{Fuel: 1050000, Delivery: 35000, Service: 22050, Total: 1107050},
		},
		{
			name:      "fractional litres round half up",
			fuel:      "petrol_95",
			litres:    "0.5",
			tariff:    Tariff{},
			wantPrice: domain.Price{Fuel: 1174, Total: 1174}, // 2347 * 0.5 = 1173.5
		},
		{
			name:      "per km delivery",
			fuel:      "diesel",
			litres:    "100",
			tariff:    Tariff{DeliveryBaseCents: 10000, DeliveryPerKmCents: 850, ServiceBasisPoints: 150},
			km:        12.4,
			wantPrice: domain.Price{Fuel: 210000, Delivery: 20540, Service: 3150, Total: 233690},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty, err := types.ParseLitres(tt.litres)
			require.NoError(t, err)
			s := NewService(rates, fixedDistance{km: tt.km}, tt.tariff, nil)

			q, err := s.Quote(context.Background(), tt.fuel, qty, pickup, dropoff)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrice, q.Price)
			assert.True(t, q.Price.Valid())
			assert.Equal(t, types.DefaultCurrency, q.Currency)
		})
	}
}

func TestService_QuoteFallsBackToStraightLine(t *testing.T) {
	s := NewService(StaticRates{"diesel": 2100}, fixedDistance{err: errors.New("quota")}, Tariff{DeliveryPerKmCents: 100}, nil)
	q, err := s.Quote(context.Background(), "diesel", 1000, types.Point{Lat: 0, Lng: 0}, types.Point{Lat: 1, Lng: 0})
	require.NoError(t, err)
	assert.InDelta(t, 111.19, q.DistanceKm, 0.1)
	assert.Equal(t, int64(11119), q.Price.Delivery)
}

func TestService_QuoteRejectsUnknownFuel(t *testing.T) {
	s := NewService(StaticRates{"diesel": 2100}, nil, Tariff{}, nil)
	_, err := s.Quote(context.Background(), "kerosene", 1000, types.Point{}, types.Point{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = s.Quote(context.Background(), "diesel", 0, types.Point{}, types.Point{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
