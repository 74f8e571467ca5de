// README: Fuel price sources: PostgreSQL table or static configuration.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

type Store struct {
	db       *pgxpool.Pool
	fallback RateSource
}

// NewStore reads fuel_prices and falls back to the given source for fuel types without a row.
func NewStore(db *pgxpool.Pool, fallback RateSource) *Store {
	return &Store{db: db, fallback: fallback}
}

func (s *Store) GetRate(ctx context.Context, fuelType string) (Rate, error) {
	r := Rate{FuelType: fuelType}
	err := s.db.QueryRow(ctx, `
        SELECT price_per_litre_cents, currency
        FROM fuel_prices
        WHERE fuel_type = $1`, fuelType).Scan(&r.PerLitreCents, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) && s.fallback != nil {
		return s.fallback.GetRate(ctx, fuelType)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, fmt.Errorf("fuel type %q: %w", fuelType, domain.ErrBadRequest)
	}
	if err != nil {
		return Rate{}, err
	}
	return r, nil
}

// StaticRates serves prices from configuration.
type StaticRates map[string]int64

func (m StaticRates) GetRate(_ context.Context, fuelType string) (Rate, error) {
	cents, ok := m[fuelType]
	if !ok {
		return Rate{}, fmt.Errorf("fuel type %q: %w", fuelType, domain.ErrBadRequest)
	}
	return Rate{FuelType: fuelType, PerLitreCents: cents, Currency: types.DefaultCurrency}, nil
}
