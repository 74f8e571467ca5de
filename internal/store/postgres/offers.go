package postgres

import (
	"context"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

const offerColumns = `id, order_id, driver_id, status, round, attempt, created_at, expires_at, resolved_at`

func (s *Store) CreateOffer(ctx context.Context, of *domain.Offer) error {
	_, err := s.q.Exec(ctx, `
        INSERT INTO dispatch_offers (`+offerColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(of.ID), string(of.OrderID), string(of.DriverID), string(of.Status),
		of.Round, of.Attempt, of.CreatedAt, of.ExpiresAt, of.ResolvedAt,
	)
	return mapWriteErr(err, "create offer for order "+string(of.OrderID))
}

func (s *Store) GetOffer(ctx context.Context, id types.ID) (*domain.Offer, error) {
	row := s.q.QueryRow(ctx, `SELECT `+offerColumns+` FROM dispatch_offers WHERE id = $1`, string(id))
	of, err := scanOffer(row)
	if err != nil {
		return nil, notFound(err, "offer "+string(id))
	}
	return of, nil
}

func (s *Store) PendingOffer(ctx context.Context, orderID types.ID) (*domain.Offer, error) {
	row := s.q.QueryRow(ctx, `SELECT `+offerColumns+` FROM dispatch_offers
        WHERE order_id = $1 AND status = 'pending'`, string(orderID))
	of, err := scanOffer(row)
	if err != nil {
		return nil, notFound(err, "pending offer for order "+string(orderID))
	}
	return of, nil
}

func (s *Store) ListOffers(ctx context.Context, orderID types.ID) ([]*domain.Offer, error) {
	return s.queryOffers(ctx, `SELECT `+offerColumns+` FROM dispatch_offers
        WHERE order_id = $1 ORDER BY round, attempt, created_at`, string(orderID))
}

func (s *Store) ResolveOffer(ctx context.Context, id types.ID, to domain.OfferStatus, at time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
        UPDATE dispatch_offers
        SET status = $1, resolved_at = $2
        WHERE id = $3 AND status = 'pending'`,
		string(to), at, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListDueOffers(ctx context.Context, now time.Time, limit int) ([]*domain.Offer, error) {
	return s.queryOffers(ctx, `SELECT `+offerColumns+` FROM dispatch_offers
        WHERE status = 'pending' AND expires_at <= $1
        ORDER BY expires_at
        LIMIT $2`, now, limitOrAll(limit))
}

func (s *Store) ListPendingOffers(ctx context.Context, limit int) ([]*domain.Offer, error) {
	return s.queryOffers(ctx, `SELECT `+offerColumns+` FROM dispatch_offers
        WHERE status = 'pending'
        ORDER BY expires_at
        LIMIT $1`, limitOrAll(limit))
}

func (s *Store) ListPendingOffersForDriver(ctx context.Context, driverID types.ID) ([]*domain.Offer, error) {
	return s.queryOffers(ctx, `SELECT `+offerColumns+` FROM dispatch_offers
        WHERE status = 'pending' AND driver_id = $1
        ORDER BY created_at`, string(driverID))
}

func (s *Store) queryOffers(ctx context.Context, sql string, args ...any) ([]*domain.Offer, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Offer
	for rows.Next() {
		of, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, of)
	}
	return out, rows.Err()
}

func scanOffer(row rowScanner) (*domain.Offer, error) {
	var of domain.Offer
	var id, orderID, driverID, status string
	if err := row.Scan(&id, &orderID, &driverID, &status, &of.Round, &of.Attempt, &of.CreatedAt, &of.ExpiresAt, &of.ResolvedAt); err != nil {
		return nil, err
	}
	of.ID = types.ID(id)
	of.OrderID = types.ID(orderID)
	of.DriverID = types.ID(driverID)
	of.Status = domain.OfferStatus(status)
	return &of, nil
}

// limitOrAll maps "no limit" to a value Postgres accepts in LIMIT.
func limitOrAll(limit int) int64 {
	if limit <= 0 {
		return 1 << 31
	}
	return int64(limit)
}
