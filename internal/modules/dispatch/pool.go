// README: Driver availability pool backed by Redis GEO.
package dispatch

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

const (
	driverGeoKey  = "dispatch:drivers:available"
	driverSeenKey = "dispatch:drivers:seen"
)

// Pool ranks available drivers by distance from the order's pickup point.
type Pool struct {
	redis    *redis.Client
	radiusKm float64
	limit    int
}

func NewPool(client *redis.Client, radiusKm float64, limit int) *Pool {
	return &Pool{redis: client, radiusKm: radiusKm, limit: limit}
}

func (p *Pool) SetAvailable(ctx context.Context, driverID types.ID, at types.Point) error {
	pipe := p.redis.TxPipeline()
	pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: at.Lng,
		Latitude:  at.Lat,
	})
	pipe.HSet(ctx, driverSeenKey, string(driverID), time.Now().Unix())
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Pool) SetUnavailable(ctx context.Context, driverID types.ID) error {
	pipe := p.redis.TxPipeline()
	pipe.ZRem(ctx, driverGeoKey, string(driverID))
	pipe.HDel(ctx, driverSeenKey, string(driverID))
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Pool) Nearby(ctx context.Context, at types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := p.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  at.Lng,
		Latitude:   at.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
		Count:      p.limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

func (p *Pool) Candidates(ctx context.Context, o *domain.Order) ([]types.ID, error) {
	return p.Nearby(ctx, o.Pickup, p.radiusKm)
}

// PruneStale drops drivers whose last location update is older than maxAge.
func (p *Pool) PruneStale(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	seen, err := p.redis.HGetAll(ctx, driverSeenKey).Result()
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-maxAge).Unix()
	var stale []string
	for id, ts := range seen {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil || sec < cutoff {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	members := make([]interface{}, len(stale))
	for i, id := range stale {
		members[i] = id
	}
	pipe := p.redis.TxPipeline()
	pipe.ZRem(ctx, driverGeoKey, members...)
	pipe.HDel(ctx, driverSeenKey, stale...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(stale), nil
}
