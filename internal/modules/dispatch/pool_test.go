package dispatch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

// redisForTest returns a client on EASYFUEL_TEST_REDIS or a throwaway container.
func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	addr := os.Getenv("EASYFUEL_TEST_REDIS")
	if addr == "" {
		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
			},
			Started: true,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })
		endpoint, err := c.Endpoint(ctx, "")
		require.NoError(t, err)
		addr = endpoint
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 9})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.FlushDB(ctx).Err())
	return client
}

func TestPoolRanksByDistance(t *testing.T) {
	client := redisForTest(t)
	ctx := context.Background()
	p := NewPool(client, 25, 10)

	pickup := types.Point{Lat: -26.2041, Lng: 28.0473}
	require.NoError(t, p.SetAvailable(ctx, "far", types.Point{Lat: -26.10, Lng: 28.05}))
	require.NoError(t, p.SetAvailable(ctx, "near", types.Point{Lat: -26.205, Lng: 28.048}))
	require.NoError(t, p.SetAvailable(ctx, "pretoria", types.Point{Lat: -25.7479, Lng: 28.2293}))

	got, err := p.Candidates(ctx, &domain.Order{Pickup: pickup})
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"near", "far"}, got)

	require.NoError(t, p.SetUnavailable(ctx, "near"))
	got, err = p.Candidates(ctx, &domain.Order{Pickup: pickup})
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"far"}, got)
}

func TestPoolPruneStale(t *testing.T) {
	client := redisForTest(t)
	ctx := context.Background()
	p := NewPool(client, 25, 10)
	require.NoError(t, p.SetAvailable(ctx, "d1", types.Point{Lat: -26.2, Lng: 28.0}))

	n, err := p.PruneStale(ctx, time.Now(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.PruneStale(ctx, time.Now().Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := p.Nearby(ctx, types.Point{Lat: -26.2, Lng: 28.0}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
