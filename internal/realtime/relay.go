package realtime

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const DefaultRelayChannel = "easyfuel:events"

// RedisRelay fans envelopes out to every API instance over Redis pub/sub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, channel: channel, logger: logger.With("component", "realtime.relay")}
}

func (r *RedisRelay) Publish(ctx context.Context, data []byte) error {
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run delivers every relayed message to the local hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	r.logger.Info("relay subscribed", "channel", r.channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			hub.DeliverRaw([]byte(msg.Payload))
		}
	}
}
