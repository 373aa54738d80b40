package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RelayChannel is the Redis pub/sub channel carrying session events.
const RelayChannel = "gallery:events"

// relayClient is the part of a Redis client the relay needs.
type relayClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisRelay publishes events through Redis so that every instance's Hub
// sees them, including the publishing one.
type RedisRelay struct {
	client relayClient
	hub    *Hub
	logger *slog.Logger
}

// NewRedisRelay creates a relay feeding hub from Redis.
func NewRedisRelay(client relayClient, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, logger: logger}
}

// Publish sends ev to Redis. Local delivery happens when the message comes
// back through Run, so events are not delivered twice.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, RelayChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Run forwards Redis messages to the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, RelayChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", RelayChannel, err)
	}

	return r.forward(ctx, sub.Channel())
}

func (r *RedisRelay) forward(ctx context.Context, ch <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("dropping malformed session event", slog.String("error", err.Error()))
				continue
			}
			r.hub.Deliver(ev)
		}
	}
}
