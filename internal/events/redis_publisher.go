package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"stayfinder/internal/booking"
)

// RedisPublisher delivers booking events to a Redis stream and keeps the
// latest status per booking in a hash for cheap lookups by notification
// consumers.
type RedisPublisher struct {
	client    RedisPipelineClient
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// RedisPipelineClient is the minimal client surface used by RedisPublisher.
type RedisPipelineClient interface {
	Pipeline() RedisPipeliner
}

// RedisPipeliner is the subset of commands used within a pipeline.
type RedisPipeliner interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Exec(ctx context.Context) ([]redis.Cmder, error)
}

// NewRedisPublisher constructs a Redis-backed booking event publisher.
func NewRedisPublisher(client RedisPipelineClient, stream string, ttl time.Duration, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = "booking_events"
	}
	return &RedisPublisher{
		client:    client,
		stream:    stream,
		keyPrefix: "booking:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

// Publish writes the latest status hash and appends to the event stream in
// one pipeline. Delivery is at-least-once; consumers dedupe on
// (booking id, status).
func (r *RedisPublisher) Publish(ctx context.Context, ev booking.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := r.keyPrefix + ev.BookingID
	at := ev.At.UTC().Format(time.RFC3339Nano)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"booking_id": ev.BookingID,
		"status":     string(ev.Status),
		"reason":     ev.Reason,
		"alert":      ev.Alert,
		"at":         at,
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"id":         ev.ID,
			"booking_id": ev.BookingID,
			"status":     string(ev.Status),
			"reason":     ev.Reason,
			"alert":      ev.Alert,
			"at":         at,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)

	_, err := pipe.Exec(ctx)
	return err
}
