package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"stayfinder/cmd/server/config"
	"stayfinder/internal/booking"
	"stayfinder/internal/events"
	"stayfinder/internal/observability"
	"stayfinder/internal/realtime"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// buildEventPublisher assembles the booking event fanout: metrics counters
// and the websocket hub always; the Redis stream when REDIS_URL is set; the
// local journal when BOOKING_JOURNAL_PATH is set.
func buildEventPublisher(ctx context.Context, hub *realtime.Hub, metrics *observability.Metrics) (booking.EventPublisher, func(), error) {
	targets := []booking.EventPublisher{
		observability.NewEventRecorder(metrics),
		realtime.NewHubPublisher(hub),
	}
	var closers []func()

	if strings.TrimSpace(os.Getenv("REDIS_URL")) != "" {
		publisher, closeRedis, err := buildRedisPublisher(ctx)
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, publisher)
		closers = append(closers, closeRedis)
	} else {
		log.Println("REDIS_URL not set, booking event stream disabled")
	}

	if path := strings.TrimSpace(os.Getenv("BOOKING_JOURNAL_PATH")); path != "" {
		journal, err := events.NewJournal(path)
		if err != nil {
			for _, closer := range closers {
				closer()
			}
			return nil, nil, err
		}
		targets = append(targets, journal)
		closers = append(closers, func() {
			if err := journal.Close(); err != nil {
				log.Printf("close event journal: %v", err)
			}
		})
	}

	cleanup := func() {
		for _, closer := range closers {
			closer()
		}
	}
	return booking.NewFanoutPublisher(targets...), cleanup, nil
}

func buildRedisPublisher(ctx context.Context) (booking.EventPublisher, func(), error) {
	cfg, err := config.LoadRedis()
	if err != nil {
		return nil, nil, err
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	pingCtx := ctx
	if pingCtx == nil {
		pingCtx = context.Background()
	}
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(pingCtx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	publisher := events.NewRedisPublisher(redisClientAdapter{client: client}, cfg.Stream, cfg.StatusTTL, cfg.StreamMaxLen)
	closeRedis := func() {
		if err := client.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
	return publisher, closeRedis, nil
}

type redisClientAdapter struct {
	client *redis.Client
}

func (a redisClientAdapter) Pipeline() events.RedisPipeliner {
	return redisPipelineAdapter{pipe: a.client.Pipeline()}
}

type redisPipelineAdapter struct {
	pipe redis.Pipeliner
}

func (p redisPipelineAdapter) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	return p.pipe.HSet(ctx, key, values...)
}

func (p redisPipelineAdapter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return p.pipe.Expire(ctx, key, expiration)
}

func (p redisPipelineAdapter) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	return p.pipe.XAdd(ctx, a)
}

func (p redisPipelineAdapter) Exec(ctx context.Context) ([]redis.Cmder, error) {
	return p.pipe.Exec(ctx)
}
