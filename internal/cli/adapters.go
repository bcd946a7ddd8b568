package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/crawlgraph/crawlgraph/internal/bus"
	"github.com/crawlgraph/crawlgraph/internal/config"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

// adapters bundles the four external collaborators every component is
// built from. dev mode backs all four with in-memory implementations
// (spec SPEC_FULL §C.1 "in-memory adapter used by tests and by
// `cmd/crawlgraph serve --dev`"); production mode talks to Redis,
// Postgres, Kafka, and a Bleve index on disk.
type adapters struct {
	kv         store.KV
	relational store.Relational
	index      store.Index
	publisher  bus.Publisher
	consumer   bus.Consumer
}

func buildAdapters(ctx context.Context, ep config.Endpoints) (adapters, error) {
	if devMode {
		memBus := bus.NewMemoryBus()
		return adapters{
			kv:         store.NewMemoryKV(),
			relational: store.NewMemoryRelational(),
			index:      store.NewMemoryIndex(),
			publisher:  memBus,
			consumer:   memBus,
		}, nil
	}

	redisClient := redis.NewClient(&redis.Options{Addr: ep.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return adapters{}, fmt.Errorf("connecting to redis at %s: %w", ep.RedisAddr, err)
	}

	pgPool, err := pgxpool.New(ctx, ep.PostgresDSN)
	if err != nil {
		return adapters{}, fmt.Errorf("connecting to postgres: %w", err)
	}

	bleveIndex, err := store.NewBleveIndex(ep.BleveIndexPath)
	if err != nil {
		return adapters{}, fmt.Errorf("opening bleve index at %s: %w", ep.BleveIndexPath, err)
	}

	kafkaBus := bus.NewKafkaBus(ep.KafkaBrokers)

	return adapters{
		kv:         store.NewRedisKV(redisClient),
		relational: store.NewPostgresRelational(pgPool),
		index:      bleveIndex,
		publisher:  kafkaBus,
		consumer:   kafkaBus,
	}, nil
}

func (a adapters) Close() error {
	return a.publisher.Close()
}
