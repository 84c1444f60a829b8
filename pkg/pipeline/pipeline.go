// Package pipeline wires the fetch scheduler, identity resolver, schema
// builder, validator, and sink into backfill runs over registered source
// adapters.
package pipeline

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/courtdata/statpipe/pkg/cache"
	"github.com/courtdata/statpipe/pkg/config"
	"github.com/courtdata/statpipe/pkg/fetch"
	"github.com/courtdata/statpipe/pkg/identity"
	"github.com/courtdata/statpipe/pkg/logging"
	"github.com/courtdata/statpipe/pkg/ratelimit"
	"github.com/courtdata/statpipe/pkg/sink"
	"github.com/courtdata/statpipe/pkg/validate"
)

// Pipeline owns the shared machinery for one process: limiter, cache,
// scheduler, resolver, validator, and the optional sink.
type Pipeline struct {
	cfg       *config.Config
	log       zerolog.Logger
	scheduler *fetch.Scheduler
	resolver  *identity.Resolver
	validator *validate.Validator
	sink      *sink.Sink
	redis     *redis.Client
}

// New wires a pipeline from configuration. A configured redis address backs
// the cache with redis; otherwise the in-process store is used. An empty
// DuckDB path disables the sink.
func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.NewLogger("pipeline")

	var store cache.Store
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		store = cache.NewRedisStore(redisClient)
		log.Info().Str("addr", cfg.RedisAddr).Msg("cache backed by redis")
	} else {
		store = cache.NewMemoryStore()
		log.Info().Msg("cache backed by in-process store")
	}

	limiter := ratelimit.New(cfg.Limits(), logging.NewLogger("ratelimit"))
	docCache := cache.New(store, logging.NewLogger("cache"))

	scheduler, err := fetch.New(cfg.Fetch(), limiter, docCache, logging.NewLogger("fetch"))
	if err != nil {
		closeRedis(redisClient)
		return nil, err
	}

	resolver := identity.NewResolver(identity.Config{
		Threshold: cfg.SimilarityThreshold,
	}, logging.NewLogger("identity"))

	var dataSink *sink.Sink
	if cfg.DuckDBPath != "" {
		dataSink, err = sink.Open(ctx, cfg.DuckDBPath, logging.NewLogger("sink"))
		if err != nil {
			closeRedis(redisClient)
			return nil, err
		}
	}

	return &Pipeline{
		cfg:       cfg,
		log:       log,
		scheduler: scheduler,
		resolver:  resolver,
		validator: validate.New(logging.NewLogger("validate")),
		sink:      dataSink,
		redis:     redisClient,
	}, nil
}

// Close releases the redis connection and the sink.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.sink != nil {
		if err := p.sink.Close(); err != nil {
			firstErr = err
		}
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Scheduler exposes the fetch scheduler for tests and tooling.
func (p *Pipeline) Scheduler() *fetch.Scheduler { return p.scheduler }

// Sink exposes the sink; nil when no DuckDB path is configured.
func (p *Pipeline) Sink() *sink.Sink { return p.sink }

func closeRedis(c *redis.Client) {
	if c != nil {
		_ = c.Close()
	}
}
