package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/david/opportunity-matcher/internal/ai"
	"github.com/david/opportunity-matcher/internal/cache"
	"github.com/david/opportunity-matcher/internal/db"
	"github.com/david/opportunity-matcher/internal/ingest"
)

// openStore connects to Postgres. The caller closes the pool.
func (a *app) openStore(ctx context.Context) (*pgxpool.Pool, *db.Store, error) {
	pool, err := db.Connect(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	return pool, db.NewStore(pool), nil
}

// candidateCache wraps store with the Redis cache when Redis is enabled and
// reachable. It returns nil, and a no-op close, otherwise.
func (a *app) candidateCache(ctx context.Context, store *db.Store) (*cache.CandidateCache, func()) {
	if !a.cfg.Redis.Enabled {
		return nil, func() {}
	}
	client, err := cache.NewRedis(ctx, a.cfg.Redis)
	if err != nil {
		a.log.Warn("redis unavailable, continuing without candidate cache", zap.String("address", a.cfg.Redis.Address), zap.Error(err))
		return nil, func() {}
	}
	closeFn := func() {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.log.Debug("redis close failed", zap.Error(err))
		}
	}
	return cache.NewCandidateCache(client, store, a.cfg.Redis.TTL, a.log), closeFn
}

func (a *app) ollama() *ai.OllamaClient {
	o := a.cfg.Ollama
	return ai.NewOllamaClient(o.Host, o.EmbedModel, o.GenModel, o.Timeout)
}

// pipeline wires the ingest pipeline. withEmbeddings and withLLM enable the
// optional model steps.
func (a *app) pipeline(ctx context.Context, store *db.Store, withEmbeddings, withLLM bool) (*ingest.Pipeline, func(), error) {
	reg, err := ingest.LoadRegistry(a.cfg.Ingest.SourcesFile)
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.Ingest.RequestTimeout > 0 {
		for i := range reg.Sources {
			if reg.Sources[i].Fetch.TimeoutSeconds == 0 {
				reg.Sources[i].Fetch.TimeoutSeconds = a.cfg.Ingest.RequestTimeout
			}
		}
	}

	p := ingest.NewPipeline(store, reg, ingest.DefaultStrategyFactory(a.cfg.Ingest.UserAgent, a.log), a.log)

	llm := a.ollama()
	if withEmbeddings {
		p.Embedder = llm
	}
	if withLLM {
		p.Extractor = ai.NewExtractor(llm, a.log)
		p.Classifier = llm
	}

	cc, closeCache := a.candidateCache(ctx, store)
	if cc != nil {
		p.Cache = cc
	}
	return p, closeCache, nil
}
