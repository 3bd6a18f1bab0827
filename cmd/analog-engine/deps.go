// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/analog-engine/internal/audit"
	"github.com/pdiddy/analog-engine/internal/corpus"
	"github.com/pdiddy/analog-engine/internal/embed"
	"github.com/pdiddy/analog-engine/internal/lexicon"
	"github.com/pdiddy/analog-engine/internal/match"
	"github.com/pdiddy/analog-engine/internal/metrics"
	"github.com/pdiddy/analog-engine/pkg/types"
)

const redisKeyPrefix = "analog-engine:emb:"

func loadLexicon(cfg types.MatchConfig) (*lexicon.Lexicon, error) {
	if cfg.LexiconPath == "" {
		return lexicon.Default(), nil
	}
	return lexicon.Load(cfg.LexiconPath)
}

func loadStrategy(cfg types.MatchConfig) (match.ScoreStrategy, error) {
	var (
		domains *match.DomainTable
		err     error
	)
	if cfg.DomainTablePath == "" {
		domains, err = match.DefaultDomainTable()
	} else {
		domains, err = match.LoadDomainTable(cfg.DomainTablePath)
	}
	if err != nil {
		return nil, err
	}
	return match.NewMultiFactor(domains, cfg), nil
}

// openStore opens the corpus with the configured lexicon.
func openStore() (*corpus.Store, *lexicon.Lexicon, error) {
	lex, err := loadLexicon(app.cfg.Match)
	if err != nil {
		return nil, nil, err
	}
	store, err := corpus.NewStore(app.cfg.Corpus, lex, app.logger)
	if err != nil {
		return nil, nil, err
	}
	return store, lex, nil
}

func openTrail(ctx context.Context, store *corpus.Store, lex *lexicon.Lexicon) (*audit.Trail, error) {
	return audit.NewTrail(ctx, store.DB(), lex, app.logger)
}

// newEmbedService builds the configured provider and cache. The returned
// close function releases the cache connection.
func newEmbedService(ctx context.Context, store *corpus.Store, m *metrics.Batch) (*embed.Service, func(), error) {
	cfg := app.cfg.Embedding
	provider, err := embed.NewProvider(ctx, cfg, app.logger)
	if err != nil {
		return nil, nil, err
	}

	var (
		cache   embed.Cache = embed.NopCache{}
		closeFn             = func() {}
	)
	switch cfg.Cache {
	case types.CacheSQLite:
		c, err := embed.NewSQLiteCache(ctx, store.DB())
		if err != nil {
			return nil, nil, err
		}
		cache = c
	case types.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		cache = embed.NewRedisCache(client, redisKeyPrefix, 0)
		closeFn = func() { client.Close() }
	}

	svc := embed.New(provider, embed.Options{
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.Timeout,
		Cache:      cache,
		Metrics:    m,
		Logger:     app.logger,
	})
	return svc, closeFn, nil
}
