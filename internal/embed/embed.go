// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed adapts an embedding provider to the pipeline.
// Implements: embed (texts → equal-length vectors in input order) with
// batched provider calls, a per-call timeout, bounded exponential backoff,
// dimension checks and a deterministic cache; and mechanism embedding that
// degrades failed batches to "unembedded" instead of failing the run.
package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/internal/metrics"
	"github.com/pdiddy/analog-engine/pkg/types"
)

// ErrDimension is returned when the provider answers with vectors of the
// wrong count or length.
var ErrDimension = errors.New("embedding dimension mismatch")

// backoffBase is the first retry delay. Tests override it.
var backoffBase = time.Second

// Options configures a Service.
type Options struct {
	Model      string
	Dimensions int
	BatchSize  int
	MaxRetries int
	// Timeout bounds each provider call.
	Timeout time.Duration
	Cache   Cache
	Metrics *metrics.Batch
	Logger  *zap.Logger
}

// Service embeds texts through an eino embedder.
type Service struct {
	emb  embedding.Embedder
	opts Options
	log  *zap.Logger
}

// New wraps emb. Zero option values fall back to the pipeline defaults.
func New(emb embedding.Embedder, opts Options) *Service {
	def := types.DefaultPipelineConfig().Embedding
	if opts.BatchSize < 1 {
		opts.BatchSize = def.BatchSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Cache == nil {
		opts.Cache = NopCache{}
	}
	return &Service{emb: emb, opts: opts, log: logging.OrNop(opts.Logger).Named("embed")}
}

// Embed returns one vector per text, in input order. Cached vectors are
// reused and only misses are sent to the provider, BatchSize texts per
// call. The first batch that still fails after retries aborts the call.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	for i, t := range texts {
		v, ok, err := s.opts.Cache.Get(ctx, CacheKey(s.opts.Model, t))
		if err != nil {
			s.log.Warn("cache read failed", zap.Error(err))
		}
		if ok && s.validDims(v) {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(missIdx); start += s.opts.BatchSize {
		idx := missIdx[start:min(start+s.opts.BatchSize, len(missIdx))]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}
		vecs, err := s.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			out[i] = vecs[j]
			if err := s.opts.Cache.Put(ctx, CacheKey(s.opts.Model, texts[i]), vecs[j]); err != nil {
				s.log.Warn("cache write failed", zap.Error(err))
			}
		}
	}
	return out, nil
}

func (s *Service) validDims(v []float32) bool {
	return len(v) > 0 && (s.opts.Dimensions == 0 || len(v) == s.opts.Dimensions)
}

// embedBatch calls the provider with retries. Dimension errors are not
// retried.
func (s *Service) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffBase << (attempt - 1)
			s.log.Warn("retrying embedding batch",
				zap.Int("size", len(texts)), zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		vecs, err := s.call(ctx, texts)
		if err == nil || errors.Is(err, ErrDimension) {
			return vecs, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embedding %d texts after %d retries: %w", len(texts), s.opts.MaxRetries, lastErr)
}

func (s *Service) call(ctx context.Context, texts []string) ([][]float32, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.emb.EmbedStrings(cctx, texts)
	if s.opts.Metrics != nil {
		s.opts.Metrics.EmbedDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", ErrDimension, len(raw), len(texts))
	}
	out := make([][]float32, len(raw))
	for i, r := range raw {
		if len(r) == 0 || (s.opts.Dimensions > 0 && len(r) != s.opts.Dimensions) {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(r), s.opts.Dimensions)
		}
		v := make([]float32, len(r))
		for j, f := range r {
			v[j] = float32(f)
		}
		out[i] = v
	}
	return out, nil
}

// Summary reports an EmbedMechanisms call.
type Summary struct {
	Embedded             int
	AlreadyEmbedded      int
	SkippedFalsePositive int
	Failed               int
}

// Total returns the number of mechanisms considered.
func (s Summary) Total() int {
	return s.Embedded + s.AlreadyEmbedded + s.SkippedFalsePositive + s.Failed
}

// EmbedMechanisms attaches embeddings to mechanisms that have none, using
// their match text. False positives are not embedded. A batch that fails
// after retries leaves its mechanisms unembedded and the run continues; only
// cancellation of ctx is returned as an error.
func (s *Service) EmbedMechanisms(ctx context.Context, mechs []*types.Mechanism, w io.Writer) (Summary, error) {
	var sum Summary
	var pending []*types.Mechanism
	for _, m := range mechs {
		switch {
		case m.HasEmbedding():
			sum.AlreadyEmbedded++
		case m.IsFalsePositive():
			sum.SkippedFalsePositive++
		default:
			pending = append(pending, m)
		}
	}

	for start := 0; start < len(pending); start += s.opts.BatchSize {
		batch := pending[start:min(start+s.opts.BatchSize, len(pending))]
		texts := make([]string, len(batch))
		for i, m := range batch {
			texts[i] = m.MatchText()
		}

		vecs, err := s.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return sum, fmt.Errorf("embedding interrupted: %w", ctx.Err())
			}
			sum.Failed += len(batch)
			if s.opts.Metrics != nil {
				s.opts.Metrics.Skipped(metrics.ReasonEmbedFailed, len(batch))
			}
			s.log.Warn("leaving batch unembedded",
				zap.Int64("first_mechanism_id", batch[0].ID), zap.Int("size", len(batch)), zap.Error(err))
			for _, m := range batch {
				fmt.Fprintf(w, "failed %d: %v\n", m.ID, err)
			}
			continue
		}
		for i, m := range batch {
			m.Embedding = vecs[i]
		}
		sum.Embedded += len(batch)
		if s.opts.Metrics != nil {
			s.opts.Metrics.Embedded.Add(float64(len(batch)))
		}
	}

	fmt.Fprintf(w, "\nembedded %d mechanisms, %d already embedded, %d false positives skipped, %d failed\n",
		sum.Embedded, sum.AlreadyEmbedded, sum.SkippedFalsePositive, sum.Failed)
	return sum, nil
}
