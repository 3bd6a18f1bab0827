// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/analog-engine/internal/httputil"
	"github.com/pdiddy/analog-engine/internal/metrics"
	"github.com/pdiddy/analog-engine/pkg/types"
)

func init() {
	backoffBase = time.Millisecond
	httputil.RetryBaseDelay = time.Millisecond
}

// fakeEmbedder returns a vector derived from the text length and records
// every call. failures makes the first N calls fail.
type fakeEmbedder struct {
	mu       sync.Mutex
	dims     int
	failures int
	calls    [][]string
	failAll  bool
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.failAll || len(f.calls) <= f.failures {
		return nil, errors.New("connection refused")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, f.dims)
		v[0] = float64(len(t))
		out[i] = v
	}
	return out, nil
}

func newService(emb embedding.Embedder, opts Options) *Service {
	if opts.Dimensions == 0 {
		opts.Dimensions = 3
	}
	opts.Model = "test-model"
	return New(emb, opts)
}

func TestEmbed_BatchesAndPreservesOrder(t *testing.T) {
	fake := &fakeEmbedder{dims: 3}
	svc := newService(fake, Options{BatchSize: 2})

	vecs, err := svc.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
		assert.Len(t, v, 3)
	}
	assert.Len(t, fake.calls, 3)
}

func TestEmbed_RetriesTransientFailures(t *testing.T) {
	fake := &fakeEmbedder{dims: 3, failures: 2}
	svc := newService(fake, Options{BatchSize: 10, MaxRetries: 3})

	vecs, err := svc.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Len(t, fake.calls, 3)
}

func TestEmbed_ExhaustedRetries(t *testing.T) {
	fake := &fakeEmbedder{dims: 3, failAll: true}
	svc := newService(fake, Options{MaxRetries: 2})

	_, err := svc.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, fake.calls, 3)
}

func TestEmbed_DimensionMismatchNotRetried(t *testing.T) {
	fake := &fakeEmbedder{dims: 5}
	svc := newService(fake, Options{Dimensions: 3, MaxRetries: 3})

	_, err := svc.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrDimension)
	assert.Len(t, fake.calls, 1)
}

type memCache struct {
	m map[string][]float32
}

func (c *memCache) Get(_ context.Context, k string) ([]float32, bool, error) {
	v, ok := c.m[k]
	return v, ok, nil
}

func (c *memCache) Put(_ context.Context, k string, v []float32) error {
	c.m[k] = v
	return nil
}

func TestEmbed_UsesCache(t *testing.T) {
	fake := &fakeEmbedder{dims: 3}
	cache := &memCache{m: map[string][]float32{}}
	svc := newService(fake, Options{Cache: cache})

	_, err := svc.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	vecs, err := svc.Embed(context.Background(), []string{"two", "three"})
	require.NoError(t, err)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"three"}, fake.calls[1])
	assert.Equal(t, float32(3), vecs[0][0])
	assert.Len(t, cache.m, 3)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("m", "text"), CacheKey("m", "text"))
	assert.NotEqual(t, CacheKey("m1", "text"), CacheKey("m2", "text"))
	assert.NotEqual(t, CacheKey("ab", "c"), CacheKey("a", "bc"))
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadVector)
}

func TestSQLiteCache(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer db.Close()

	c, err := NewSQLiteCache(ctx, db)
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "k", []float32{1, 2}))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("ANALOG_ENGINE_TEST_REDIS")
	if addr == "" {
		t.Skip("ANALOG_ENGINE_TEST_REDIS not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	c := NewRedisCache(client, "analog-engine-test:", time.Minute)
	key := CacheKey("test", t.Name())
	require.NoError(t, c.Put(ctx, key, []float32{4, 5}))
	v, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{4, 5}, v)

	_, ok, err = c.Get(ctx, CacheKey("test", "missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbedMechanisms(t *testing.T) {
	fp := true
	mechs := []*types.Mechanism{
		{ID: 1, Description: "alpha"},
		{ID: 2, Description: "beta", Embedding: []float32{1, 0, 0}},
		{ID: 3, Description: "gamma", FalsePositive: &fp},
		{ID: 4, Description: "raw", StructuralDescription: "structural"},
	}
	fake := &fakeEmbedder{dims: 3}
	m := metrics.NewBatch()
	svc := newService(fake, Options{Metrics: m})

	var buf bytes.Buffer
	sum, err := svc.EmbedMechanisms(context.Background(), mechs, &buf)
	require.NoError(t, err)

	assert.Equal(t, Summary{Embedded: 2, AlreadyEmbedded: 1, SkippedFalsePositive: 1}, sum)
	assert.Equal(t, 4, sum.Total())
	assert.Equal(t, float32(len("alpha")), mechs[0].Embedding[0])
	assert.Equal(t, float32(len("structural")), mechs[3].Embedding[0])
	assert.Nil(t, mechs[2].Embedding)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Embedded))
	assert.Contains(t, buf.String(), "embedded 2 mechanisms")
}

func TestEmbedMechanisms_FailedBatchLeftUnembedded(t *testing.T) {
	mechs := []*types.Mechanism{{ID: 1, Description: "a"}, {ID: 2, Description: "b"}}
	fake := &fakeEmbedder{dims: 3, failAll: true}
	m := metrics.NewBatch()
	svc := newService(fake, Options{MaxRetries: 1, Metrics: m})

	var buf bytes.Buffer
	sum, err := svc.EmbedMechanisms(context.Background(), mechs, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	assert.False(t, mechs[0].HasEmbedding())
	assert.Contains(t, buf.String(), "failed 1:")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues(metrics.ReasonEmbedFailed)))
}

func TestEmbedMechanisms_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := &fakeEmbedder{dims: 3, failAll: true}
	svc := newService(fake, Options{MaxRetries: 2})

	_, err := svc.EmbedMechanisms(ctx, []*types.Mechanism{{ID: 1, Description: "a"}}, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTEI_EmbedStrings(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/embed", r.URL.Path)
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"hello", "world"}, req.Inputs)
		_ = json.NewEncoder(w).Encode([][]float64{{0.1, 0.2}, {0.3, 0.4}})
	}))
	defer ts.Close()

	tei, err := NewTEI(TEIConfig{BaseURL: ts.URL + "/", MaxRetries: 2}, nil)
	require.NoError(t, err)

	out, err := tei.EmbedStrings(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, out)
	assert.Equal(t, 2, calls)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()
	cfg := types.DefaultPipelineConfig().Embedding

	_, err := NewProvider(ctx, cfg, nil)
	assert.NoError(t, err)

	cfg.Provider = types.ProviderOpenAI
	_, err = NewProvider(ctx, cfg, nil)
	assert.Error(t, err)

	cfg.Provider = types.ProviderTEI
	_, err = NewProvider(ctx, cfg, nil)
	assert.Error(t, err)

	cfg.Provider = "bogus"
	_, err = NewProvider(ctx, cfg, nil)
	assert.Error(t, err)
}
