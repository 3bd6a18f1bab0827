// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBadVector is returned when a stored vector cannot be decoded.
var ErrBadVector = errors.New("malformed embedding vector")

// Cache stores vectors keyed by CacheKey. Providers are deterministic for
// identical input, so a hit is always safe to reuse.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key string, vec []float32) error
}

// CacheKey identifies a text embedded by a model.
func CacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// EncodeVector packs a vector as little-endian float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a vector written by EncodeVector. An empty blob
// decodes to nil.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadVector, len(b))
	}
	if len(b) == 0 {
		return nil, nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]float32, bool, error) { return nil, false, nil }
func (NopCache) Put(context.Context, string, []float32) error         { return nil }

// SQLiteCache keeps vectors in the embedding_cache table of the corpus
// database.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache creates the cache table in db if needed.
func NewSQLiteCache(ctx context.Context, db *sql.DB) (*SQLiteCache, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS embedding_cache (
		key TEXT PRIMARY KEY,
		dims INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

// Get implements Cache.
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT vector FROM embedding_cache WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	v, err := DecodeVector(blob)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put implements Cache.
func (c *SQLiteCache) Put(ctx context.Context, key string, vec []float32) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (key, dims, vector, created_at) VALUES (?, ?, ?, ?)`,
		key, len(vec), EncodeVector(vec), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// RedisCache shares vectors between machines running batches against the
// same model.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps client. Keys are stored under prefix; a zero ttl keeps
// entries forever.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading redis cache: %w", err)
	}
	v, err := DecodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key string, vec []float32) error {
	if err := c.client.Set(ctx, c.prefix+key, EncodeVector(vec), c.ttl).Err(); err != nil {
		return fmt.Errorf("writing redis cache: %w", err)
	}
	return nil
}
