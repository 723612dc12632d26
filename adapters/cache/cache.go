// Package cache decorates an Embedding port with a content-hash-keyed
// Redis cache, so re-ingesting an unchanged chunk (or re-embedding an
// identical query string) skips the embedding call entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goreason/manuals/ports"
)

const keyPrefix = "manuals:embedding:"

// EmbeddingCache wraps a ports.Embedding with a Redis-backed cache keyed
// by the SHA-256 of the embedded text.
type EmbeddingCache struct {
	inner   ports.Embedding
	client  *redis.Client
	ttl     time.Duration
	lastErr string
}

// New wraps inner with a Redis cache. ttl <= 0 means entries never
// expire.
func New(inner ports.Embedding, client *redis.Client, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{inner: inner, client: client, ttl: ttl}
}

// EmbedText implements ports.Embedding: a cache hit returns the stored
// vector without calling inner; a miss embeds via inner and stores the
// result before returning it.
func (e *EmbeddingCache) EmbedText(ctx context.Context, text string) ([]float64, error) {
	key := keyPrefix + contentHash(text)

	if raw, err := e.client.Get(ctx, key).Result(); err == nil {
		vec := decodeVector(raw)
		if vec != nil {
			e.lastErr = ""
			return vec, nil
		}
	}

	vec, err := e.inner.EmbedText(ctx, text)
	if err != nil {
		e.lastErr = e.inner.LastError()
		return nil, err
	}

	if err := e.client.Set(ctx, key, encodeVector(vec), e.ttl).Err(); err != nil {
		// A cache-write failure never fails the embedding call; the
		// vector is still usable, just not persisted for next time.
		e.lastErr = fmt.Sprintf("embedding cache write failed: %v", err)
	} else {
		e.lastErr = ""
	}
	return vec, nil
}

// LastError implements ports.Embedding.
func (e *EmbeddingCache) LastError() string {
	return e.lastErr
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func encodeVector(v []float64) string {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return string(buf)
}

func decodeVector(raw string) []float64 {
	if len(raw)%8 != 0 || len(raw) == 0 {
		return nil
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		bits := binary.LittleEndian.Uint64([]byte(raw[i*8 : i*8+8]))
		out[i] = math.Float64frombits(bits)
	}
	return out
}
