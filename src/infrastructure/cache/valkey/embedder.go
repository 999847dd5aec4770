package valkey

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/log"
	"github.com/vibeee34/chatbot-gemini/src/metrics"
)

const cacheKeyPrefix = "chatbot:emb_cache:"

type store interface {
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	SetMany(ctx context.Context, keys []string, values [][]byte) error
}

// CachedProvider caches embeddings per model and text. Cache failures are
// logged and fall through to the wrapped provider.
type CachedProvider struct {
	inner rag.EmbeddingProvider
	store store
}

func NewCachedProvider(inner rag.EmbeddingProvider, s store) *CachedProvider {
	return &CachedProvider{inner: inner, store: s}
}

// Close releases the cache connection when the store holds one.
func (c *CachedProvider) Close() error {
	if cl, ok := c.store.(interface{ Close() }); ok {
		cl.Close()
	}
	return nil
}

func (c *CachedProvider) ModelName() string {
	return c.inner.ModelName()
}

func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
	}

	out := make([][]float32, len(texts))
	cached, err := c.store.GetMany(ctx, keys)
	if err != nil {
		log.Error(err, "Failed to read cached embeddings", "count", len(keys))
		cached = nil
	}

	var missing []int
	for i := range texts {
		if i < len(cached) && len(cached[i]) > 0 {
			vec, err := bytesToVector(cached[i])
			if err == nil {
				out[i] = vec
				continue
			}
			log.Error(err, "Failed to parse cached embedding", "key", keys[i])
		}
		missing = append(missing, i)
	}

	metrics.EmbeddingCacheTotal.WithLabelValues("hit").Add(float64(len(texts) - len(missing)))
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Add(float64(len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	vecs, err := c.inner.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", rag.ErrVectorCountMismatch, len(vecs), len(batch))
	}

	putKeys := make([]string, len(missing))
	putValues := make([][]byte, len(missing))
	for j, i := range missing {
		out[i] = vecs[j]
		putKeys[j] = keys[i]
		putValues[j] = vectorToCacheBytes(vecs[j])
	}
	if err := c.store.SetMany(ctx, putKeys, putValues); err != nil {
		log.Error(err, "Failed to cache embeddings", "count", len(putKeys))
	}
	return out, nil
}

func (c *CachedProvider) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
