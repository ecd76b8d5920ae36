// Package embedcache stores embeddings by model and text hash so repeated articles skip the embedder.
package embedcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"SafeMap/internal/ports"
)

// Embedder wraps another embedder with a read-through cache.
type Embedder struct {
	inner  ports.Embedder
	cache  ports.EmbeddingCache
	logger *slog.Logger
}

var _ ports.Embedder = (*Embedder)(nil)

// New wraps inner with cache. Cache errors are logged and never fail an embedding call.
func New(inner ports.Embedder, cache ports.EmbeddingCache, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{inner: inner, cache: cache, logger: logger}
}

// Model implements ports.Embedder.
func (e *Embedder) Model() string { return e.inner.Model() }

// Embed serves cached vectors and sends only the misses to the inner embedder.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	model := e.inner.Model()

	var (
		missTexts []string
		missSlots []int
	)
	for i, text := range texts {
		vec, ok, err := e.cache.Get(ctx, Key(model, text))
		if err != nil {
			e.logger.Warn("embedding cache read failed", "error", err)
		}
		if ok && err == nil {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missSlots = append(missSlots, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vectors), len(missTexts))
	}

	for k, vec := range vectors {
		out[missSlots[k]] = vec
		if err := e.cache.Set(ctx, Key(model, missTexts[k]), vec); err != nil {
			e.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	e.logger.Debug("embedding cache", "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return out, nil
}

// keySeed seeds the second digest so keys carry 128 bits of hash.
const keySeed = 0x9e3779b97f4a7c15

// Key identifies a text under a model by its length and two independent xxhash digests.
func Key(model, text string) string {
	d := xxhash.NewWithSeed(keySeed)
	_, _ = d.WriteString(text)
	return "emb:" + model + ":" + strconv.Itoa(len(text)) + ":" +
		fmt.Sprintf("%016x%016x", xxhash.Sum64String(text), d.Sum64())
}

func encode(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decode(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("decode embedding: %d bytes is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
