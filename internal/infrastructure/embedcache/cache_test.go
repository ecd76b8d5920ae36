package embedcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls [][]string
}

func (c *countingEmbedder) Model() string { return "counting" }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls = append(c.calls, append([]string(nil), texts...))
	c.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5}
	}
	return out, nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]float32
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]float32{}} }

func (m *mapCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = vector
	return nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]float32, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Set(context.Context, string, []float32) error {
	return errors.New("cache down")
}

func TestEmbedderServesHitsWithoutInnerCall(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	e := New(inner, newMapCache(), nil)
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)

	second, err := e.Embed(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"ccc"}, inner.calls[1])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, float32(3), second[1][0])

	_, err = e.Embed(ctx, []string{"a", "ccc"})
	require.NoError(t, err)
	assert.Len(t, inner.calls, 2)
}

func TestEmbedderFallsThroughOnCacheFailure(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	vectors, err := New(inner, brokenCache{}, nil).Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5}, vectors[0])
	assert.Len(t, inner.calls, 1)
}

func TestKeyDependsOnModel(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, Key("m1", "text"), Key("m2", "text"))
	assert.Equal(t, Key("m1", "text"), Key("m1", "text"))
}

func TestKeyCarriesLengthAndWideDigest(t *testing.T) {
	t.Parallel()

	key := Key("m1", "woman assaulted near station")
	parts := strings.Split(key, ":")
	require.Len(t, parts, 4)
	assert.Equal(t, "emb", parts[0])
	assert.Equal(t, "28", parts[2])
	assert.Len(t, parts[3], 32)

	assert.NotEqual(t, Key("m1", "text"), Key("m1", "text "))
}

func TestRedisCacheRoundTrip(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	cache := NewRedisCache(client, time.Hour)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", []float32{0.25, -1, 3}))
	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -1, 3}, got)
	assert.Equal(t, time.Hour, mr.TTL("k"))
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewRedisClient(RedisConfig{})
	assert.ErrorIs(t, err, ErrEmptyAddress)
}

func TestBadgerCacheRoundTrip(t *testing.T) {
	t.Parallel()

	cache, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", []float32{1, 2}))
	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got)
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	t.Parallel()

	_, err := decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
