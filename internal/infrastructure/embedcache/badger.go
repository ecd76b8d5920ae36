package embedcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"SafeMap/internal/ports"
	"SafeMap/pkg/logger"
)

// BadgerConfig configures the local embedding cache.
type BadgerConfig struct {
	// Path is ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// BadgerCache is an embedded on-disk cache.
type BadgerCache struct {
	db *badger.DB
}

var _ ports.EmbeddingCache = (*BadgerCache)(nil)

// OpenBadger opens the database described by cfg.
func OpenBadger(cfg BadgerConfig) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(logger.New(cfg.Logger, "badger"))
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

// Get implements ports.EmbeddingCache.
func (c *BadgerCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get %s: %w", key, err)
	}

	vec, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set implements ports.EmbeddingCache.
func (c *BadgerCache) Set(_ context.Context, key string, vector []float32) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encode(vector))
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// Close releases the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
