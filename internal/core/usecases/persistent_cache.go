package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/core/ports"
	"github.com/samirrijal/studyspot/internal/pkg/metrics"
)

// PersistentCache stores JSON values in a durable key/value store. It backs
// both the offline data cache and the action queue.
//
// Reads never fail: a missing key or a storage error reports "not found"
// (errors are logged). Writes return storage errors to the caller.
type PersistentCache struct {
	store  ports.KeyValueStore
	prefix string
	logger *slog.Logger
}

// NewPersistentCache creates a PersistentCache namespacing keys with prefix.
func NewPersistentCache(store ports.KeyValueStore, prefix string) *PersistentCache {
	return &PersistentCache{store: store, prefix: prefix, logger: slog.Default().With("component", "persistent_cache")}
}

func (c *PersistentCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get decodes the value stored under key into dst and reports whether it was found.
func (c *PersistentCache) Get(ctx context.Context, key string, dst any) bool {
	found, err := c.Lookup(ctx, key, dst)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	return found
}

// Lookup is Get for callers that must tell a missing key from a storage failure.
func (c *PersistentCache) Lookup(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.store == nil {
		return false, nil
	}
	data, err := c.store.Get(ctx, c.key(key))
	if errors.Is(err, domain.ErrKeyNotFound) {
		metrics.CacheMisses.WithLabelValues(operationOf(key)).Inc()
		return false, nil
	}
	if err != nil {
		metrics.CacheMisses.WithLabelValues(operationOf(key)).Inc()
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheMisses.WithLabelValues(operationOf(key)).Inc()
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	metrics.CacheHits.WithLabelValues(operationOf(key)).Inc()
	return true, nil
}

// Set stores value under key without expiry.
func (c *PersistentCache) Set(ctx context.Context, key string, value any) error {
	return c.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores value under key for ttl (zero means no expiry).
func (c *PersistentCache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return errors.New("persistent cache not configured")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, c.key(key), data, ttl); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (c *PersistentCache) Delete(ctx context.Context, key string) error {
	if c == nil || c.store == nil {
		return errors.New("persistent cache not configured")
	}
	if err := c.store.Delete(ctx, c.key(key)); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// operationOf keeps metric label cardinality low: "seats:floor:3" -> "seats".
func operationOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
