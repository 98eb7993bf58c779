package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "rules:version"

// Cache keeps rule snapshots in Redis under a version counter bumped on every edit.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the snapshot key from the table fingerprint and version.
func (c *Cache) BuildKey(ctx context.Context, fingerprint string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{"rules", "snapshot", fingerprint, strconv.FormatInt(ver, 10)}, ":"), nil
}

// Fetch loads the cached rules at key or populates them using loader. hit reports
// whether the value came from Redis.
func (c *Cache) Fetch(ctx context.Context, key string, loader func(context.Context) ([]Rule, error)) (rules []Rule, hit bool, err error) {
	if loader == nil {
		return nil, false, errors.New("rules cache: loader required")
	}
	if c == nil || c.client == nil {
		rules, err := loader(ctx)
		return rules, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if err := json.Unmarshal(payload, &rules); err == nil {
			return rules, true, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("rules cache: get: %w", err)
	}
	rules, err = loader(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return nil, false, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, false, fmt.Errorf("rules cache: set: %w", err)
	}
	return rules, false, nil
}

// Bump invalidates cached snapshots by incrementing the version. Every instance
// reads the version on each lookup, so no notification is needed.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
