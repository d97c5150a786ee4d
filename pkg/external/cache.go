package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medreport-explainer/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheKeyPrefix namespaces term definitions in a shared Redis.
const DefaultCacheKeyPrefix = "medreport:term:"

// CacheClient wraps Redis client with caching functionality for term definitions
type CacheClient struct {
	redis      *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client and verifies the connection.
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCacheClientFromRedis(client, config.KeyPrefix, config.TTL), nil
}

// NewCacheClientFromRedis wraps an existing Redis client.
func NewCacheClientFromRedis(client *redis.Client, prefix string, ttl time.Duration) *CacheClient {
	if prefix == "" {
		prefix = DefaultCacheKeyPrefix
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CacheClient{redis: client, prefix: prefix, defaultTTL: ttl}
}

// CachedDefinition represents a cached term definition with metadata
type CachedDefinition struct {
	Data      *domain.TermDefinition `json:"data"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// GetDefinition retrieves a cached definition. A miss returns (nil, false, nil).
func (c *CacheClient) GetDefinition(ctx context.Context, term string) (*domain.TermDefinition, bool, error) {
	key := c.key(term)

	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get definition cache: %w", err)
	}

	var cached CachedDefinition
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Data == nil {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetDefinition caches a definition. A zero ttl uses the client default.
func (c *CacheClient) SetDefinition(ctx context.Context, term string, def *domain.TermDefinition, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	cached := CachedDefinition{
		Data:      def,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal definition cache data: %w", err)
	}

	return c.redis.Set(ctx, c.key(term), jsonData, ttl).Err()
}

// Ping checks Redis reachability.
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

func (c *CacheClient) key(term string) string {
	return c.prefix + strings.ToLower(strings.TrimSpace(term))
}
