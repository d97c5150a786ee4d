package service

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/medreport-explainer/internal/domain"
)

// RemoteDefinitionStore is a shared second cache tier, such as Redis.
type RemoteDefinitionStore interface {
	GetDefinition(ctx context.Context, term string) (*domain.TermDefinition, bool, error)
	SetDefinition(ctx context.Context, term string, def *domain.TermDefinition, ttl time.Duration) error
}

// DefinitionCache is a bounded, TTL-limited term-definition cache with an optional remote
// tier. Remote errors are logged and treated as misses.
type DefinitionCache struct {
	memory *expirable.LRU[string, domain.TermDefinition]
	remote RemoteDefinitionStore
	ttl    time.Duration
	logger *logrus.Logger
}

// NewDefinitionCache creates a cache holding at most size entries for ttl each. remote may be nil.
func NewDefinitionCache(size int, ttl time.Duration, remote RemoteDefinitionStore, logger *logrus.Logger) *DefinitionCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DefinitionCache{
		memory: expirable.NewLRU[string, domain.TermDefinition](size, nil, ttl),
		remote: remote,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Get returns a copy of the cached definition for term.
func (c *DefinitionCache) Get(ctx context.Context, term string) (*domain.TermDefinition, bool) {
	key := cacheKey(term)
	if key == "" {
		return nil, false
	}

	if def, ok := c.memory.Get(key); ok {
		return &def, true
	}

	if c.remote == nil {
		return nil, false
	}
	def, ok, err := c.remote.GetDefinition(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("term", key).Warn("Remote definition cache lookup failed")
		return nil, false
	}
	if !ok || def == nil {
		return nil, false
	}
	c.memory.Add(key, *def)
	cp := *def
	return &cp, true
}

// Set stores def under term in every tier.
func (c *DefinitionCache) Set(ctx context.Context, term string, def *domain.TermDefinition) {
	key := cacheKey(term)
	if key == "" || def == nil {
		return
	}
	c.memory.Add(key, *def)

	if c.remote == nil {
		return
	}
	if err := c.remote.SetDefinition(ctx, key, def, c.ttl); err != nil {
		c.logger.WithError(err).WithField("term", key).Warn("Remote definition cache write failed")
	}
}

// Len returns the number of in-memory entries.
func (c *DefinitionCache) Len() int {
	return c.memory.Len()
}
