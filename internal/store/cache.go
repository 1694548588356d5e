package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/BTreeMap/LeadRelay/internal/models"
)

const (
	// DefaultPromptCacheSize is the number of (tenant, kind) templates kept.
	DefaultPromptCacheSize = 256
	// DefaultPromptCacheTTL bounds how stale a cached template may become.
	DefaultPromptCacheTTL = 5 * time.Minute
)

type cachedPrompt struct {
	tpl     models.PromptTemplate
	expires time.Time
}

// CachedPrompts decorates a Store with an LRU cache in front of
// GetPromptTemplate. Only found templates are cached, so a template added
// for a new tenant is picked up on the next lookup.
type CachedPrompts struct {
	Store
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewCachedPrompts wraps s. Non-positive size or ttl fall back to defaults.
func NewCachedPrompts(s Store, size int, ttl time.Duration) (*CachedPrompts, error) {
	if size <= 0 {
		size = DefaultPromptCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultPromptCacheTTL
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt cache: %w", err)
	}
	return &CachedPrompts{Store: s, cache: cache, ttl: ttl, now: time.Now}, nil
}

func (c *CachedPrompts) GetPromptTemplate(ctx context.Context, tenantID string, kind models.PromptKind) (*models.PromptTemplate, error) {
	key := tenantID + "\x00" + string(kind)
	if v, ok := c.cache.Get(key); ok {
		entry := v.(cachedPrompt)
		if c.now().Before(entry.expires) {
			tpl := entry.tpl
			return &tpl, nil
		}
		c.cache.Remove(key)
	}
	tpl, err := c.Store.GetPromptTemplate(ctx, tenantID, kind)
	if err != nil || tpl == nil {
		return tpl, err
	}
	c.cache.Add(key, cachedPrompt{tpl: *tpl, expires: c.now().Add(c.ttl)})
	slog.Debug("CachedPrompts cached template", "tenant_id", tenantID, "kind", kind)
	return tpl, nil
}

