package scheduling

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/autoshine/autoshine/internal/platform/cache"
	"github.com/autoshine/autoshine/internal/platform/db"
)

// CachedRuleRepository keeps each shop's rule list in a cache.Store. Every
// write through it drops the shop's entry. A failing cache is logged and
// bypassed; the inner repository stays the source of truth.
//
// Each key carries a write generation. A List that loaded from the inner
// repository while a write went through drops what it cached, so a stale
// list never outlives the write that replaced it.
type CachedRuleRepository struct {
	inner  RuleRepository
	store  cache.Store
	logger zerolog.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedRuleRepository(inner RuleRepository, store cache.Store, logger zerolog.Logger) *CachedRuleRepository {
	return &CachedRuleRepository{
		inner:       inner,
		store:       store,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

func (c *CachedRuleRepository) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key]
}

func (c *CachedRuleRepository) bump(key string) {
	c.mu.Lock()
	c.generations[key]++
	c.mu.Unlock()
}

func rulesKey(ctx context.Context) string {
	tenant := db.TenantFromContext(ctx)
	if tenant == "" {
		tenant = "default"
	}
	return "rules:" + tenant
}

func (c *CachedRuleRepository) List(ctx context.Context) ([]Rule, error) {
	key := rulesKey(ctx)
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("rules cache read failed")
	}
	if ok {
		var rules []Rule
		decodeErr := json.Unmarshal(data, &rules)
		if decodeErr == nil {
			return rules, nil
		}
		c.logger.Warn().Err(decodeErr).Str("key", key).Msg("discarding undecodable rules cache entry")
	}

	gen := c.generation(key)
	rules, err := c.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rules); err == nil {
		if err := c.store.Set(ctx, key, data); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("rules cache write failed")
		}
		if c.generation(key) != gen {
			c.logger.Debug().Str("key", key).Msg("rules changed while loading, dropping cached list")
			c.drop(ctx, key)
		}
	}
	return rules, nil
}

func (c *CachedRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	return c.inner.GetByID(ctx, id)
}

func (c *CachedRuleRepository) Create(ctx context.Context, r *Rule) error {
	defer c.invalidate(ctx)
	return c.inner.Create(ctx, r)
}

func (c *CachedRuleRepository) Update(ctx context.Context, r *Rule) error {
	defer c.invalidate(ctx)
	return c.inner.Update(ctx, r)
}

func (c *CachedRuleRepository) invalidate(ctx context.Context) {
	key := rulesKey(ctx)
	c.bump(key)
	c.drop(ctx, key)
}

func (c *CachedRuleRepository) drop(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("rules cache invalidation failed")
	}
}
