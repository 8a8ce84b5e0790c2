package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/models"
)

const (
	// DefaultTTL bounds how long a served prediction stays valid.
	DefaultTTL = time.Hour

	// DefaultCooldownWindow is how long a pair that produced no provider
	// result is shielded from repeat lookups.
	DefaultCooldownWindow = 60 * time.Second

	keyPrefix = "prediction:"
)

// Store is the shared key/value backend predictions are written through to.
// services.CacheService satisfies it; tests use an in-memory fake.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ResultCache holds predictions keyed by normalized pair key, plus the
// separate cooldown sub-map for pairs that recently produced no provider
// data. Entries overwrite, never merge. The in-memory maps are the fast
// path; every write goes through the Store so restarts and other instances
// see the same state.
//
// Two kinds of positive entry exist: server predictions, valid for the cache
// TTL, and locally computed baselines, which stand in only until their pair's
// cooldown window ends and expire with it.
type ResultCache struct {
	store          Store
	ttl            time.Duration
	cooldownWindow time.Duration
	logger         *logrus.Logger

	mu        sync.RWMutex
	entries   map[string]*models.CacheEntry
	cooldowns map[string]time.Time
}

// NewResultCache creates a ResultCache over the given backend. A nil store
// keeps everything in memory. Zero durations take the defaults.
func NewResultCache(store Store, ttl, cooldownWindow time.Duration, logger *logrus.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cooldownWindow <= 0 {
		cooldownWindow = DefaultCooldownWindow
	}
	return &ResultCache{
		store:          store,
		ttl:            ttl,
		cooldownWindow: cooldownWindow,
		logger:         logger,
		entries:        make(map[string]*models.CacheEntry),
		cooldowns:      make(map[string]time.Time),
	}
}

// CooldownWindow reports the configured negative-result window.
func (c *ResultCache) CooldownWindow() time.Duration {
	return c.cooldownWindow
}

// Get returns the cached prediction for the pair key, or nil when there is
// none. Expired entries read as absent. Baselines are served for as long as
// their window lasts; use Lookup when cooldown state matters.
func (c *ResultCache) Get(ctx context.Context, pairKey string) *models.Prediction {
	entry := c.loadEntry(ctx, pairKey)
	if entry == nil {
		return nil
	}
	return entry.Prediction
}

// Lookup is the coordinator's view: the cached prediction, if any, plus
// whether the pair sits inside its negative-result window. During the window
// the prediction return is nil even when a baseline entry exists, so the
// caller short-circuits the way a plain negative entry would make it.
func (c *ResultCache) Lookup(ctx context.Context, pairKey string) (*models.Prediction, bool) {
	entry := c.loadEntry(ctx, pairKey)

	if _, cooling := c.OnCooldown(pairKey); cooling {
		return nil, true
	}
	if entry == nil {
		return nil, false
	}
	return entry.Prediction, false
}

// Put stores a server prediction for the pair key, overwriting whatever was
// there, and lifts any cooldown on the pair.
func (c *ResultCache) Put(ctx context.Context, pairKey string, prediction *models.Prediction) {
	entry := &models.CacheEntry{
		Prediction: prediction,
		FetchedAt:  time.Now(),
	}

	c.mu.Lock()
	c.entries[pairKey] = entry
	delete(c.cooldowns, pairKey)
	c.mu.Unlock()

	c.writeThrough(ctx, pairKey, entry, c.ttl)
}

// PutBaseline stores a locally computed stand-in that expires when the
// pair's cooldown window does. The cooldown marker itself stays: provider
// lookups remain shielded until the window passes.
func (c *ResultCache) PutBaseline(ctx context.Context, pairKey string, prediction *models.Prediction, until time.Time) {
	now := time.Now()
	if !until.After(now) {
		return
	}
	entry := &models.CacheEntry{
		Prediction:    prediction,
		FetchedAt:     now,
		CooldownUntil: until,
	}

	c.mu.Lock()
	c.entries[pairKey] = entry
	c.mu.Unlock()

	c.writeThrough(ctx, pairKey, entry, until.Sub(now))
}

// Invalidate removes the pair from both maps and the backend.
func (c *ResultCache) Invalidate(ctx context.Context, pairKey string) {
	c.mu.Lock()
	delete(c.entries, pairKey)
	delete(c.cooldowns, pairKey)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, storeKey(pairKey)); err != nil {
		c.logger.WithError(err).WithField("pair_key", pairKey).Warn("Cache invalidate write-behind failed")
	}
}

// StartCooldown records that the pair produced no data, shielding it from
// repeat provider lookups until the returned time.
func (c *ResultCache) StartCooldown(ctx context.Context, pairKey string) time.Time {
	now := time.Now()
	until := now.Add(c.cooldownWindow)

	c.mu.Lock()
	c.cooldowns[pairKey] = until
	c.mu.Unlock()

	entry := &models.CacheEntry{FetchedAt: now, CooldownUntil: until}
	c.writeThrough(ctx, pairKey, entry, c.cooldownWindow)
	return until
}

// OnCooldown reports whether the pair is inside its negative-result window
// and, when it is, how long remains.
func (c *ResultCache) OnCooldown(pairKey string) (time.Duration, bool) {
	c.mu.RLock()
	until, ok := c.cooldowns[pairKey]
	c.mu.RUnlock()

	if !ok {
		return 0, false
	}
	remaining := time.Until(until)
	if remaining <= 0 {
		c.mu.Lock()
		delete(c.cooldowns, pairKey)
		c.mu.Unlock()
		return 0, false
	}
	return remaining, true
}

// ClearCooldown lifts the window early, typically because fresh data arrived
// through another path.
func (c *ResultCache) ClearCooldown(pairKey string) {
	c.mu.Lock()
	delete(c.cooldowns, pairKey)
	c.mu.Unlock()
}

// SweepExpiredCooldowns drops cooldown markers whose window has passed,
// along with any baseline entries that expired with them, and returns how
// many markers were removed. Run periodically by the scheduler.
func (c *ResultCache) SweepExpiredCooldowns() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, until := range c.cooldowns {
		if !until.After(now) {
			delete(c.cooldowns, key)
			removed++
		}
	}
	for key, entry := range c.entries {
		if !c.fresh(entry, now) {
			delete(c.entries, key)
		}
	}
	return removed
}

// Entries returns a snapshot of the non-expired cached predictions.
func (c *ResultCache) Entries() map[string]models.CacheEntry {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]models.CacheEntry, len(c.entries))
	for key, entry := range c.entries {
		if c.fresh(entry, now) {
			snapshot[key] = *entry
		}
	}
	return snapshot
}

// Len reports how many predictions are held in memory.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// loadEntry resolves the pair's entry, memory first, backend second. Backend
// hits repopulate the memory maps, including the cooldown marker for entries
// still inside their window. Stale entries read as absent.
func (c *ResultCache) loadEntry(ctx context.Context, pairKey string) *models.CacheEntry {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[pairKey]
	c.mu.RUnlock()

	if ok {
		if c.fresh(entry, now) {
			return entry
		}
		c.mu.Lock()
		delete(c.entries, pairKey)
		c.mu.Unlock()
	}

	if c.store == nil {
		return nil
	}

	var stored models.CacheEntry
	if err := c.store.Get(ctx, storeKey(pairKey), &stored); err != nil {
		return nil
	}

	c.mu.Lock()
	if now.Before(stored.CooldownUntil) {
		c.cooldowns[pairKey] = stored.CooldownUntil
	}
	hit := c.fresh(&stored, now)
	if hit {
		c.entries[pairKey] = &stored
	}
	c.mu.Unlock()

	if !hit {
		return nil
	}
	return &stored
}

// fresh decides whether an entry may still be served: baselines last until
// their cooldown passes, server predictions until the cache TTL.
func (c *ResultCache) fresh(entry *models.CacheEntry, now time.Time) bool {
	if entry.Prediction == nil {
		return false
	}
	if !entry.CooldownUntil.IsZero() {
		return now.Before(entry.CooldownUntil)
	}
	return entry.Age(now) <= c.ttl
}

func (c *ResultCache) writeThrough(ctx context.Context, pairKey string, entry *models.CacheEntry, ttl time.Duration) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, storeKey(pairKey), entry, ttl); err != nil {
		c.logger.WithError(err).WithField("pair_key", pairKey).Warn("Cache write-through failed")
	}
}

func storeKey(pairKey string) string {
	return fmt.Sprintf("%s%s", keyPrefix, pairKey)
}
