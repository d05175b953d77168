package engine

import (
	"sync"
	"time"

	"github.com/campuspay/subsidy-engine/internal/models"
)

// RuleCache holds effective rule lists keyed by subsidy type and
// per-rule condition lists. Implementations must be safe for
// concurrent use. Cached slices are snapshots: callers receive copies
// and never share mutable state with the cache.
//
// The administration path mutates the store first and invalidates
// second, so a cache implementation never has to reason about
// uncommitted rules.
type RuleCache interface {
	// Rules returns the cached rule list for a subsidy type.
	Rules(subsidyType int) ([]models.SubsidyRule, bool)
	// StoreRules caches the rule list for a subsidy type.
	StoreRules(subsidyType int, rules []models.SubsidyRule)
	// Conditions returns the cached condition list for a rule.
	Conditions(ruleID uint64) ([]models.SubsidyRuleCondition, bool)
	// StoreConditions caches the condition list for a rule.
	StoreConditions(ruleID uint64, conditions []models.SubsidyRuleCondition)
	// InvalidateRule drops the rule's condition entry and all rule lists.
	InvalidateRule(ruleID uint64)
	// InvalidateAll drops every cached entry.
	InvalidateAll()
}

// NoopRuleCache disables caching; every lookup misses.
type NoopRuleCache struct{}

// Rules always misses.
func (NoopRuleCache) Rules(int) ([]models.SubsidyRule, bool) { return nil, false }

// StoreRules discards the list.
func (NoopRuleCache) StoreRules(int, []models.SubsidyRule) {}

// Conditions always misses.
func (NoopRuleCache) Conditions(uint64) ([]models.SubsidyRuleCondition, bool) { return nil, false }

// StoreConditions discards the list.
func (NoopRuleCache) StoreConditions(uint64, []models.SubsidyRuleCondition) {}

// InvalidateRule is a no-op.
func (NoopRuleCache) InvalidateRule(uint64) {}

// InvalidateAll is a no-op.
func (NoopRuleCache) InvalidateAll() {}

// rulesEntry is a cached rule list with its load time.
type rulesEntry struct {
	rules    []models.SubsidyRule
	loadedAt time.Time
}

// MemoryRuleCache is a process-wide lookaside cache. Rule-list entries
// expire after a TTL because an "effective rules" list is a function
// of wall-clock time: a rule crossing its effective or expire date is
// not announced by any administrative invalidation.
type MemoryRuleCache struct {
	ttl time.Duration

	mu         sync.RWMutex
	rules      map[int]rulesEntry
	conditions map[uint64][]models.SubsidyRuleCondition

	now func() time.Time
}

// DefaultCacheTTL bounds the staleness of rule-list entries.
const DefaultCacheTTL = 5 * time.Minute

// NewMemoryRuleCache constructs a memory cache. ttl <= 0 selects
// DefaultCacheTTL.
func NewMemoryRuleCache(ttl time.Duration) *MemoryRuleCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryRuleCache{
		ttl:        ttl,
		rules:      make(map[int]rulesEntry),
		conditions: make(map[uint64][]models.SubsidyRuleCondition),
		now:        time.Now,
	}
}

// Rules returns a copy of the cached rule list, or a miss when absent
// or expired.
func (c *MemoryRuleCache) Rules(subsidyType int) ([]models.SubsidyRule, bool) {
	c.mu.RLock()
	entry, ok := c.rules[subsidyType]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.loadedAt) > c.ttl {
		c.mu.Lock()
		if current, still := c.rules[subsidyType]; still && current.loadedAt.Equal(entry.loadedAt) {
			delete(c.rules, subsidyType)
		}
		c.mu.Unlock()
		return nil, false
	}
	return copyRules(entry.rules), true
}

// StoreRules caches a copy of the rule list.
func (c *MemoryRuleCache) StoreRules(subsidyType int, rules []models.SubsidyRule) {
	entry := rulesEntry{rules: copyRules(rules), loadedAt: c.now()}
	c.mu.Lock()
	c.rules[subsidyType] = entry
	c.mu.Unlock()
}

// Conditions returns a copy of the cached condition list.
func (c *MemoryRuleCache) Conditions(ruleID uint64) ([]models.SubsidyRuleCondition, bool) {
	c.mu.RLock()
	conditions, ok := c.conditions[ruleID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return copyConditions(conditions), true
}

// StoreConditions caches a copy of the condition list.
func (c *MemoryRuleCache) StoreConditions(ruleID uint64, conditions []models.SubsidyRuleCondition) {
	copied := copyConditions(conditions)
	c.mu.Lock()
	c.conditions[ruleID] = copied
	c.mu.Unlock()
}

// InvalidateRule drops the rule's condition entry and every rule list.
// Status and priority changes reorder type-level lists, so all of them
// go.
func (c *MemoryRuleCache) InvalidateRule(ruleID uint64) {
	c.mu.Lock()
	delete(c.conditions, ruleID)
	c.rules = make(map[int]rulesEntry)
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *MemoryRuleCache) InvalidateAll() {
	c.mu.Lock()
	c.rules = make(map[int]rulesEntry)
	c.conditions = make(map[uint64][]models.SubsidyRuleCondition)
	c.mu.Unlock()
}

// copyRules returns a defensive copy of a rule slice.
func copyRules(rules []models.SubsidyRule) []models.SubsidyRule {
	out := make([]models.SubsidyRule, len(rules))
	copy(out, rules)
	return out
}

// copyConditions returns a defensive copy of a condition slice.
func copyConditions(conditions []models.SubsidyRuleCondition) []models.SubsidyRuleCondition {
	out := make([]models.SubsidyRuleCondition, len(conditions))
	copy(out, conditions)
	return out
}
