package application

import (
	"sync"
	"time"

	"github.com/inscribcordoba/attendance/internal/persistence"
)

// ProposalCache holds proposals between the resolve and confirm steps.
// Entries expire after the configured TTL.
type ProposalCache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]proposalCacheEntry
}

type proposalCacheEntry struct {
	proposal  Proposal
	expiresAt time.Time
}

// NewProposalCache builds a cache. Non-positive ttl and maxEntries get defaults.
func NewProposalCache(ttl time.Duration, maxEntries int, now func() time.Time) *ProposalCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &ProposalCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]proposalCacheEntry),
	}
}

// Store saves proposal under its ID.
func (c *ProposalCache) Store(proposal Proposal) {
	if c == nil || proposal.ID == "" {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[proposal.ID] = proposalCacheEntry{proposal: proposal, expiresAt: expiry}
}

// Take removes and returns the proposal when it exists and has not expired.
func (c *ProposalCache) Take(id string) (Proposal, bool) {
	if c == nil {
		return Proposal{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return Proposal{}, false
	}
	delete(c.entries, id)
	if c.now().After(entry.expiresAt) {
		return Proposal{}, false
	}
	return entry.proposal, true
}

// TakeOwned is Take restricted to proposals resolved by owner. A proposal
// owned by another client stays in the cache.
func (c *ProposalCache) TakeOwned(id string, owner persistence.FieldSet) (Proposal, bool) {
	if c == nil {
		return Proposal{}, false
	}
	c.mu.Lock()
	entry, ok := c.entries[id]
	c.mu.Unlock()
	if !ok || entry.proposal.Owner != owner {
		return Proposal{}, false
	}
	return c.Take(id)
}

// Len returns the number of live entries.
func (c *ProposalCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return len(c.entries)
}

func (c *ProposalCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *ProposalCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
