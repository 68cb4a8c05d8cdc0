// Package cache holds the client-side stores that absorb backend latency:
// a long-lived per-subject paper-list cache (persistent when Redis is
// configured) and a short-lived in-memory question cache.
package cache

import (
	"context"
	"sync"
	"time"

	"exam-practice-service/internal/domain"
)

// DefaultPaperTTL and DefaultQuestionTTL mirror the client the backend was
// tuned for: listings barely change day to day, question payloads are
// heavier and refetched more willingly.
const (
	DefaultPaperTTL    = 24 * time.Hour
	DefaultQuestionTTL = 2 * time.Hour
)

// Status describes a subject's paper-list cache entry for UI indicators.
// Reading it never mutates the cache.
type Status struct {
	Cached    bool          `json:"is_cached"`
	ExpiresIn time.Duration `json:"expires_in_ms"`
	Count     int           `json:"count"`
}

// PaperCache stores paper listings per subject. An empty cached list is a
// valid hit; expiry makes an entry a miss, not an error.
type PaperCache interface {
	Get(ctx context.Context, subject domain.Subject) ([]domain.Paper, bool)
	// GetIgnoringExpiry returns even-expired data; the last-resort fallback
	// when a refresh fetch fails.
	GetIgnoringExpiry(ctx context.Context, subject domain.Subject) ([]domain.Paper, bool)
	Put(ctx context.Context, subject domain.Subject, papers []domain.Paper)
	Clear(ctx context.Context, subject domain.Subject)
	Status(ctx context.Context, subject domain.Subject) Status
}

// MemoryPaperCache is the zero-config PaperCache; it does not survive a
// process restart.
type MemoryPaperCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	entries map[domain.Subject]paperEntry
}

type paperEntry struct {
	papers   []domain.Paper
	cachedAt time.Time
}

func NewMemoryPaperCache(ttl time.Duration) *MemoryPaperCache {
	if ttl <= 0 {
		ttl = DefaultPaperTTL
	}
	return &MemoryPaperCache{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[domain.Subject]paperEntry),
	}
}

// WithClock is test-only for deterministic expiry.
func (c *MemoryPaperCache) WithClock(now func() time.Time) *MemoryPaperCache {
	c.clock = now
	return c
}

func (c *MemoryPaperCache) Get(_ context.Context, subject domain.Subject) ([]domain.Paper, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[subject]
	if !ok || !c.clock().Before(entry.cachedAt.Add(c.ttl)) {
		return nil, false
	}
	return entry.papers, true
}

func (c *MemoryPaperCache) GetIgnoringExpiry(_ context.Context, subject domain.Subject) ([]domain.Paper, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[subject]
	if !ok {
		return nil, false
	}
	return entry.papers, true
}

func (c *MemoryPaperCache) Put(_ context.Context, subject domain.Subject, papers []domain.Paper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[subject] = paperEntry{papers: papers, cachedAt: c.clock()}
}

func (c *MemoryPaperCache) Clear(_ context.Context, subject domain.Subject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, subject)
}

func (c *MemoryPaperCache) Status(_ context.Context, subject domain.Subject) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[subject]
	if !ok {
		return Status{}
	}
	expiresIn := entry.cachedAt.Add(c.ttl).Sub(c.clock())
	if expiresIn <= 0 {
		// Expired entries read as uncached but are left in place; only Get
		// fallbacks and Clear touch them.
		return Status{}
	}
	return Status{Cached: true, ExpiresIn: expiresIn, Count: len(entry.papers)}
}
