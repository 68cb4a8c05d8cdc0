package cache

import (
	"fmt"
	"sync"
	"time"

	"exam-practice-service/internal/domain"
)

// QuestionCache holds individual questions in memory only; question payloads
// are cheap to refetch and deliberately do not survive a restart.
type QuestionCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]questionEntry
}

type questionEntry struct {
	subject  domain.Subject
	question domain.Question
	cachedAt time.Time
}

func NewQuestionCache(ttl time.Duration) *QuestionCache {
	if ttl <= 0 {
		ttl = DefaultQuestionTTL
	}
	return &QuestionCache{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]questionEntry),
	}
}

// WithClock is test-only for deterministic expiry.
func (c *QuestionCache) WithClock(now func() time.Time) *QuestionCache {
	c.clock = now
	return c
}

func questionKey(subject domain.Subject, paperID string, questionNumber int) string {
	return fmt.Sprintf("%s/%s:%d", subject, paperID, questionNumber)
}

func (c *QuestionCache) Get(subject domain.Subject, paperID string, questionNumber int) (domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[questionKey(subject, paperID, questionNumber)]
	if !ok || !c.clock().Before(entry.cachedAt.Add(c.ttl)) {
		return domain.Question{}, false
	}
	return entry.question, true
}

func (c *QuestionCache) Put(subject domain.Subject, paperID string, questionNumber int, q domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[questionKey(subject, paperID, questionNumber)] = questionEntry{
		subject:  subject,
		question: q,
		cachedAt: c.clock(),
	}
}

// ClearSubject drops every cached question for one subject; idempotent.
func (c *QuestionCache) ClearSubject(subject domain.Subject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.subject == subject {
			delete(c.entries, key)
		}
	}
}

// Sweep evicts expired entries and returns how many were dropped. Expired
// entries already read as misses; sweeping just bounds memory between hits.
func (c *QuestionCache) Sweep() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, entry := range c.entries {
		if !now.Before(entry.cachedAt.Add(c.ttl)) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live entries, expired or not.
func (c *QuestionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
