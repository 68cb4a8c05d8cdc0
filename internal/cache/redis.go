package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"exam-practice-service/internal/domain"
)

// RedisPaperCache persists paper listings so they survive restarts.
// Entries carry their insertion time in the payload and are stored without
// a Redis TTL: expiry is decided at read time, which is what lets
// GetIgnoringExpiry serve stale data when a refresh fetch fails.
// redisCommands is the slice of the redis client the cache issues. Narrowed
// so tests can fault individual commands.
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisPaperCache struct {
	client redisCommands
	ttl    time.Duration
	clock  func() time.Time
}

type redisPaperPayload struct {
	Papers   []domain.Paper `json:"papers"`
	CachedAt time.Time      `json:"cached_at"`
}

func NewRedisPaperCache(client *redis.Client, ttl time.Duration) *RedisPaperCache {
	if ttl <= 0 {
		ttl = DefaultPaperTTL
	}
	return &RedisPaperCache{client: client, ttl: ttl, clock: time.Now}
}

// WithClock is test-only for deterministic expiry.
func (c *RedisPaperCache) WithClock(now func() time.Time) *RedisPaperCache {
	c.clock = now
	return c
}

func (c *RedisPaperCache) key(subject domain.Subject) string {
	return "papers:" + string(subject)
}

// read treats every storage or decode error as a miss. Corrupted payloads
// are cleared so the next read does not fail on the same bytes again.
func (c *RedisPaperCache) read(ctx context.Context, subject domain.Subject, clearCorrupt bool) (redisPaperPayload, bool) {
	raw, err := c.client.Get(ctx, c.key(subject)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("paper cache read %s: %v", subject, err)
		}
		return redisPaperPayload{}, false
	}
	var payload redisPaperPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("paper cache corrupt for %s, clearing: %v", subject, err)
		if clearCorrupt {
			c.Clear(ctx, subject)
		}
		return redisPaperPayload{}, false
	}
	return payload, true
}

func (c *RedisPaperCache) Get(ctx context.Context, subject domain.Subject) ([]domain.Paper, bool) {
	payload, ok := c.read(ctx, subject, true)
	if !ok || !c.clock().Before(payload.CachedAt.Add(c.ttl)) {
		return nil, false
	}
	return payload.Papers, true
}

func (c *RedisPaperCache) GetIgnoringExpiry(ctx context.Context, subject domain.Subject) ([]domain.Paper, bool) {
	payload, ok := c.read(ctx, subject, true)
	if !ok {
		return nil, false
	}
	return payload.Papers, true
}

// Put overwrites the subject's listing. A failed write clears the subject
// and retries once; a second failure is dropped, the in-memory session
// state is never affected by cache trouble.
func (c *RedisPaperCache) Put(ctx context.Context, subject domain.Subject, papers []domain.Paper) {
	payload := redisPaperPayload{Papers: papers, CachedAt: c.clock()}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("paper cache encode %s: %v", subject, err)
		return
	}
	if err := c.client.Set(ctx, c.key(subject), raw, 0).Err(); err != nil {
		log.Printf("paper cache write %s failed, clearing and retrying: %v", subject, err)
		c.Clear(ctx, subject)
		if err := c.client.Set(ctx, c.key(subject), raw, 0).Err(); err != nil {
			log.Printf("paper cache retry %s dropped: %v", subject, err)
		}
	}
}

func (c *RedisPaperCache) Clear(ctx context.Context, subject domain.Subject) {
	if err := c.client.Del(ctx, c.key(subject)).Err(); err != nil && err != redis.Nil {
		log.Printf("paper cache clear %s: %v", subject, err)
	}
}

func (c *RedisPaperCache) Status(ctx context.Context, subject domain.Subject) Status {
	payload, ok := c.read(ctx, subject, false)
	if !ok {
		return Status{}
	}
	expiresIn := payload.CachedAt.Add(c.ttl).Sub(c.clock())
	if expiresIn <= 0 {
		return Status{}
	}
	return Status{Cached: true, ExpiresIn: expiresIn, Count: len(payload.Papers)}
}
