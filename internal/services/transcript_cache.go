package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"studylens-backend/internal/logger"
	"studylens-backend/internal/models"
)

const transcriptRedisPrefix = "transcript:"

type transcriptCacheEntry struct {
	TranscriptText *string                    `json:"transcriptText"`
	Segments       []models.TranscriptSegment `json:"segments"`
	ExpiresAt      time.Time                  `json:"expiresAt"`
}

func (e transcriptCacheEntry) result() *models.TranscriptResult {
	var segs []models.TranscriptSegment
	if e.Segments != nil {
		segs = make([]models.TranscriptSegment, len(e.Segments))
		copy(segs, e.Segments)
	}
	return &models.TranscriptResult{
		TranscriptText: e.TranscriptText,
		Segments:       segs,
		Cached:         true,
	}
}

// TranscriptCache is a bounded in-process LRU with an optional Redis tier
// shared between instances. Entries expire ttl after they were stored.
type TranscriptCache struct {
	lru   *expirable.LRU[string, transcriptCacheEntry]
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
	log   *logger.Logger
}

// NewTranscriptCache builds the cache. rdb may be nil.
func NewTranscriptCache(maxEntries int, ttl time.Duration, rdb *redis.Client, log *logger.Logger) *TranscriptCache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TranscriptCache{
		lru:   expirable.NewLRU[string, transcriptCacheEntry](maxEntries, nil, ttl),
		redis: rdb,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
}

// Get returns a live entry marked as cached.
func (c *TranscriptCache) Get(ctx context.Context, key string) (*models.TranscriptResult, bool) {
	now := c.now()
	if e, ok := c.lru.Get(key); ok {
		if now.Before(e.ExpiresAt) {
			return e.result(), true
		}
		c.lru.Remove(key)
	}

	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, transcriptRedisPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("transcript cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var e transcriptCacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("transcript cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	if !now.Before(e.ExpiresAt) {
		return nil, false
	}
	c.lru.Add(key, e)
	return e.result(), true
}

// Set stores result under key with expiresAt = now + ttl.
func (c *TranscriptCache) Set(ctx context.Context, key string, result *models.TranscriptResult) {
	if result == nil {
		return
	}
	e := transcriptCacheEntry{
		TranscriptText: result.TranscriptText,
		Segments:       result.Segments,
		ExpiresAt:      c.now().Add(c.ttl),
	}
	c.lru.Add(key, e)

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, transcriptRedisPrefix+key, data, c.ttl).Err(); err != nil {
		c.log.Warn("transcript cache write failed", "key", key, "error", err)
	}
}

// Len reports the number of in-process entries.
func (c *TranscriptCache) Len() int {
	return c.lru.Len()
}
