// Package respcache memoizes full answer results in Redis, keyed by the
// normalized question, conversation fingerprint, and top_k.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/geopard-lu/geopard/internal/db"
	"github.com/geopard-lu/geopard/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "answer_cache:"

// store is the consumer interface for the answer cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores complete answer results with a TTL. Entries are immutable
// after creation; expiry makes them absent, nothing here mutates a stored
// result. Redis serializes concurrent writes, so two identical in-flight
// queries can both run the pipeline and race the put without corruption.
type Cache struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates an answer cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	return &Cache{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Key derives the cache key from the pipeline inputs. History is fingerprinted
// turn by turn so reordered or edited conversations never collide.
func Key(queryText string, topK int, history []domain.Turn) string {
	h := sha256.New()
	h.Write([]byte(queryText))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(topK)))
	for _, turn := range history {
		h.Write([]byte{0})
		h.Write([]byte(turn.Role))
		h.Write([]byte{0})
		h.Write([]byte(turn.Content))
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, with FromCache set. The second
// return is false when the entry is absent or expired.
func (c *Cache) Get(ctx context.Context, key string) (domain.AnswerResult, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached answer", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss")
		return domain.AnswerResult{}, false
	}

	var result domain.AnswerResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Failed to parse cached answer", zap.String("key", key), zap.Error(err))
		c.incCache("miss")
		return domain.AnswerResult{}, false
	}

	c.incCache("hit")
	result.FromCache = true
	return result, true
}

// Put stores a result under key. Failures are logged, never propagated:
// a missed cache write must not fail an otherwise successful answer.
func (c *Cache) Put(ctx context.Context, key string, result domain.AnswerResult) {
	result.FromCache = false

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("Failed to encode answer for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache answer", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
