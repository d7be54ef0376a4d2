package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"quiz-room-service/internal/domain"
	"quiz-room-service/internal/infra/memory"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches the candidate pool from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
}

// QuestionCache caches candidate pools in Redis and falls back to a loader on cache miss.
// Pools are stored as: SET quiz:pool:{pattern} <json array of questions>
// Instances share the pool; sampling happens locally on every Fetch.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	log    logrus.FieldLogger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration, log logrus.FieldLogger) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log.WithField("component", "redis_question_cache"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Fetch(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	pool, err := c.pool(ctx, filter)
	if err != nil {
		return nil, err
	}
	return memory.Sample(pool, count), nil
}

// Invalidate removes the cached pools for the given patterns.
func (c *QuestionCache) Invalidate(ctx context.Context, patterns ...domain.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}
	keys := make([]string, 0, len(patterns))
	for _, p := range patterns {
		keys = append(keys, poolKey(p))
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *QuestionCache) pool(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	key := poolKey(filter.Pattern)

	if pool, ok := c.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := c.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := c.loader.LoadQuestions(ctx, filter)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(pool)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err(); err != nil {
			// cache write is best effort
			c.log.WithError(err).WithField("key", key).Warn("cache pool")
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("key", key).Warn("read cached pool")
		}
		return nil, false
	}
	var pool []domain.Question
	if err := json.Unmarshal(raw, &pool); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("decode cached pool")
		return nil, false
	}
	return pool, true
}

func poolKey(p domain.Pattern) string {
	if p == "" {
		p = domain.PatternMixed
	}
	return "quiz:pool:" + string(p)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
