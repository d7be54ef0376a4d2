package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-room-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionCache caches candidate pools per pattern with TTL to avoid repeated DB hits.
// Each Fetch draws a fresh random sample from the cached pool.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[domain.Pattern]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.Pattern]cachedPool),
	}
}

func (c *QuestionCache) Fetch(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	pool, err := c.pool(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Sample(pool, count), nil
}

// Invalidate drops every cached pool, e.g. after a reseed.
func (c *QuestionCache) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[domain.Pattern]cachedPool)
	c.mu.Unlock()
}

func (c *QuestionCache) pool(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	key := filter.Pattern
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(string(key), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.LoadQuestions(ctx, filter)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedPool{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
