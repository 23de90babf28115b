package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

var (
	_ app.ScoreboardRepository = (*ScoreboardCache)(nil)
	_ app.ScoreboardNotifier   = (*ScoreboardCache)(nil)
)

// ScoreboardCache caches ranked pages and the entry count with a TTL in front
// of a slower repository. Every committed score change bumps the generation,
// which drops all cached pages at once.
type ScoreboardCache struct {
	repo  app.ScoreboardRepository
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.Mutex
	rnd   *rand.Rand
	gen   uint64
	pages map[pageKey]cachedPage
	count cachedCount
}

type pageKey struct {
	offset int
	limit  int
}

type cachedPage struct {
	entries   []domain.ScoreboardEntry
	expiresAt time.Time
}

type cachedCount struct {
	value     int
	expiresAt time.Time
}

func NewScoreboardCache(repo app.ScoreboardRepository, ttl time.Duration) *ScoreboardCache {
	return &ScoreboardCache{
		repo:  repo,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		pages: make(map[pageKey]cachedPage),
	}
}

func (c *ScoreboardCache) RankedPage(ctx context.Context, offset, limit int) ([]domain.ScoreboardEntry, error) {
	key := pageKey{offset: offset, limit: limit}

	c.mu.Lock()
	gen := c.gen
	if entry, ok := c.pages[key]; ok && entry.expiresAt.After(c.clock()) {
		c.mu.Unlock()
		return entry.entries, nil
	}
	c.mu.Unlock()

	result, err, _ := c.sf.Do(fmt.Sprintf("page:%d:%d:%d", gen, offset, limit), func() (interface{}, error) {
		entries, err := c.repo.RankedPage(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.pages[key] = cachedPage{entries: entries, expiresAt: c.clock().Add(c.ttlWithJitterLocked())}
		}
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ScoreboardEntry), nil
}

func (c *ScoreboardCache) CountEntries(ctx context.Context) (int, error) {
	c.mu.Lock()
	gen := c.gen
	if c.count.expiresAt.After(c.clock()) {
		n := c.count.value
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	result, err, _ := c.sf.Do(fmt.Sprintf("count:%d", gen), func() (interface{}, error) {
		n, err := c.repo.CountEntries(ctx)
		if err != nil {
			return 0, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.count = cachedCount{value: n, expiresAt: c.clock().Add(c.ttlWithJitterLocked())}
		}
		c.mu.Unlock()
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (c *ScoreboardCache) UserStanding(ctx context.Context, userID string) (domain.ScoreboardEntry, error) {
	return c.repo.UserStanding(ctx, userID)
}

func (c *ScoreboardCache) Stats(ctx context.Context) (domain.ScoreboardStats, error) {
	return c.repo.Stats(ctx)
}

// ScoreboardChanged drops every cached page.
func (c *ScoreboardCache) ScoreboardChanged(_ context.Context, _ domain.ScoreChange) {
	c.Invalidate()
}

func (c *ScoreboardCache) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.pages = make(map[pageKey]cachedPage)
	c.count = cachedCount{}
	c.mu.Unlock()
}

func (c *ScoreboardCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
