package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const generationKey = "scoreboard:gen"

var (
	_ app.ScoreboardRepository = (*ScoreboardCache)(nil)
	_ app.ScoreboardNotifier   = (*ScoreboardCache)(nil)
)

// ScoreboardCache caches ranked pages and the entry count in Redis and falls
// back to the repository on a miss. Keys are namespaced by a generation
// counter:
//
//	scoreboard:v{gen}:page:{offset}:{limit} -> JSON entries
//	scoreboard:v{gen}:count                 -> entry count
//
// Invalidation is a single INCR of scoreboard:gen, so every instance sharing
// the Redis stops reading stale pages at once; old keys age out by TTL.
type ScoreboardCache struct {
	client *redis.Client
	repo   app.ScoreboardRepository
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewScoreboardCache(client *redis.Client, repo app.ScoreboardRepository, ttl time.Duration, logger *zap.Logger) *ScoreboardCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreboardCache{
		client: client,
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ScoreboardCache) RankedPage(ctx context.Context, offset, limit int) ([]domain.ScoreboardEntry, error) {
	gen := c.generation(ctx)
	key := pageKey(gen, offset, limit)

	if entries, ok := c.cachedPage(ctx, key); ok {
		return entries, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if entries, ok := c.cachedPage(ctx, key); ok {
			return entries, nil
		}
		entries, err := c.repo.RankedPage(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(entries); err == nil {
			c.store(ctx, key, data)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ScoreboardEntry), nil
}

func (c *ScoreboardCache) CountEntries(ctx context.Context) (int, error) {
	gen := c.generation(ctx)
	key := countKey(gen)

	if n, err := c.client.Get(ctx, key).Int(); err == nil {
		return n, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		n, err := c.repo.CountEntries(ctx)
		if err != nil {
			return 0, err
		}
		c.store(ctx, key, strconv.Itoa(n))
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

func (c *ScoreboardCache) ScoreboardChanged(ctx context.Context, change domain.ScoreChange) {
	if err := c.Invalidate(ctx); err != nil {
		c.logger.Warn("scoreboard cache invalidation failed", zap.String("userId", change.UserID), zap.Error(err))
	}
}

// Invalidate moves every reader to a fresh generation.
func (c *ScoreboardCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}

func (c *ScoreboardCache) generation(ctx context.Context) int64 {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Debug("scoreboard generation read failed", zap.Error(err))
	}
	return gen
}

func (c *ScoreboardCache) cachedPage(ctx context.Context, key string) ([]domain.ScoreboardEntry, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []domain.ScoreboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *ScoreboardCache) store(ctx context.Context, key string, value interface{}) {
	ttl := c.ttlWithJitter()
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Debug("scoreboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func pageKey(gen int64, offset, limit int) string {
	return "scoreboard:v" + strconv.FormatInt(gen, 10) + ":page:" + strconv.Itoa(offset) + ":" + strconv.Itoa(limit)
}

func countKey(gen int64) string {
	return "scoreboard:v" + strconv.FormatInt(gen, 10) + ":count"
}

func (c *ScoreboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
