package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestScoreboardCacheCachesPagesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := &countingRepo{ScoreboardRepository: seededStore(t)}
	cache := NewScoreboardCache(newClient(mr), repo, time.Minute, nil)
	ctx := context.Background()

	entries, err := cache.RankedPage(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ranked page: %v", err)
	}
	if len(entries) != 2 || entries[0].DisplayName != "Alice" || entries[0].Rank != 1 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if !mr.Exists("scoreboard:v0:page:0:10") {
		t.Fatalf("expected page key to be set")
	}

	// Second call should hit cache, repository not called again.
	if _, err := cache.RankedPage(ctx, 0, 10); err != nil {
		t.Fatalf("ranked page 2: %v", err)
	}
	if got := repo.pageCalls(); got != 1 {
		t.Fatalf("expected cache hit, repository calls=%d", got)
	}

	n, err := cache.CountEntries(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count: %d %v", n, err)
	}
	_, _ = cache.CountEntries(ctx)
	if got := repo.countCalls(); got != 1 {
		t.Fatalf("expected count cache hit, calls=%d", got)
	}
}

func TestScoreboardCacheInvalidationBumpsGeneration(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := &countingRepo{ScoreboardRepository: seededStore(t)}
	cache := NewScoreboardCache(newClient(mr), repo, time.Minute, nil)
	ctx := context.Background()

	_, _ = cache.RankedPage(ctx, 0, 10)
	cache.ScoreboardChanged(ctx, domain.ScoreChange{UserID: "u1", Delta: 1})

	if v, err := mr.Get(generationKey); err != nil || v != "1" {
		t.Fatalf("expected generation 1, got %q %v", v, err)
	}
	_, _ = cache.RankedPage(ctx, 0, 10)
	if got := repo.pageCalls(); got != 2 {
		t.Fatalf("expected reload after invalidation, calls=%d", got)
	}
	if !mr.Exists("scoreboard:v1:page:0:10") {
		t.Fatalf("expected page cached under new generation")
	}
}

func TestScoreboardCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	repo := &countingRepo{ScoreboardRepository: seededStore(t)}
	cache := NewScoreboardCache(client, repo, time.Minute, nil)

	entries, err := cache.RankedPage(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("expected repository fallback, got %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestScoreboardCachePageKeysExpire(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := &countingRepo{ScoreboardRepository: seededStore(t)}
	cache := NewScoreboardCache(newClient(mr), repo, time.Minute, nil)
	ctx := context.Background()

	_, _ = cache.RankedPage(ctx, 0, 10)
	mr.FastForward(2 * time.Minute)
	_, _ = cache.RankedPage(ctx, 0, 10)
	if got := repo.pageCalls(); got != 2 {
		t.Fatalf("expected reload after expiry, calls=%d", got)
	}
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx app.StoreTx) error {
		for _, u := range []struct {
			id, name string
			score    int
		}{{"u1", "Alice", 50}, {"u2", "Bob", 30}} {
			if err := tx.EnsureUserScore(ctx, u.id, u.name, at); err != nil {
				return err
			}
			if _, err := tx.AddToUserTotal(ctx, u.id, u.score, 1, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

type countingRepo struct {
	app.ScoreboardRepository
	mu     sync.Mutex
	pages  int
	counts int
}

func (r *countingRepo) RankedPage(ctx context.Context, offset, limit int) ([]domain.ScoreboardEntry, error) {
	r.mu.Lock()
	r.pages++
	r.mu.Unlock()
	return r.ScoreboardRepository.RankedPage(ctx, offset, limit)
}

func (r *countingRepo) CountEntries(ctx context.Context) (int, error) {
	r.mu.Lock()
	r.counts++
	r.mu.Unlock()
	return r.ScoreboardRepository.CountEntries(ctx)
}

func (r *countingRepo) pageCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pages
}

func (r *countingRepo) countCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
