package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"
)

type env struct {
	store      *postgres.Store
	loader     *postgres.QuizLoader
	attempts   *app.AttemptService
	scoreboard *app.ScoreboardService
}

func TestScoringAgainstPostgresAndRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	e := newEnv(t, ctx, pgURL, redisURL)

	t.Run("first submission and retake", func(t *testing.T) {
		first := e.play(t, ctx, "u1", "Alice", "4", "Rome", "Mars") // 1 point
		if first.TotalScore != 1 || !first.IsNewBest {
			t.Fatalf("unexpected first result: %+v", first)
		}
		worse := e.play(t, ctx, "u1", "Alice", "3", "Rome", "Mars")
		if worse.TotalScore != 0 || worse.IsNewBest {
			t.Fatalf("unexpected worse result: %+v", worse)
		}
		better := e.play(t, ctx, "u1", "Alice", "4", "Paris", "Jupiter")
		if better.TotalScore != 6 || !better.IsNewBest {
			t.Fatalf("unexpected better result: %+v", better)
		}

		rank, err := e.scoreboard.GetUserRank(ctx, "u1", 10)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		if rank.TotalScore != 6 || rank.QuizzesCompleted != 1 {
			t.Fatalf("expected total 6 over one quiz, got %+v", rank)
		}

		history, err := e.attempts.GetQuizHistory(ctx, "u1", "quiz-1")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 3 || !history[0].IsBest || history[0].TotalScore != 6 {
			t.Fatalf("unexpected history: %+v", history)
		}
	})

	t.Run("double submit applies once", func(t *testing.T) {
		view, err := e.attempts.StartAttempt(ctx, "u2", "Bob", "quiz-1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		var succeeded, rejected atomic.Int32
		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				_, err := e.attempts.Submit(ctx, view.AttemptID, "u2", answers("4", "Paris", "Mars"))
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, domain.ErrAlreadySubmitted):
					rejected.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent submit: %v", err)
		}
		if succeeded.Load() != 1 || rejected.Load() != 7 {
			t.Fatalf("expected one success, got %d ok / %d rejected", succeeded.Load(), rejected.Load())
		}
		if rank, err := e.scoreboard.GetUserRank(ctx, "u2", 10); err != nil || rank.TotalScore != 3 {
			t.Fatalf("expected total 3, got %+v err=%v", rank, err)
		}
	})

	t.Run("parallel attempts keep the best only", func(t *testing.T) {
		scores := [][]string{
			{"4", "Rome", "Mars"},     // 1
			{"4", "Paris", "Mars"},    // 3
			{"4", "Paris", "Jupiter"}, // 6
			{"3", "Paris", "Mars"},    // 2
		}
		views := make([]domain.AttemptView, len(scores))
		for i := range scores {
			v, err := e.attempts.StartAttempt(ctx, "u3", "Cara", "quiz-1")
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			views[i] = v
		}
		var g errgroup.Group
		for i := range views {
			g.Go(func() error {
				_, err := e.attempts.Submit(ctx, views[i].AttemptID, "u3", answers(scores[i]...))
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("parallel submit: %v", err)
		}
		rank, err := e.scoreboard.GetUserRank(ctx, "u3", 10)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		if rank.TotalScore != 6 || rank.QuizzesCompleted != 1 {
			t.Fatalf("expected total 6 over one quiz, got %+v", rank)
		}
	})

	t.Run("ranking ties share a rank", func(t *testing.T) {
		page, err := e.scoreboard.GetRanked(ctx, 1, 10)
		if err != nil {
			t.Fatalf("ranked: %v", err)
		}
		// Alice 6, Cara 6, Bob 3
		if len(page.Entries) != 3 {
			t.Fatalf("unexpected entries: %+v", page.Entries)
		}
		got := fmt.Sprintf("%s:%d %s:%d %s:%d",
			page.Entries[0].DisplayName, page.Entries[0].Rank,
			page.Entries[1].DisplayName, page.Entries[1].Rank,
			page.Entries[2].DisplayName, page.Entries[2].Rank)
		if got != "Alice:1 Cara:1 Bob:3" {
			t.Fatalf("unexpected ranking %s", got)
		}
	})

	t.Run("deleted quiz never changes totals", func(t *testing.T) {
		quiz, err := e.loader.SaveQuiz(ctx, domain.Quiz{
			Title: "Short lived",
			Questions: []domain.Question{{Prompt: "1 + 1?", Points: 5, Options: []domain.Option{
				{Text: "2", Correct: true}, {Text: "3"},
			}}},
		})
		if err != nil {
			t.Fatalf("save quiz: %v", err)
		}
		view, err := e.attempts.StartAttempt(ctx, "u1", "Alice", quiz.ID)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if deleted, err := e.loader.DeleteQuiz(ctx, quiz.ID); err != nil || !deleted {
			t.Fatalf("delete quiz: deleted=%v err=%v", deleted, err)
		}

		result, err := e.attempts.Submit(ctx, view.AttemptID, "u1", []domain.AnswerSubmission{{Position: 1, SelectedText: "2"}})
		if err != nil {
			t.Fatalf("submit detached attempt: %v", err)
		}
		if result.TotalScore != 5 || result.IsNewBest {
			t.Fatalf("unexpected detached result: %+v", result)
		}
		if rank, err := e.scoreboard.GetUserRank(ctx, "u1", 10); err != nil || rank.TotalScore != 6 {
			t.Fatalf("expected total to stay at 6, got %+v err=%v", rank, err)
		}
	})

	t.Run("redis cache serves fresh pages after changes", func(t *testing.T) {
		before, err := e.scoreboard.GetRanked(ctx, 1, 10)
		if err != nil {
			t.Fatalf("ranked: %v", err)
		}
		e.play(t, ctx, "u4", "Dan", "4", "Paris", "Jupiter")
		after, err := e.scoreboard.GetRanked(ctx, 1, 10)
		if err != nil {
			t.Fatalf("ranked: %v", err)
		}
		if after.Pagination.TotalEntries != before.Pagination.TotalEntries+1 {
			t.Fatalf("expected a new entry, before %d after %d",
				before.Pagination.TotalEntries, after.Pagination.TotalEntries)
		}
	})

	t.Run("name ties sort in byte order", func(t *testing.T) {
		e.play(t, ctx, "u5", "eve", "4", "Rome", "Mars")
		e.play(t, ctx, "u6", "Eve", "4", "Rome", "Mars")
		page, err := e.scoreboard.GetRanked(ctx, 1, 10)
		if err != nil {
			t.Fatalf("ranked: %v", err)
		}
		var names []string
		for _, entry := range page.Entries {
			if entry.TotalScore == 1 {
				names = append(names, entry.DisplayName)
			}
		}
		if fmt.Sprint(names) != "[Eve eve]" {
			t.Fatalf("expected [Eve eve], got %v", names)
		}
	})

	t.Run("quiz deleted during start", func(t *testing.T) {
		quiz, err := e.loader.SaveQuiz(ctx, domain.Quiz{
			Title: "Vanishing",
			Questions: []domain.Question{{Prompt: "1 + 1?", Points: 1, Options: []domain.Option{
				{Text: "2", Correct: true}, {Text: "3"},
			}}},
		})
		if err != nil {
			t.Fatalf("save quiz: %v", err)
		}
		attempts := app.NewAttemptService(e.store, deletingLoader{e.loader})
		if _, err := attempts.StartAttempt(ctx, "u7", "Gus", quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected quiz not found, got %v", err)
		}
		if _, err := e.scoreboard.GetUserRank(ctx, "u7", 10); !errors.Is(err, domain.ErrUserScoreNotFound) {
			t.Fatalf("rolled back start must not register the user, got %v", err)
		}
	})
}

// deletingLoader deletes each quiz right after it is read.
type deletingLoader struct {
	*postgres.QuizLoader
}

func (l deletingLoader) GetQuizForAttempt(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := l.QuizLoader.GetQuizForAttempt(ctx, quizID)
	if err != nil {
		return quiz, err
	}
	if _, err := l.QuizLoader.DeleteQuiz(ctx, quizID); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func newEnv(t *testing.T, ctx context.Context, pgURL, redisURL string) *env {
	t.Helper()
	db := postgres.OpenDB(pgURL)
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	loader := postgres.NewQuizLoader(pool)
	if _, err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	store := postgres.NewStore(db)
	cache := infraredis.NewScoreboardCache(redisClient, store, time.Minute, nil)
	return &env{
		store:      store,
		loader:     loader,
		attempts:   app.NewAttemptService(store, loader, app.WithNotifiers(cache)),
		scoreboard: app.NewScoreboardService(cache, store),
	}
}

func (e *env) play(t *testing.T, ctx context.Context, userID, name string, selected ...string) domain.AttemptResult {
	t.Helper()
	view, err := e.attempts.StartAttempt(ctx, userID, name, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := e.attempts.Submit(ctx, view.AttemptID, userID, answers(selected...))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return result
}

func answers(selected ...string) []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, len(selected))
	for i, s := range selected {
		out[i] = domain.AnswerSubmission{Position: i + 1, SelectedText: s}
	}
	return out
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Math and more",
		Questions: []domain.Question{
			{ID: "q1", Position: 1, Prompt: "What is 2 + 2?", Points: 1, Options: []domain.Option{
				{Text: "3"}, {Text: "4", Correct: true}, {Text: "5"},
			}},
			{ID: "q2", Position: 2, Prompt: "Capital of France?", Points: 2, Options: []domain.Option{
				{Text: "Paris", Correct: true}, {Text: "Rome"},
			}},
			{ID: "q3", Position: 3, Prompt: "Largest planet?", Points: 3, Options: []domain.Option{
				{Text: "Mars"}, {Text: "Jupiter", Correct: true},
			}},
		},
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
