package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/amqp"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	rediscache "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logging"
	"quiz-attempt-service/internal/metrics"
	transport "quiz-attempt-service/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultCacheTTL = 5 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath *string) *cobra.Command {
	var (
		portFlag    string
		quizzesFile string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API and scoreboard stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, portFlag, quizzesFile)
		},
	}
	cmd.Flags().StringVar(&portFlag, "port", "", "port to listen on, overrides PORT and server.port")
	cmd.Flags().StringVar(&quizzesFile, "quizzes", "config/quizzes.yaml", "quizzes served when running without Postgres")
	return cmd
}

// backend is the storage selected by configuration: bun/pgx over Postgres,
// or the in-memory store when no database is configured.
type backend struct {
	store      app.Store
	quizzes    app.QuizSource
	scoreboard app.ScoreboardRepository
	closers    []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag, quizzesFile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	be, err := openBackend(ctx, cfg, quizzesFile, logger)
	if err != nil {
		return err
	}
	defer be.close()

	ttl := config.TTLDuration(cfg.Scoreboard.CacheTTL, defaultCacheTTL)
	cache, closeCache := openScoreboardCache(ctx, cfg, be.scoreboard, ttl, logger)
	defer closeCache()

	publisher, err := amqp.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
	if err != nil {
		logger.Warn("event publisher unavailable, continuing without events", zap.Error(err))
	}

	m := metrics.New()
	feed := app.NewScoreboardFeed()

	attemptOpts := []app.Option{
		app.WithLogger(logger),
		app.WithRecorder(m),
		// the cache must drop stale pages before the feed re-renders them
		app.WithNotifiers(cache, feed),
	}
	if publisher != nil {
		defer publisher.Close()
		attemptOpts = append(attemptOpts, app.WithPublisher(publisher))
	}
	attempts := app.NewAttemptService(be.store, be.quizzes, attemptOpts...)
	scoreboard := app.NewScoreboardService(cache, be.store,
		app.WithLogger(logger),
		app.WithDefaultPageSize(cfg.Scoreboard.PageSize),
	)

	router := transport.NewRouter(transport.RouterConfig{
		Attempts:       attempts,
		Scoreboard:     scoreboard,
		Feed:           feed,
		Metrics:        m,
		Logger:         logger,
		JWTSecret:      cfg.Auth.JWTSecret,
		HeaderIdentity: cfg.Auth.HeaderIdentity,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	if cfg.Auth.JWTSecret == "" && !cfg.Auth.HeaderIdentity {
		logger.Warn("no jwt secret and header identity disabled, authenticated routes will reject every request")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	// no WriteTimeout: it would cut long-lived websocket streams
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz attempt service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openBackend(ctx context.Context, cfg config.Config, quizzesFile string, logger *zap.Logger) (*backend, error) {
	if cfg.Postgres.URL == "" {
		quizzes, err := loadQuizFile(quizzesFile)
		if err != nil {
			logger.Warn("quiz file unavailable, serving built-in sample quiz",
				zap.String("file", quizzesFile), zap.Error(err))
			quizzes = sampleQuizzes()
		}
		store := memory.NewStoreWithQuizzes(quizzes...)
		logger.Info("using in-memory store", zap.Int("quizzes", len(quizzes)))
		return &backend{store: store, quizzes: store, scoreboard: store}, nil
	}

	if err := runMigrations(ctx, cfg, logger); err != nil {
		return nil, err
	}
	db := postgres.OpenDB(cfg.Postgres.URL)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		db.Close()
		return nil, err
	}
	store := postgres.NewStore(db)
	logger.Info("using postgres store")
	return &backend{
		store:      store,
		quizzes:    postgres.NewQuizLoader(pool),
		scoreboard: store,
		closers:    []func(){func() { db.Close() }, pool.Close},
	}, nil
}

type scoreboardCache interface {
	app.ScoreboardRepository
	app.ScoreboardNotifier
}

func openScoreboardCache(ctx context.Context, cfg config.Config, repo app.ScoreboardRepository, ttl time.Duration, logger *zap.Logger) (scoreboardCache, func()) {
	if cfg.Redis.Addr == "" {
		return memory.NewScoreboardCache(repo, ttl), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		// the cache falls through to the repository on every redis error
		logger.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	logger.Info("using redis scoreboard cache", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", ttl))
	return rediscache.NewScoreboardCache(client, repo, ttl, logger), func() { _ = client.Close() }
}

// sampleQuizzes is served when no quiz file is available in memory mode.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:    "quiz-1",
			Title: "General knowledge",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Points: 1,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:     "q2",
					Prompt: "Which planet is the largest?",
					Points: 2,
					Options: []domain.Option{
						{ID: "o4", Text: "Mars"},
						{ID: "o5", Text: "Jupiter", Correct: true},
						{ID: "o6", Text: "Venus"},
					},
				},
			},
		},
	}
}
