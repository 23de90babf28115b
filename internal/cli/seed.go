package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/postgres"
	"quiz-attempt-service/internal/logging"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// NewSeedCmd loads authored quizzes from YAML into Postgres. Quizzes and
// questions keep their ids across runs, so re-seeding edits in place.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert quizzes from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runSeed(cmd.Context(), cfg, file, logger)
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/quizzes.yaml", "YAML file with a top-level quizzes list")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config, file string, logger *zap.Logger) error {
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	quizzes, err := loadQuizFile(file)
	if err != nil {
		return err
	}
	if err := runMigrations(ctx, cfg, logger); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := postgres.NewQuizLoader(pool)
	for _, q := range quizzes {
		saved, err := loader.SaveQuiz(ctx, q)
		if err != nil {
			return fmt.Errorf("seed quiz %q: %w", q.Title, err)
		}
		logger.Info("quiz seeded",
			zap.String("quizId", saved.ID),
			zap.String("title", saved.Title),
			zap.Int("questions", len(saved.Questions)),
		)
	}
	return nil
}

func loadQuizFile(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f quizFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse quizzes %s: %w", path, err)
	}
	for i, q := range f.Quizzes {
		if q.Title == "" {
			return nil, fmt.Errorf("quiz #%d in %s has no title", i+1, path)
		}
	}
	return f.Quizzes, nil
}
