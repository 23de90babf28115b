package postgres

import (
	"context"
	"fmt"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ app.QuizSource = (*QuizLoader)(nil)

// QuizLoader reads live quiz content from the authoring tables and writes it
// for seeding.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) GetQuizForAttempt(ctx context.Context, quizID string) (domain.Quiz, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT q.title, qs.id, qs.position, qs.prompt, qs.points, o.id, o.text, o.is_correct
		FROM quizzes q
		LEFT JOIN questions qs ON qs.quiz_id = q.id
		LEFT JOIN answer_options o ON o.question_id = qs.id
		WHERE q.id = $1
		ORDER BY qs.position, qs.id, o.position, o.id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	defer rows.Close()

	quiz := domain.Quiz{ID: quizID}
	found := false
	for rows.Next() {
		var (
			questionID, prompt   *string
			position, points     *int
			optionID, optionText *string
			optionCorrect        *bool
		)
		if err := rows.Scan(&quiz.Title, &questionID, &position, &prompt, &points, &optionID, &optionText, &optionCorrect); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan quiz: %w", err)
		}
		found = true
		if questionID == nil {
			continue
		}
		n := len(quiz.Questions)
		if n == 0 || quiz.Questions[n-1].ID != *questionID {
			quiz.Questions = append(quiz.Questions, domain.Question{
				ID:       *questionID,
				Position: deref(position),
				Prompt:   deref(prompt),
				Points:   deref(points),
			})
			n++
		}
		if optionID != nil {
			quiz.Questions[n-1].Options = append(quiz.Questions[n-1].Options, domain.Option{
				ID:      *optionID,
				Text:    deref(optionText),
				Correct: deref(optionCorrect),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if !found {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (l *QuizLoader) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.title, COUNT(qs.id), COALESCE(SUM(qs.points), 0)
		FROM quizzes q
		LEFT JOIN questions qs ON qs.quiz_id = q.id
		GROUP BY q.id
		ORDER BY q.created_at DESC, q.id`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	out := []domain.QuizSummary{}
	for rows.Next() {
		var s domain.QuizSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.QuestionCount, &s.TotalPoints); err != nil {
			return nil, fmt.Errorf("scan quiz summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveQuiz creates or replaces a quiz. Questions keep their IDs across saves
// so snapshots keep referencing them; questions missing from quiz are deleted.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	quiz = normalizeQuiz(quiz)
	err := l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO quizzes (id, title) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = now()`,
			quiz.ID, quiz.Title)
		if err != nil {
			return fmt.Errorf("upsert quiz: %w", err)
		}

		keep := make([]string, len(quiz.Questions))
		for i, q := range quiz.Questions {
			keep[i] = q.ID
		}
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id = $1 AND NOT (id = ANY($2))`, quiz.ID, keep); err != nil {
			return fmt.Errorf("prune questions: %w", err)
		}

		for _, q := range quiz.Questions {
			_, err := tx.Exec(ctx, `
				INSERT INTO questions (id, quiz_id, position, prompt, points) VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position, prompt = EXCLUDED.prompt, points = EXCLUDED.points`,
				q.ID, quiz.ID, q.Position, q.Prompt, q.Points)
			if err != nil {
				return fmt.Errorf("upsert question %s: %w", q.ID, err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM answer_options WHERE question_id = $1`, q.ID); err != nil {
				return fmt.Errorf("reset options %s: %w", q.ID, err)
			}
			if len(q.Options) == 0 {
				continue
			}
			batch := &pgx.Batch{}
			for i, o := range q.Options {
				batch.Queue(`INSERT INTO answer_options (id, question_id, position, text, is_correct) VALUES ($1, $2, $3, $4, $5)`,
					o.ID, q.ID, i+1, o.Text, o.Correct)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert options %s: %w", q.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// DeleteQuiz removes a quiz. Foreign keys detach attempts and answer records
// and drop the quiz's best scores.
func (l *QuizLoader) DeleteQuiz(ctx context.Context, quizID string) (bool, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	if err != nil {
		return false, fmt.Errorf("delete quiz: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func normalizeQuiz(quiz domain.Quiz) domain.Quiz {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Position == 0 {
			q.Position = i + 1
		}
		if q.Points <= 0 {
			q.Points = 1
		}
		options := make([]domain.Option, len(q.Options))
		for j, o := range q.Options {
			if o.ID == "" {
				o.ID = uuid.NewString()
			}
			options[j] = o
		}
		q.Options = options
		questions[i] = q
	}
	quiz.Questions = questions
	return quiz
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
