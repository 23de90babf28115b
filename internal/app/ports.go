package app

import (
	"context"
	"time"

	"quiz-attempt-service/internal/domain"
)

// QuizSource reads live quiz content owned by the authoring side.
type QuizSource interface {
	// GetQuizForAttempt returns the current quiz or domain.ErrQuizNotFound.
	GetQuizForAttempt(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
}

// Store persists attempts, answer records, best scores and score totals.
type Store interface {
	// WithinTx runs fn as one atomic unit of work. Any error rolls back every
	// write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error

	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, []domain.AnswerRecord, error)
	// ListQuizAttempts returns submitted attempts for (user, quiz), newest first.
	ListQuizAttempts(ctx context.Context, userID, quizID string) ([]domain.Attempt, error)
	// ListUserAttempts returns a page of submitted attempts, newest first, and the total count.
	ListUserAttempts(ctx context.Context, userID string, limit, offset int) ([]domain.Attempt, int, error)
	BestScores(ctx context.Context, userID string) (map[string]int, error)
	SubmittedCounts(ctx context.Context, userID string) (map[string]int, error)
	EnsureUserScore(ctx context.Context, userID, displayName string, at time.Time) error
}

// StoreTx is the write side available inside Store.WithinTx.
type StoreTx interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt, records []domain.AnswerRecord) error
	// LockAttempt loads the attempt and its records, holding a lock on the
	// attempt until the transaction ends.
	LockAttempt(ctx context.Context, attemptID string) (domain.Attempt, []domain.AnswerRecord, error)
	FinalizeAttempt(ctx context.Context, attempt domain.Attempt, records []domain.AnswerRecord) error

	// LockBestScore returns the best score for (user, quiz) and locks it.
	// ok is false when no best score exists yet.
	LockBestScore(ctx context.Context, userID, quizID string) (best int, ok bool, err error)
	// InsertBestScore claims the first best score for the pair. inserted is
	// false when a concurrent transaction committed one first.
	InsertBestScore(ctx context.Context, best domain.BestScore) (inserted bool, err error)
	UpdateBestScore(ctx context.Context, best domain.BestScore) error

	// AddToUserTotal applies a delta to the user's total, upserting the row.
	AddToUserTotal(ctx context.Context, userID string, delta, completed int, at time.Time) (domain.UserScoreTotal, error)
	EnsureUserScore(ctx context.Context, userID, displayName string, at time.Time) error
}

// ScoreboardRepository serves ranked scoreboard reads.
type ScoreboardRepository interface {
	RankedPage(ctx context.Context, offset, limit int) ([]domain.ScoreboardEntry, error)
	CountEntries(ctx context.Context) (int, error)
	// UserStanding returns the user's ranked entry or domain.ErrUserScoreNotFound.
	UserStanding(ctx context.Context, userID string) (domain.ScoreboardEntry, error)
	Stats(ctx context.Context) (domain.ScoreboardStats, error)
}

// ScoreboardNotifier is told, after commit, that a user's total changed.
type ScoreboardNotifier interface {
	ScoreboardChanged(ctx context.Context, change domain.ScoreChange)
}

// EventPublisher emits submission events after commit.
type EventPublisher interface {
	PublishSubmission(ctx context.Context, event domain.SubmissionEvent) error
}

// Recorder receives operational counters.
type Recorder interface {
	AttemptStarted()
	AttemptSubmitted(outcome string)
	ScoreRaised(delta int)
}

type nopRecorder struct{}

func (nopRecorder) AttemptStarted()         {}
func (nopRecorder) AttemptSubmitted(string) {}
func (nopRecorder) ScoreRaised(int)         {}
