package app

import (
	"context"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
)

// aggregation is what recordSubmission did to the scoreboard.
type aggregation struct {
	skipped   bool // quiz was deleted; scoreboard untouched
	newBest   bool
	delta     int
	completed int
	total     domain.UserScoreTotal
}

func (a aggregation) raised() bool {
	return a.delta > 0 || a.completed > 0
}

// recordSubmission raises the (user, quiz) best score and applies exactly the
// delta to the user's total. It must run inside the submission transaction;
// the best-score row lock serializes concurrent submissions for the same pair.
func recordSubmission(ctx context.Context, tx StoreTx, attempt domain.Attempt, newScore int, now time.Time) (aggregation, error) {
	if attempt.QuizID == "" {
		return aggregation{skipped: true}, nil
	}

	best := domain.BestScore{
		UserID:    attempt.UserID,
		QuizID:    attempt.QuizID,
		Score:     newScore,
		AttemptID: attempt.ID,
		UpdatedAt: now,
	}

	var out aggregation
	previous, ok, err := tx.LockBestScore(ctx, attempt.UserID, attempt.QuizID)
	if err != nil {
		return aggregation{}, fmt.Errorf("lock best score: %w", err)
	}
	if !ok {
		inserted, err := tx.InsertBestScore(ctx, best)
		if err != nil {
			return aggregation{}, fmt.Errorf("insert best score: %w", err)
		}
		if inserted {
			out = aggregation{newBest: true, delta: newScore, completed: 1}
		} else {
			// lost the race for the first best; read the committed one
			previous, ok, err = tx.LockBestScore(ctx, attempt.UserID, attempt.QuizID)
			if err != nil {
				return aggregation{}, fmt.Errorf("relock best score: %w", err)
			}
			if !ok {
				return aggregation{}, fmt.Errorf("best score for user %s quiz %s vanished", attempt.UserID, attempt.QuizID)
			}
		}
	}
	if ok && newScore > previous {
		if err := tx.UpdateBestScore(ctx, best); err != nil {
			return aggregation{}, fmt.Errorf("update best score: %w", err)
		}
		out = aggregation{newBest: true, delta: newScore - previous}
	}

	total, err := tx.AddToUserTotal(ctx, attempt.UserID, out.delta, out.completed, now)
	if err != nil {
		return aggregation{}, fmt.Errorf("update user total: %w", err)
	}
	out.total = total
	return out, nil
}
