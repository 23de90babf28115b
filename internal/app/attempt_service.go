package app

import (
	"context"
	"errors"

	"quiz-attempt-service/internal/domain"

	"go.uber.org/zap"
)

// AttemptService contains the quiz-taking use cases: snapshotting, submission,
// scoring, best-score aggregation and the history read paths.
type AttemptService struct {
	store   Store
	quizzes QuizSource
	opts    options
}

func NewAttemptService(store Store, quizzes QuizSource, opts ...Option) *AttemptService {
	return &AttemptService{store: store, quizzes: quizzes, opts: buildOptions(opts)}
}

// StartAttempt snapshots the current quiz into a new in-progress attempt.
// displayName is used to create the user's scoreboard entry if missing.
func (s *AttemptService) StartAttempt(ctx context.Context, userID, displayName, quizID string) (domain.AttemptView, error) {
	quiz, err := s.quizzes.GetQuizForAttempt(ctx, quizID)
	if err != nil {
		return domain.AttemptView{}, err
	}

	now := s.opts.now()
	attempt, records, err := buildSnapshot(quiz, userID, now, s.opts.newID)
	if err != nil {
		return domain.AttemptView{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx StoreTx) error {
		if err := tx.EnsureUserScore(ctx, userID, displayName, now); err != nil {
			return err
		}
		return tx.CreateAttempt(ctx, attempt, records)
	})
	if err != nil {
		s.opts.logger.Error("start attempt failed", zap.String("quizId", quizID), zap.String("userId", userID), zap.Error(err))
		return domain.AttemptView{}, err
	}

	s.opts.recorder.AttemptStarted()
	s.opts.logger.Info("attempt started",
		zap.String("attemptId", attempt.ID),
		zap.String("userId", userID),
		zap.String("quizId", quizID),
		zap.Int("questions", len(records)),
	)
	return attemptView(attempt, records), nil
}

// ResumeAttempt returns the taking view of an in-progress attempt from its
// snapshot alone.
func (s *AttemptService) ResumeAttempt(ctx context.Context, attemptID, userID string) (domain.AttemptView, error) {
	attempt, records, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	if attempt.UserID != userID {
		return domain.AttemptView{}, domain.ErrForbidden
	}
	if attempt.Status != domain.StatusInProgress {
		return domain.AttemptView{}, domain.ErrAlreadySubmitted
	}
	return attemptView(attempt, records), nil
}

// Submit finalizes an in-progress attempt. Scoring, the attempt transition and
// the scoreboard update commit together or not at all; a retried call
// against a submitted attempt returns domain.ErrAlreadySubmitted.
func (s *AttemptService) Submit(ctx context.Context, attemptID, userID string, answers []domain.AnswerSubmission) (domain.AttemptResult, error) {
	var (
		attempt domain.Attempt
		records []domain.AnswerRecord
		agg     aggregation
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx StoreTx) error {
		var err error
		attempt, records, err = tx.LockAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if attempt.UserID != userID {
			return domain.ErrForbidden
		}
		if attempt.Status != domain.StatusInProgress {
			return domain.ErrAlreadySubmitted
		}

		selections, err := matchSubmissions(records, answers)
		if err != nil {
			return err
		}

		now := s.opts.now()
		total := scoreRecords(records, selections)
		attempt.TotalScore = &total
		attempt.SubmittedAt = &now
		attempt.Status = domain.StatusSubmitted
		if err := tx.FinalizeAttempt(ctx, attempt, records); err != nil {
			return err
		}

		agg, err = recordSubmission(ctx, tx, attempt, total, now)
		return err
	})
	if err != nil {
		s.logRejected(attemptID, userID, err)
		return domain.AttemptResult{}, err
	}

	s.opts.recorder.AttemptSubmitted("submitted")
	result := buildResult(attempt, records, agg.newBest)
	s.opts.logger.Info("attempt submitted",
		zap.String("attemptId", attempt.ID),
		zap.String("userId", userID),
		zap.Int("score", result.TotalScore),
		zap.Int("possible", result.TotalPointsPossible),
		zap.Bool("newBest", agg.newBest),
		zap.Bool("detached", agg.skipped),
	)
	s.afterCommit(ctx, attempt, result, agg)
	return result, nil
}

func (s *AttemptService) logRejected(attemptID, userID string, err error) {
	fields := []zap.Field{zap.String("attemptId", attemptID), zap.String("userId", userID), zap.Error(err)}
	switch {
	case errors.Is(err, domain.ErrAlreadySubmitted):
		s.opts.recorder.AttemptSubmitted("already_submitted")
		s.opts.logger.Warn("submit rejected", fields...)
	case errors.Is(err, domain.ErrIncompleteSubmission), errors.Is(err, domain.ErrInvalidAnswerReference):
		s.opts.recorder.AttemptSubmitted("invalid")
		s.opts.logger.Warn("submit rejected", fields...)
	case errors.Is(err, domain.ErrAttemptNotFound), errors.Is(err, domain.ErrForbidden):
		s.opts.recorder.AttemptSubmitted("denied")
		s.opts.logger.Warn("submit rejected", fields...)
	default:
		s.opts.recorder.AttemptSubmitted("error")
		s.opts.logger.Error("submit failed", fields...)
	}
}

// afterCommit runs side effects that must never affect the committed state.
func (s *AttemptService) afterCommit(ctx context.Context, attempt domain.Attempt, result domain.AttemptResult, agg aggregation) {
	if agg.raised() {
		s.opts.recorder.ScoreRaised(agg.delta)
		change := domain.ScoreChange{
			UserID:     attempt.UserID,
			QuizID:     attempt.QuizID,
			Delta:      agg.delta,
			TotalScore: agg.total.TotalScore,
			At:         result.SubmittedAt,
		}
		for _, n := range s.opts.notifiers {
			n.ScoreboardChanged(ctx, change)
		}
	}
	if s.opts.publisher == nil {
		return
	}
	event := domain.SubmissionEvent{
		AttemptID:           attempt.ID,
		UserID:              attempt.UserID,
		QuizID:              attempt.QuizID,
		TotalScore:          result.TotalScore,
		TotalPointsPossible: result.TotalPointsPossible,
		IsNewBest:           result.IsNewBest,
		SubmittedAt:         result.SubmittedAt,
	}
	if err := s.opts.publisher.PublishSubmission(ctx, event); err != nil {
		s.opts.logger.Warn("publish submission failed", zap.String("attemptId", attempt.ID), zap.Error(err))
	}
}

// GetResults returns the breakdown of a submitted attempt owned by userID.
func (s *AttemptService) GetResults(ctx context.Context, attemptID, userID string) (domain.AttemptResult, error) {
	attempt, records, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if attempt.UserID != userID {
		return domain.AttemptResult{}, domain.ErrForbidden
	}
	if attempt.Status != domain.StatusSubmitted {
		return domain.AttemptResult{}, domain.ErrNotSubmittedYet
	}
	return buildResult(attempt, records, false), nil
}

// GetQuizHistory lists the user's submitted attempts on a live quiz. Every
// attempt whose score equals the current best is flagged, ties included.
func (s *AttemptService) GetQuizHistory(ctx context.Context, userID, quizID string) ([]domain.HistoryItem, error) {
	if _, err := s.quizzes.GetQuizForAttempt(ctx, quizID); err != nil {
		return nil, err
	}
	attempts, err := s.store.ListQuizAttempts(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	best, err := s.store.BestScores(ctx, userID)
	if err != nil {
		return nil, err
	}
	return historyItems(attempts, best), nil
}

// ListMyAttempts pages through the user's submitted attempts across quizzes.
func (s *AttemptService) ListMyAttempts(ctx context.Context, userID string, limit, offset int) (domain.AttemptList, error) {
	if limit < 1 || limit > MaxPageSize {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	attempts, total, err := s.store.ListUserAttempts(ctx, userID, limit, offset)
	if err != nil {
		return domain.AttemptList{}, err
	}
	best, err := s.store.BestScores(ctx, userID)
	if err != nil {
		return domain.AttemptList{}, err
	}
	return domain.AttemptList{
		Attempts: historyItems(attempts, best),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// BrowseQuizzes lists live quizzes with the user's attempt stats.
func (s *AttemptService) BrowseQuizzes(ctx context.Context, userID string) ([]domain.QuizSummary, error) {
	quizzes, err := s.quizzes.ListQuizzes(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.SubmittedCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	best, err := s.store.BestScores(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range quizzes {
		q := &quizzes[i]
		q.UserAttempts = counts[q.ID]
		if score, ok := best[q.ID]; ok {
			q.UserBestScore = &score
			if q.TotalPoints > 0 {
				pct := percentage(score, q.TotalPoints)
				q.UserBestPercentage = &pct
			}
		}
	}
	return quizzes, nil
}

func historyItems(attempts []domain.Attempt, best map[string]int) []domain.HistoryItem {
	items := make([]domain.HistoryItem, 0, len(attempts))
	for _, a := range attempts {
		score := 0
		if a.TotalScore != nil {
			score = *a.TotalScore
		}
		item := domain.HistoryItem{
			AttemptID:           a.ID,
			QuizID:              a.QuizID,
			QuizTitle:           a.QuizTitle,
			TotalScore:          score,
			TotalPointsPossible: a.TotalPointsPossible,
			Percentage:          percentage(score, a.TotalPointsPossible),
		}
		if a.SubmittedAt != nil {
			item.SubmittedAt = *a.SubmittedAt
		}
		if b, ok := best[a.QuizID]; ok && a.QuizID != "" {
			item.IsBest = score == b
		}
		items = append(items, item)
	}
	return items
}

func buildResult(attempt domain.Attempt, records []domain.AnswerRecord, newBest bool) domain.AttemptResult {
	score := 0
	if attempt.TotalScore != nil {
		score = *attempt.TotalScore
	}
	result := domain.AttemptResult{
		AttemptID:           attempt.ID,
		QuizTitle:           attempt.QuizTitle,
		TotalScore:          score,
		TotalPointsPossible: attempt.TotalPointsPossible,
		Percentage:          percentage(score, attempt.TotalPointsPossible),
		IsNewBest:           newBest,
		Answers:             make([]domain.AnswerResult, 0, len(records)),
	}
	if attempt.SubmittedAt != nil {
		result.SubmittedAt = *attempt.SubmittedAt
	}
	for _, r := range records {
		ar := domain.AnswerResult{
			Position:    r.Position,
			Prompt:      r.Prompt,
			Points:      r.Points,
			CorrectText: r.CorrectText,
		}
		if r.SelectedText != nil {
			ar.SelectedText = *r.SelectedText
		}
		if r.IsCorrect != nil {
			ar.IsCorrect = *r.IsCorrect
		}
		if r.PointsEarned != nil {
			ar.PointsEarned = *r.PointsEarned
		}
		result.Answers = append(result.Answers, ar)
	}
	return result
}
