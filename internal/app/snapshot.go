package app

import (
	"sort"
	"time"

	"quiz-attempt-service/internal/domain"
)

// buildSnapshot deep-copies the live quiz into a new in-progress attempt and
// one record per question. Questions are ordered by authored position and
// renumbered 1..N so snapshot positions are unique and contiguous. A quiz with
// no questions, or with a question worth no points, is not playable.
func buildSnapshot(quiz domain.Quiz, userID string, now time.Time, newID func() string) (domain.Attempt, []domain.AnswerRecord, error) {
	if len(quiz.Questions) == 0 {
		return domain.Attempt{}, nil, domain.ErrQuizNotPlayable
	}
	for _, q := range quiz.Questions {
		if q.Points <= 0 {
			return domain.Attempt{}, nil, domain.ErrQuizNotPlayable
		}
	}

	questions := make([]domain.Question, len(quiz.Questions))
	copy(questions, quiz.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Position < questions[j].Position
	})

	attempt := domain.Attempt{
		ID:        newID(),
		UserID:    userID,
		QuizID:    quiz.ID,
		QuizTitle: quiz.Title,
		Status:    domain.StatusInProgress,
		StartedAt: now,
	}

	records := make([]domain.AnswerRecord, 0, len(questions))
	for i, q := range questions {
		options := make([]string, len(q.Options))
		for j, opt := range q.Options {
			options[j] = opt.Text
		}
		records = append(records, domain.AnswerRecord{
			ID:          newID(),
			AttemptID:   attempt.ID,
			QuestionID:  q.ID,
			Position:    i + 1,
			Prompt:      q.Prompt,
			Points:      q.Points,
			Options:     options,
			CorrectText: correctText(q),
		})
		attempt.TotalPointsPossible += q.Points
	}
	return attempt, records, nil
}

func correctText(q domain.Question) string {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.Text
		}
	}
	return ""
}

func attemptView(attempt domain.Attempt, records []domain.AnswerRecord) domain.AttemptView {
	questions := make([]domain.AttemptQuestion, len(records))
	for i, r := range records {
		options := make([]string, len(r.Options))
		copy(options, r.Options)
		questions[i] = domain.AttemptQuestion{
			Position:   r.Position,
			QuestionID: r.QuestionID,
			Prompt:     r.Prompt,
			Points:     r.Points,
			Options:    options,
		}
	}
	return domain.AttemptView{
		AttemptID:           attempt.ID,
		QuizTitle:           attempt.QuizTitle,
		TotalPointsPossible: attempt.TotalPointsPossible,
		TotalQuestions:      len(questions),
		Questions:           questions,
	}
}
