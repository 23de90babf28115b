package postgres

import (
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/uptrace/bun"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID                  string     `bun:"id,pk"`
	UserID              string     `bun:"user_id,notnull"`
	QuizID              string     `bun:"quiz_id,nullzero"`
	QuizTitle           string     `bun:"quiz_title,notnull"`
	TotalPointsPossible int        `bun:"total_points_possible,notnull"`
	TotalScore          *int       `bun:"total_score"`
	Status              string     `bun:"status,notnull"`
	StartedAt           time.Time  `bun:"started_at,notnull"`
	SubmittedAt         *time.Time `bun:"submitted_at"`
}

type answerRecordRow struct {
	bun.BaseModel `bun:"table:answer_records,alias:ar"`

	ID           string   `bun:"id,pk"`
	AttemptID    string   `bun:"attempt_id,notnull"`
	QuestionID   string   `bun:"question_id,nullzero"`
	Position     int      `bun:"position,notnull"`
	Prompt       string   `bun:"prompt,notnull"`
	Points       int      `bun:"points,notnull"`
	Options      []string `bun:"options,array"`
	CorrectText  string   `bun:"correct_text,notnull"`
	SelectedText *string  `bun:"selected_text"`
	IsCorrect    *bool    `bun:"is_correct"`
	PointsEarned *int     `bun:"points_earned"`
}

type bestScoreRow struct {
	bun.BaseModel `bun:"table:best_scores,alias:bs"`

	UserID    string    `bun:"user_id,pk"`
	QuizID    string    `bun:"quiz_id,pk"`
	Score     int       `bun:"score,notnull"`
	AttemptID string    `bun:"attempt_id,nullzero"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type userScoreRow struct {
	bun.BaseModel `bun:"table:user_scores,alias:us"`

	UserID           string    `bun:"user_id,pk"`
	DisplayName      string    `bun:"display_name,notnull"`
	TotalScore       int       `bun:"total_score,notnull"`
	QuizzesCompleted int       `bun:"quizzes_completed,notnull"`
	LastUpdated      time.Time `bun:"last_updated,notnull"`
}

type rankedRow struct {
	UserID           string    `bun:"user_id"`
	DisplayName      string    `bun:"display_name"`
	TotalScore       int       `bun:"total_score"`
	QuizzesCompleted int       `bun:"quizzes_completed"`
	LastUpdated      time.Time `bun:"last_updated"`
	Rank             int       `bun:"rank"`
}

func fromAttempt(a domain.Attempt) *attemptRow {
	return &attemptRow{
		ID:                  a.ID,
		UserID:              a.UserID,
		QuizID:              a.QuizID,
		QuizTitle:           a.QuizTitle,
		TotalPointsPossible: a.TotalPointsPossible,
		TotalScore:          a.TotalScore,
		Status:              string(a.Status),
		StartedAt:           a.StartedAt,
		SubmittedAt:         a.SubmittedAt,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:                  r.ID,
		UserID:              r.UserID,
		QuizID:              r.QuizID,
		QuizTitle:           r.QuizTitle,
		TotalPointsPossible: r.TotalPointsPossible,
		TotalScore:          r.TotalScore,
		Status:              domain.AttemptStatus(r.Status),
		StartedAt:           r.StartedAt,
		SubmittedAt:         r.SubmittedAt,
	}
}

func fromRecords(records []domain.AnswerRecord) []answerRecordRow {
	rows := make([]answerRecordRow, len(records))
	for i, r := range records {
		options := r.Options
		if options == nil {
			options = []string{}
		}
		rows[i] = answerRecordRow{
			ID:           r.ID,
			AttemptID:    r.AttemptID,
			QuestionID:   r.QuestionID,
			Position:     r.Position,
			Prompt:       r.Prompt,
			Points:       r.Points,
			Options:      options,
			CorrectText:  r.CorrectText,
			SelectedText: r.SelectedText,
			IsCorrect:    r.IsCorrect,
			PointsEarned: r.PointsEarned,
		}
	}
	return rows
}

func toRecords(rows []answerRecordRow) []domain.AnswerRecord {
	records := make([]domain.AnswerRecord, len(rows))
	for i, r := range rows {
		records[i] = domain.AnswerRecord{
			ID:           r.ID,
			AttemptID:    r.AttemptID,
			QuestionID:   r.QuestionID,
			Position:     r.Position,
			Prompt:       r.Prompt,
			Points:       r.Points,
			Options:      r.Options,
			CorrectText:  r.CorrectText,
			SelectedText: r.SelectedText,
			IsCorrect:    r.IsCorrect,
			PointsEarned: r.PointsEarned,
		}
	}
	return records
}

func (r userScoreRow) toDomain() domain.UserScoreTotal {
	return domain.UserScoreTotal{
		UserID:           r.UserID,
		DisplayName:      r.DisplayName,
		TotalScore:       r.TotalScore,
		QuizzesCompleted: r.QuizzesCompleted,
		LastUpdated:      r.LastUpdated,
	}
}

func (r rankedRow) toDomain() domain.ScoreboardEntry {
	return domain.ScoreboardEntry{
		Rank:             r.Rank,
		UserID:           r.UserID,
		DisplayName:      r.DisplayName,
		TotalScore:       r.TotalScore,
		QuizzesCompleted: r.QuizzesCompleted,
		LastUpdated:      r.LastUpdated,
	}
}
