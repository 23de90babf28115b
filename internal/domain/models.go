package domain

import "time"

// AttemptStatus is the lifecycle state of an attempt. The only transition is
// StatusInProgress -> StatusSubmitted.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
)

// Attempt is one user's run at one quiz, frozen at start time.
type Attempt struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	// QuizID is empty once the source quiz has been deleted.
	QuizID              string        `json:"quizId,omitempty"`
	QuizTitle           string        `json:"quizTitle"`
	TotalPointsPossible int           `json:"totalPointsPossible"`
	TotalScore          *int          `json:"totalScore"`
	Status              AttemptStatus `json:"status"`
	StartedAt           time.Time     `json:"startedAt"`
	SubmittedAt         *time.Time    `json:"submittedAt,omitempty"`
}

// AnswerRecord is one snapshotted question within an attempt. Outcome fields
// stay nil until the attempt is submitted.
type AnswerRecord struct {
	ID        string `json:"id"`
	AttemptID string `json:"attemptId"`
	// QuestionID is empty once the source question has been deleted.
	QuestionID   string   `json:"questionId,omitempty"`
	Position     int      `json:"position"`
	Prompt       string   `json:"prompt"`
	Points       int      `json:"points"`
	Options      []string `json:"options"`
	CorrectText  string   `json:"-"`
	SelectedText *string  `json:"selectedText,omitempty"`
	IsCorrect    *bool    `json:"isCorrect,omitempty"`
	PointsEarned *int     `json:"pointsEarned,omitempty"`
}

// AnswerSubmission is the client's selection for one question. Position is the
// snapshot position; QuestionID is accepted when Position is zero.
type AnswerSubmission struct {
	Position     int    `json:"position"`
	QuestionID   string `json:"questionId,omitempty"`
	SelectedText string `json:"selectedText"`
}

// BestScore is the highest submitted score a user has for one quiz.
type BestScore struct {
	UserID    string
	QuizID    string
	Score     int
	AttemptID string
	UpdatedAt time.Time
}

// UserScoreTotal is the pre-aggregated scoreboard row for a user.
type UserScoreTotal struct {
	UserID           string    `json:"userId"`
	DisplayName      string    `json:"displayName"`
	TotalScore       int       `json:"totalScore"`
	QuizzesCompleted int       `json:"quizzesCompleted"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// AttemptQuestion is a question as shown while taking a quiz. It never
// carries the correct answer.
type AttemptQuestion struct {
	Position   int      `json:"position"`
	QuestionID string   `json:"questionId,omitempty"`
	Prompt     string   `json:"prompt"`
	Points     int      `json:"points"`
	Options    []string `json:"options"`
}

// AttemptView is the quiz-taking view of an in-progress attempt.
type AttemptView struct {
	AttemptID           string            `json:"attemptId"`
	QuizTitle           string            `json:"quizTitle"`
	TotalPointsPossible int               `json:"totalPointsPossible"`
	TotalQuestions      int               `json:"totalQuestions"`
	Questions           []AttemptQuestion `json:"questions"`
}

// AnswerResult is the per-question breakdown of a submitted attempt.
type AnswerResult struct {
	Position     int    `json:"position"`
	Prompt       string `json:"prompt"`
	Points       int    `json:"points"`
	SelectedText string `json:"selectedText"`
	CorrectText  string `json:"correctText"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
}

// AttemptResult summarizes a submitted attempt.
type AttemptResult struct {
	AttemptID           string         `json:"attemptId"`
	QuizTitle           string         `json:"quizTitle"`
	TotalScore          int            `json:"totalScore"`
	TotalPointsPossible int            `json:"totalPointsPossible"`
	Percentage          float64        `json:"percentage"`
	SubmittedAt         time.Time      `json:"submittedAt"`
	IsNewBest           bool           `json:"isNewBest"`
	Answers             []AnswerResult `json:"answers"`
}

// HistoryItem is one submitted attempt in a user's history.
type HistoryItem struct {
	AttemptID           string    `json:"attemptId"`
	QuizID              string    `json:"quizId,omitempty"`
	QuizTitle           string    `json:"quizTitle"`
	TotalScore          int       `json:"totalScore"`
	TotalPointsPossible int       `json:"totalPointsPossible"`
	Percentage          float64   `json:"percentage"`
	SubmittedAt         time.Time `json:"submittedAt"`
	IsBest              bool      `json:"isBest"`
}

// AttemptList is a page of a user's submitted attempts.
type AttemptList struct {
	Attempts []HistoryItem `json:"attempts"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// QuizSummary is a live quiz as listed in the quiz browser.
type QuizSummary struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	QuestionCount      int      `json:"questionCount"`
	TotalPoints        int      `json:"totalPoints"`
	UserAttempts       int      `json:"userAttempts"`
	UserBestScore      *int     `json:"userBestScore"`
	UserBestPercentage *float64 `json:"userBestPercentage"`
}

// ScoreboardEntry is one ranked scoreboard row.
type ScoreboardEntry struct {
	Rank             int       `json:"rank"`
	UserID           string    `json:"userId"`
	DisplayName      string    `json:"displayName"`
	TotalScore       int       `json:"totalScore"`
	QuizzesCompleted int       `json:"quizzesCompleted"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Pagination describes where a scoreboard page sits.
type Pagination struct {
	Page         int  `json:"page"`
	PageSize     int  `json:"pageSize"`
	TotalEntries int  `json:"totalEntries"`
	TotalPages   int  `json:"totalPages"`
	HasNext      bool `json:"hasNext"`
	HasPrev      bool `json:"hasPrev"`
}

// ScoreboardPage is one page of the ranked scoreboard.
type ScoreboardPage struct {
	Entries    []ScoreboardEntry `json:"entries"`
	Pagination Pagination        `json:"pagination"`
}

// UserRank locates a user on the scoreboard.
type UserRank struct {
	UserID           string `json:"userId"`
	Rank             int    `json:"rank"`
	Page             int    `json:"page"`
	TotalScore       int    `json:"totalScore"`
	QuizzesCompleted int    `json:"quizzesCompleted"`
}

// ScoreboardStats aggregates the whole scoreboard.
type ScoreboardStats struct {
	TotalUsers        int     `json:"totalUsers"`
	TotalQuizzesTaken int     `json:"totalQuizzesTaken"`
	HighestScore      int     `json:"highestScore"`
	AverageScore      float64 `json:"averageScore"`
}

// ScoreChange is emitted after a submission raised a user's scoreboard total.
type ScoreChange struct {
	UserID     string    `json:"userId"`
	QuizID     string    `json:"quizId"`
	Delta      int       `json:"delta"`
	TotalScore int       `json:"totalScore"`
	At         time.Time `json:"at"`
}

// SubmissionEvent is published once per successful submission.
type SubmissionEvent struct {
	AttemptID           string    `json:"attemptId"`
	UserID              string    `json:"userId"`
	QuizID              string    `json:"quizId,omitempty"`
	TotalScore          int       `json:"totalScore"`
	TotalPointsPossible int       `json:"totalPointsPossible"`
	IsNewBest           bool      `json:"isNewBest"`
	SubmittedAt         time.Time `json:"submittedAt"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID       string   `json:"id" yaml:"id"`
	Position int      `json:"position" yaml:"position"`
	Prompt   string   `json:"prompt" yaml:"prompt"`
	Options  []Option `json:"options" yaml:"options"`
	Points   int      `json:"points" yaml:"points"` // defaults to 1 if zero
}

// Quiz is the live, authored quiz as read from the quiz source.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}
