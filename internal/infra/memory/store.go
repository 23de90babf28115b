package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/google/uuid"
)

const anonymous = "Anonymous"

var (
	_ app.Store                = (*Store)(nil)
	_ app.QuizSource           = (*Store)(nil)
	_ app.ScoreboardRepository = (*Store)(nil)
)

// Store is an in-memory implementation of the persistence collaborator and
// the quiz source. Transactions are serialized by a single lock and applied
// to a copy of the state, so a failed transaction leaves nothing behind.
type Store struct {
	mu    sync.RWMutex
	state *state
	seq   int
}

type bestKey struct {
	userID string
	quizID string
}

type storedQuiz struct {
	quiz domain.Quiz
	seq  int
}

type state struct {
	quizzes  map[string]storedQuiz
	attempts map[string]domain.Attempt
	records  map[string][]domain.AnswerRecord
	best     map[bestKey]domain.BestScore
	totals   map[string]domain.UserScoreTotal
}

func newState() *state {
	return &state{
		quizzes:  make(map[string]storedQuiz),
		attempts: make(map[string]domain.Attempt),
		records:  make(map[string][]domain.AnswerRecord),
		best:     make(map[bestKey]domain.BestScore),
		totals:   make(map[string]domain.UserScoreTotal),
	}
}

// clone copies the maps. Values are replaced, never mutated in place, so the
// copies may share record slices with the original.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.quizzes {
		c.quizzes[k] = v
	}
	for k, v := range s.attempts {
		c.attempts[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.best {
		c.best[k] = v
	}
	for k, v := range s.totals {
		c.totals[k] = v
	}
	return c
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// NewStoreWithQuizzes seeds the store with quiz content (useful for tests/demos).
func NewStoreWithQuizzes(quizzes ...domain.Quiz) *Store {
	s := NewStore()
	for _, q := range quizzes {
		s.SaveQuiz(q)
	}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &tx{st: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, []domain.AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.state.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, nil, domain.ErrAttemptNotFound
	}
	return attempt, copyRecords(s.state.records[attemptID]), nil
}

func (s *Store) ListQuizAttempts(_ context.Context, userID, quizID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, a := range s.state.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.Status == domain.StatusSubmitted {
			out = append(out, a)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListUserAttempts(_ context.Context, userID string, limit, offset int) ([]domain.Attempt, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []domain.Attempt
	for _, a := range s.state.attempts {
		if a.UserID == userID && a.Status == domain.StatusSubmitted {
			all = append(all, a)
		}
	}
	sortNewestFirst(all)
	total := len(all)
	if offset >= total {
		return []domain.Attempt{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) BestScores(_ context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for k, b := range s.state.best {
		if k.userID == userID {
			out[k.quizID] = b.Score
		}
	}
	return out, nil
}

func (s *Store) SubmittedCounts(_ context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, a := range s.state.attempts {
		if a.UserID == userID && a.QuizID != "" && a.Status == domain.StatusSubmitted {
			out[a.QuizID]++
		}
	}
	return out, nil
}

func (s *Store) EnsureUserScore(ctx context.Context, userID, displayName string, at time.Time) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx app.StoreTx) error {
		return tx.EnsureUserScore(ctx, userID, displayName, at)
	})
}

// UserTotal returns the stored scoreboard total for a user.
func (s *Store) UserTotal(userID string) (domain.UserScoreTotal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.totals[userID]
	return t, ok
}

// BestScore returns the stored best score for (user, quiz).
func (s *Store) BestScore(userID, quizID string) (domain.BestScore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.best[bestKey{userID, quizID}]
	return b, ok
}

// Quiz source.

func (s *Store) GetQuizForAttempt(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.state.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return copyQuiz(stored.quiz), nil
}

func (s *Store) ListQuizzes(_ context.Context) ([]domain.QuizSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := make([]storedQuiz, 0, len(s.state.quizzes))
	for _, q := range s.state.quizzes {
		stored = append(stored, q)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq > stored[j].seq })

	out := make([]domain.QuizSummary, 0, len(stored))
	for _, sq := range stored {
		summary := domain.QuizSummary{
			ID:            sq.quiz.ID,
			Title:         sq.quiz.Title,
			QuestionCount: len(sq.quiz.Questions),
		}
		for _, q := range sq.quiz.Questions {
			summary.TotalPoints += q.Points
		}
		out = append(out, summary)
	}
	return out, nil
}

// SaveQuiz creates or replaces a quiz, assigning missing IDs and positions.
// Questions without positive points are worth one point.
func (s *Store) SaveQuiz(quiz domain.Quiz) domain.Quiz {
	quiz = copyQuiz(quiz)
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Position == 0 {
			q.Position = i + 1
		}
		if q.Points <= 0 {
			q.Points = 1
		}
		for j := range q.Options {
			if q.Options[j].ID == "" {
				q.Options[j].ID = uuid.NewString()
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq + 1
	if existing, ok := s.state.quizzes[quiz.ID]; ok {
		seq = existing.seq
		removed := make(map[string]struct{})
		for _, q := range existing.quiz.Questions {
			removed[q.ID] = struct{}{}
		}
		for _, q := range quiz.Questions {
			delete(removed, q.ID)
		}
		s.detachQuestionsLocked(removed)
	} else {
		s.seq = seq
	}
	s.state.quizzes[quiz.ID] = storedQuiz{quiz: quiz, seq: seq}
	return copyQuiz(quiz)
}

// DeleteQuiz removes a quiz. Attempts keep their snapshots but lose the quiz
// reference; best scores for the quiz are dropped.
func (s *Store) DeleteQuiz(quizID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.state.quizzes[quizID]
	if !ok {
		return false
	}
	delete(s.state.quizzes, quizID)

	questions := make(map[string]struct{}, len(stored.quiz.Questions))
	for _, q := range stored.quiz.Questions {
		questions[q.ID] = struct{}{}
	}
	s.detachQuestionsLocked(questions)

	for id, a := range s.state.attempts {
		if a.QuizID == quizID {
			a.QuizID = ""
			s.state.attempts[id] = a
		}
	}
	for k := range s.state.best {
		if k.quizID == quizID {
			delete(s.state.best, k)
		}
	}
	return true
}

func (s *Store) detachQuestionsLocked(questionIDs map[string]struct{}) {
	if len(questionIDs) == 0 {
		return
	}
	for attemptID, records := range s.state.records {
		var updated []domain.AnswerRecord
		for i, r := range records {
			if _, ok := questionIDs[r.QuestionID]; !ok {
				continue
			}
			if updated == nil {
				updated = copyRecords(records)
			}
			updated[i].QuestionID = ""
		}
		if updated != nil {
			s.state.records[attemptID] = updated
		}
	}
}

// Scoreboard reads.

func (s *Store) rankedLocked() []domain.ScoreboardEntry {
	totals := make([]domain.UserScoreTotal, 0, len(s.state.totals))
	for _, t := range s.state.totals {
		totals = append(totals, t)
	}
	return app.RankEntries(totals)
}

func (s *Store) RankedPage(_ context.Context, offset, limit int) ([]domain.ScoreboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ranked := s.rankedLocked()
	if offset >= len(ranked) {
		return []domain.ScoreboardEntry{}, nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[offset:end], nil
}

func (s *Store) CountEntries(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.totals), nil
}

func (s *Store) UserStanding(_ context.Context, userID string) (domain.ScoreboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.state.totals[userID]; !ok {
		return domain.ScoreboardEntry{}, domain.ErrUserScoreNotFound
	}
	for _, e := range s.rankedLocked() {
		if e.UserID == userID {
			return e, nil
		}
	}
	return domain.ScoreboardEntry{}, domain.ErrUserScoreNotFound
}

func (s *Store) Stats(_ context.Context) (domain.ScoreboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats domain.ScoreboardStats
	sum := 0
	for _, t := range s.state.totals {
		stats.TotalUsers++
		stats.TotalQuizzesTaken += t.QuizzesCompleted
		if t.TotalScore > stats.HighestScore {
			stats.HighestScore = t.TotalScore
		}
		sum += t.TotalScore
	}
	if stats.TotalUsers > 0 {
		stats.AverageScore = float64(sum) / float64(stats.TotalUsers)
	}
	return stats, nil
}

// tx is the write side of a Store transaction.
type tx struct {
	st *state
}

func (t *tx) CreateAttempt(_ context.Context, attempt domain.Attempt, records []domain.AnswerRecord) error {
	if _, ok := t.st.quizzes[attempt.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	t.st.attempts[attempt.ID] = attempt
	t.st.records[attempt.ID] = copyRecords(records)
	return nil
}

func (t *tx) LockAttempt(_ context.Context, attemptID string) (domain.Attempt, []domain.AnswerRecord, error) {
	attempt, ok := t.st.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, nil, domain.ErrAttemptNotFound
	}
	return attempt, copyRecords(t.st.records[attemptID]), nil
}

func (t *tx) FinalizeAttempt(_ context.Context, attempt domain.Attempt, records []domain.AnswerRecord) error {
	if _, ok := t.st.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	t.st.attempts[attempt.ID] = attempt
	t.st.records[attempt.ID] = copyRecords(records)
	return nil
}

func (t *tx) LockBestScore(_ context.Context, userID, quizID string) (int, bool, error) {
	b, ok := t.st.best[bestKey{userID, quizID}]
	return b.Score, ok, nil
}

func (t *tx) InsertBestScore(_ context.Context, best domain.BestScore) (bool, error) {
	key := bestKey{best.UserID, best.QuizID}
	if _, ok := t.st.best[key]; ok {
		return false, nil
	}
	t.st.best[key] = best
	return true, nil
}

func (t *tx) UpdateBestScore(_ context.Context, best domain.BestScore) error {
	t.st.best[bestKey{best.UserID, best.QuizID}] = best
	return nil
}

func (t *tx) AddToUserTotal(_ context.Context, userID string, delta, completed int, at time.Time) (domain.UserScoreTotal, error) {
	total, ok := t.st.totals[userID]
	if !ok {
		total = domain.UserScoreTotal{UserID: userID, DisplayName: anonymous}
	}
	total.TotalScore += delta
	total.QuizzesCompleted += completed
	total.LastUpdated = at
	t.st.totals[userID] = total
	return total, nil
}

func (t *tx) EnsureUserScore(_ context.Context, userID, displayName string, at time.Time) error {
	total, ok := t.st.totals[userID]
	if !ok {
		name := displayName
		if name == "" {
			name = anonymous
		}
		t.st.totals[userID] = domain.UserScoreTotal{UserID: userID, DisplayName: name, LastUpdated: at}
		return nil
	}
	if displayName != "" && displayName != total.DisplayName {
		total.DisplayName = displayName
		t.st.totals[userID] = total
	}
	return nil
}

func sortNewestFirst(attempts []domain.Attempt) {
	sort.Slice(attempts, func(i, j int) bool {
		ai, aj := attempts[i].SubmittedAt, attempts[j].SubmittedAt
		if ai != nil && aj != nil && !ai.Equal(*aj) {
			return ai.After(*aj)
		}
		return attempts[i].StartedAt.After(attempts[j].StartedAt)
	})
}

func copyRecords(records []domain.AnswerRecord) []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, len(records))
	for i, r := range records {
		r.Options = append([]string(nil), r.Options...)
		out[i] = r
	}
	return out
}

func copyQuiz(quiz domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		q.Options = append([]domain.Option(nil), q.Options...)
		questions[i] = q
	}
	quiz.Questions = questions
	return quiz
}
