package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const anonymous = "Anonymous"

var (
	_ app.Store                = (*Store)(nil)
	_ app.ScoreboardRepository = (*Store)(nil)
)

// Store persists attempts, answer records, best scores and user totals through
// bun. Submissions serialize on the attempt row and on the (user, quiz) best
// score row; totals are changed with in-place increments only.
type Store struct {
	db *bun.DB
}

// OpenDB opens a bun handle over pgdriver.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.StoreTx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &storeTx{db: tx})
	})
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, []domain.AnswerRecord, error) {
	return loadAttempt(ctx, s.db, attemptID, false)
}

func (s *Store) ListQuizAttempts(ctx context.Context, userID, quizID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Where("status = ?", string(domain.StatusSubmitted)).
		OrderExpr("submitted_at DESC, started_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	return toAttempts(rows), nil
}

func (s *Store) ListUserAttempts(ctx context.Context, userID string, limit, offset int) ([]domain.Attempt, int, error) {
	var rows []attemptRow
	total, err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("status = ?", string(domain.StatusSubmitted)).
		OrderExpr("submitted_at DESC, started_at DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list user attempts: %w", err)
	}
	return toAttempts(rows), total, nil
}

func (s *Store) BestScores(ctx context.Context, userID string) (map[string]int, error) {
	var rows []bestScoreRow
	if err := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("best scores: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.QuizID] = r.Score
	}
	return out, nil
}

func (s *Store) SubmittedCounts(ctx context.Context, userID string) (map[string]int, error) {
	var rows []struct {
		QuizID string `bun:"quiz_id"`
		N      int    `bun:"n"`
	}
	err := s.db.NewSelect().
		Model((*attemptRow)(nil)).
		Column("quiz_id").
		ColumnExpr("count(*) AS n").
		Where("user_id = ?", userID).
		Where("status = ?", string(domain.StatusSubmitted)).
		Where("quiz_id IS NOT NULL").
		Group("quiz_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("submitted counts: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.QuizID] = r.N
	}
	return out, nil
}

func (s *Store) EnsureUserScore(ctx context.Context, userID, displayName string, at time.Time) error {
	return ensureUserScore(ctx, s.db, userID, displayName, at)
}

// Scoreboard reads.

func (s *Store) rankedQuery() *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*userScoreRow)(nil)).
		Column("user_id", "display_name", "total_score", "quizzes_completed", "last_updated").
		ColumnExpr("RANK() OVER (ORDER BY total_score DESC) AS rank")
}

func (s *Store) RankedPage(ctx context.Context, offset, limit int) ([]domain.ScoreboardEntry, error) {
	var rows []rankedRow
	err := s.rankedQuery().
		OrderExpr(`total_score DESC, display_name COLLATE "C" ASC, user_id COLLATE "C" ASC`).
		Limit(limit).
		Offset(offset).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("ranked page: %w", err)
	}
	entries := make([]domain.ScoreboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.toDomain()
	}
	return entries, nil
}

func (s *Store) CountEntries(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*userScoreRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count scoreboard: %w", err)
	}
	return n, nil
}

func (s *Store) UserStanding(ctx context.Context, userID string) (domain.ScoreboardEntry, error) {
	var row rankedRow
	err := s.db.NewSelect().
		With("ranked", s.rankedQuery()).
		Table("ranked").
		Where("user_id = ?", userID).
		Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScoreboardEntry{}, domain.ErrUserScoreNotFound
	}
	if err != nil {
		return domain.ScoreboardEntry{}, fmt.Errorf("user standing: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Stats(ctx context.Context) (domain.ScoreboardStats, error) {
	var row struct {
		TotalUsers        int     `bun:"total_users"`
		TotalQuizzesTaken int     `bun:"total_quizzes_taken"`
		HighestScore      int     `bun:"highest_score"`
		AverageScore      float64 `bun:"average_score"`
	}
	err := s.db.NewSelect().
		Model((*userScoreRow)(nil)).
		ColumnExpr("count(*) AS total_users").
		ColumnExpr("COALESCE(SUM(quizzes_completed), 0) AS total_quizzes_taken").
		ColumnExpr("COALESCE(MAX(total_score), 0) AS highest_score").
		ColumnExpr("COALESCE(AVG(total_score), 0)::float8 AS average_score").
		Scan(ctx, &row)
	if err != nil {
		return domain.ScoreboardStats{}, fmt.Errorf("scoreboard stats: %w", err)
	}
	return domain.ScoreboardStats{
		TotalUsers:        row.TotalUsers,
		TotalQuizzesTaken: row.TotalQuizzesTaken,
		HighestScore:      row.HighestScore,
		AverageScore:      row.AverageScore,
	}, nil
}

// storeTx implements app.StoreTx on an open bun transaction.
type storeTx struct {
	db bun.Tx
}

func (t *storeTx) CreateAttempt(ctx context.Context, attempt domain.Attempt, records []domain.AnswerRecord) error {
	if _, err := t.db.NewInsert().Model(fromAttempt(attempt)).Exec(ctx); err != nil {
		// the quiz was deleted between loading it and opening the attempt
		if isForeignKeyViolation(err, "attempts_quiz_id_fkey") {
			return domain.ErrQuizNotFound
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	rows := fromRecords(records)
	if _, err := t.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert answer records: %w", err)
	}
	return nil
}

func (t *storeTx) LockAttempt(ctx context.Context, attemptID string) (domain.Attempt, []domain.AnswerRecord, error) {
	return loadAttempt(ctx, t.db, attemptID, true)
}

func (t *storeTx) FinalizeAttempt(ctx context.Context, attempt domain.Attempt, records []domain.AnswerRecord) error {
	res, err := t.db.NewUpdate().
		Model(fromAttempt(attempt)).
		Column("total_score", "status", "submitted_at").
		WherePK().
		Where("status = ?", string(domain.StatusInProgress)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAlreadySubmitted
	}

	rows := fromRecords(records)
	for i := range rows {
		_, err := t.db.NewUpdate().
			Model(&rows[i]).
			Column("selected_text", "is_correct", "points_earned").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("score answer record %d: %w", rows[i].Position, err)
		}
	}
	return nil
}

func (t *storeTx) LockBestScore(ctx context.Context, userID, quizID string) (int, bool, error) {
	row := new(bestScoreRow)
	err := t.db.NewSelect().
		Model(row).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.Score, true, nil
}

func (t *storeTx) InsertBestScore(ctx context.Context, best domain.BestScore) (bool, error) {
	res, err := t.db.NewInsert().
		Model(fromBestScore(best)).
		On("CONFLICT (user_id, quiz_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *storeTx) UpdateBestScore(ctx context.Context, best domain.BestScore) error {
	_, err := t.db.NewUpdate().
		Model(fromBestScore(best)).
		Column("score", "attempt_id", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

func (t *storeTx) AddToUserTotal(ctx context.Context, userID string, delta, completed int, at time.Time) (domain.UserScoreTotal, error) {
	row := &userScoreRow{
		UserID:           userID,
		DisplayName:      anonymous,
		TotalScore:       delta,
		QuizzesCompleted: completed,
		LastUpdated:      at,
	}
	_, err := t.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("total_score = ?TableAlias.total_score + EXCLUDED.total_score").
		Set("quizzes_completed = ?TableAlias.quizzes_completed + EXCLUDED.quizzes_completed").
		Set("last_updated = EXCLUDED.last_updated").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.UserScoreTotal{}, err
	}
	return row.toDomain(), nil
}

func (t *storeTx) EnsureUserScore(ctx context.Context, userID, displayName string, at time.Time) error {
	return ensureUserScore(ctx, t.db, userID, displayName, at)
}

func ensureUserScore(ctx context.Context, db bun.IDB, userID, displayName string, at time.Time) error {
	name := displayName
	if name == "" {
		name = anonymous
	}
	q := db.NewInsert().Model(&userScoreRow{UserID: userID, DisplayName: name, LastUpdated: at})
	if displayName == "" {
		q = q.On("CONFLICT (user_id) DO NOTHING")
	} else {
		q = q.On("CONFLICT (user_id) DO UPDATE").
			Set("display_name = EXCLUDED.display_name").
			Where("?TableAlias.display_name <> EXCLUDED.display_name")
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("ensure user score: %w", err)
	}
	return nil
}

func loadAttempt(ctx context.Context, db bun.IDB, attemptID string, lock bool) (domain.Attempt, []domain.AnswerRecord, error) {
	row := new(attemptRow)
	q := db.NewSelect().Model(row).Where("id = ?", attemptID)
	if lock {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Attempt{}, nil, domain.ErrAttemptNotFound
		}
		return domain.Attempt{}, nil, fmt.Errorf("load attempt: %w", err)
	}

	var records []answerRecordRow
	err := db.NewSelect().
		Model(&records).
		Where("attempt_id = ?", attemptID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return domain.Attempt{}, nil, fmt.Errorf("load answer records: %w", err)
	}
	return row.toDomain(), toRecords(records), nil
}

func fromBestScore(b domain.BestScore) *bestScoreRow {
	return &bestScoreRow{
		UserID:    b.UserID,
		QuizID:    b.QuizID,
		Score:     b.Score,
		AttemptID: b.AttemptID,
		UpdatedAt: b.UpdatedAt,
	}
}

func toAttempts(rows []attemptRow) []domain.Attempt {
	out := make([]domain.Attempt, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}

func isForeignKeyViolation(err error, constraint string) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Field('C') == "23503" && pgErr.Field('n') == constraint
}
