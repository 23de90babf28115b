package app

import (
	"context"
	"sort"

	"quiz-attempt-service/internal/domain"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ScoreboardService serves the ranked, paginated scoreboard.
type ScoreboardService struct {
	repo  ScoreboardRepository
	store Store
	opts  options
}

func NewScoreboardService(repo ScoreboardRepository, store Store, opts ...Option) *ScoreboardService {
	return &ScoreboardService{repo: repo, store: store, opts: buildOptions(opts)}
}

// RegisterUser creates the user's zero-value total, refreshing a changed
// display name, and returns the stored standing. An empty name keeps the
// current one, or "Anonymous" for a new user. Safe to call repeatedly.
func (s *ScoreboardService) RegisterUser(ctx context.Context, userID, displayName string) (domain.ScoreboardEntry, error) {
	if err := s.store.EnsureUserScore(ctx, userID, displayName, s.opts.now()); err != nil {
		s.opts.logger.Error("register user score failed", zap.String("userId", userID), zap.Error(err))
		return domain.ScoreboardEntry{}, err
	}
	return s.repo.UserStanding(ctx, userID)
}

// GetRanked returns one page ordered by (totalScore desc, displayName asc)
// with competition ranks. Out-of-range pages are clamped.
func (s *ScoreboardService) GetRanked(ctx context.Context, page, pageSize int) (domain.ScoreboardPage, error) {
	pageSize = s.normalizePageSize(pageSize)
	total, err := s.repo.CountEntries(ctx)
	if err != nil {
		return domain.ScoreboardPage{}, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	entries, err := s.repo.RankedPage(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return domain.ScoreboardPage{}, err
	}
	if entries == nil {
		entries = []domain.ScoreboardEntry{}
	}
	return domain.ScoreboardPage{
		Entries: entries,
		Pagination: domain.Pagination{
			Page:         page,
			PageSize:     pageSize,
			TotalEntries: total,
			TotalPages:   totalPages,
			HasNext:      page < totalPages,
			HasPrev:      page > 1,
		},
	}, nil
}

// GetUserRank returns the user's rank and the page it falls on.
func (s *ScoreboardService) GetUserRank(ctx context.Context, userID string, pageSize int) (domain.UserRank, error) {
	pageSize = s.normalizePageSize(pageSize)
	entry, err := s.repo.UserStanding(ctx, userID)
	if err != nil {
		return domain.UserRank{}, err
	}
	return domain.UserRank{
		UserID:           entry.UserID,
		Rank:             entry.Rank,
		Page:             PageForRank(entry.Rank, pageSize),
		TotalScore:       entry.TotalScore,
		QuizzesCompleted: entry.QuizzesCompleted,
	}, nil
}

func (s *ScoreboardService) Stats(ctx context.Context) (domain.ScoreboardStats, error) {
	return s.repo.Stats(ctx)
}

func (s *ScoreboardService) normalizePageSize(size int) int {
	if size < 1 {
		return s.opts.pageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// PageForRank is ceil(rank / pageSize).
func PageForRank(rank, pageSize int) int {
	if rank < 1 || pageSize < 1 {
		return 1
	}
	return (rank + pageSize - 1) / pageSize
}

// RankEntries sorts totals by (score desc, display name asc, user id asc) and
// assigns standard competition ranks: ties share a rank and the next distinct
// score is ranked 1 + the number of entries ahead of it (1,2,2,4).
func RankEntries(totals []domain.UserScoreTotal) []domain.ScoreboardEntry {
	entries := make([]domain.ScoreboardEntry, len(totals))
	for i, t := range totals {
		entries[i] = domain.ScoreboardEntry{
			UserID:           t.UserID,
			DisplayName:      t.DisplayName,
			TotalScore:       t.TotalScore,
			QuizzesCompleted: t.QuizzesCompleted,
			LastUpdated:      t.LastUpdated,
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if entries[i].DisplayName != entries[j].DisplayName {
			return entries[i].DisplayName < entries[j].DisplayName
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		if i > 0 && entries[i].TotalScore == entries[i-1].TotalScore {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	return entries
}
