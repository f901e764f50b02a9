package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
)

const (
	userRecentSessions  = 10
	adminRecentSessions = 5
	statisticsSheet     = "Statistics"
)

type statisticsService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewStatisticsService(repo repositories.Repository, logger *slog.Logger) StatisticsService {
	return &statisticsService{
		repo:   repo,
		logger: logger,
	}
}

func (s *statisticsService) UserDashboard(ctx context.Context, userID uint) (*UserDashboard, error) {
	totalQuestions, err := s.repo.Question().Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}

	bookmarks, err := s.repo.Bookmark().CountByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookmarks: %w", err)
	}

	scores, err := s.repo.Dashboard().SessionScores(ctx, nil, &userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session scores: %w", err)
	}

	return &UserDashboard{
		TotalQuestions: totalQuestions,
		BookmarkCount:  bookmarks,
		TestCount:      len(scores),
		AvgScore:       averageScore(percents(scores)),
	}, nil
}

func (s *statisticsService) UserStatistics(ctx context.Context, userID uint) (*UserStatistics, error) {
	scores, err := s.repo.Dashboard().SessionScores(ctx, nil, &userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session scores: %w", err)
	}

	stats := &UserStatistics{TotalTests: len(scores)}
	pcts := percents(scores)
	stats.AvgScore = averageScore(pcts)
	for i, sc := range scores {
		stats.BestScore = max(stats.BestScore, pcts[i])
		stats.TotalQuestionsAnswered += sc.TotalQuestions
		stats.TotalCorrect += sc.CorrectAnswers
	}

	recent, err := s.repo.Dashboard().RecentCompletedTests(ctx, nil, &userID, userRecentSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent tests: %w", err)
	}
	stats.RecentSessions = summarize(recent)

	return stats, nil
}

func (s *statisticsService) AdminDashboard(ctx context.Context) (*AdminDashboard, error) {
	totalQuestions, err := s.repo.Question().Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}

	totalUsers, err := s.repo.User().CountNonAdmin(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	scores, err := s.repo.Dashboard().SessionScores(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load session scores: %w", err)
	}

	recent, err := s.repo.Dashboard().RecentCompletedTests(ctx, nil, nil, adminRecentSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent tests: %w", err)
	}

	return &AdminDashboard{
		TotalQuestions: totalQuestions,
		TotalUsers:     totalUsers,
		TotalTests:     len(scores),
		RecentTests:    summarize(recent),
	}, nil
}

// AdminStatistics lists every regular account, including those without tests
func (s *statisticsService) AdminStatistics(ctx context.Context) (*AdminStatistics, error) {
	users, err := s.repo.User().ListNonAdmin(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	scores, err := s.repo.Dashboard().SessionScores(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load session scores: %w", err)
	}

	byUser := make(map[uint][]int, len(users))
	for _, sc := range scores {
		byUser[sc.UserID] = append(byUser[sc.UserID], sc.Percent())
	}

	out := &AdminStatistics{UserStats: make([]*UserStat, 0, len(users))}
	for _, u := range users {
		p := byUser[u.ID]
		out.UserStats = append(out.UserStats, &UserStat{
			UserID:     u.ID,
			Username:   u.Username,
			TotalTests: len(p),
			AvgScore:   averageScore(p),
		})
	}
	return out, nil
}

func (s *statisticsService) ExportAdminStatistics(ctx context.Context, w io.Writer) error {
	stats, err := s.AdminStatistics(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statisticsSheet); err != nil {
		return fmt.Errorf("failed to prepare sheet: %w", err)
	}

	header := []interface{}{"User", "Tests", "Average score"}
	if err := f.SetSheetRow(statisticsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, st := range stats.UserStats {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{st.Username, st.TotalTests, st.AvgScore}
		if err := f.SetSheetRow(statisticsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", st.Username, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	s.logger.Info("Statistics exported", "users", len(stats.UserStats))
	return nil
}

func percents(scores []repositories.SessionScore) []int {
	out := make([]int, len(scores))
	for i, sc := range scores {
		out[i] = sc.Percent()
	}
	return out
}

func summarize(sessions []*models.TestSession) []*SessionSummary {
	out := make([]*SessionSummary, 0, len(sessions))
	for _, ts := range sessions {
		item := &SessionSummary{
			ID:             ts.ID,
			UserID:         ts.UserID,
			TotalQuestions: ts.TotalQuestions,
			CorrectAnswers: ts.CorrectAnswers,
			WrongAnswers:   ts.WrongAnswers,
			ScorePercent:   ts.ScorePercent(),
			TimeSpent:      ts.TimeSpent,
			CreatedAt:      ts.CreatedAt,
		}
		if ts.User != nil {
			item.Username = ts.User.Username
		}
		out = append(out, item)
	}
	return out
}
