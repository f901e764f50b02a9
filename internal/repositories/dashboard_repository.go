package repositories

import (
	"context"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"gorm.io/gorm"
)

// DashboardRepository interface for statistics over completed tests
type DashboardRepository interface {
	// SessionScores returns the tallies of every completed session, for one
	// user when userID is set
	SessionScores(ctx context.Context, tx *gorm.DB, userID *uint) ([]SessionScore, error)

	// RecentCompletedTests returns the newest completed sessions with their user
	RecentCompletedTests(ctx context.Context, tx *gorm.DB, userID *uint, limit int) ([]*models.TestSession, error)

	// InvalidateUser drops cached aggregates affected by a change to userID's data
	InvalidateUser(ctx context.Context, userID uint)
}

// SessionScore is the minimal projection needed for score aggregates
type SessionScore struct {
	UserID         uint `json:"user_id"`
	TotalQuestions int  `json:"total_questions"`
	CorrectAnswers int  `json:"correct_answers"`
}

// Percent is the per-session score used in every average
func (s SessionScore) Percent() int {
	return models.ScorePercent(s.CorrectAnswers, s.TotalQuestions)
}
