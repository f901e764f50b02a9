package repositories

import (
	"context"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"gorm.io/gorm"
)

// TestSessionRepository interface for test session persistence
type TestSessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.TestSession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestSession, error)
	// GetByIDWithAnswers preloads answers and their questions in question-number order
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.TestSession, error)

	// Complete writes the final tallies only if the session is still open.
	// It reports false when another request completed it first.
	Complete(ctx context.Context, tx *gorm.DB, session *models.TestSession) (bool, error)

	// DeleteStale removes never-completed sessions created before cutoff
	DeleteStale(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// AnswerRepository interface for recorded answers
type AnswerRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.TestAnswer) error
}

// ProgressRepository stores in-progress test state keyed by
// (browser session id, test session id). Entries expire on their own.
type ProgressRepository interface {
	Get(ctx context.Context, browserSession string, sessionID uint) (*models.TestProgress, error)
	Set(ctx context.Context, browserSession string, sessionID uint, progress *models.TestProgress) error
	Delete(ctx context.Context, browserSession string, sessionID uint) error
	// DeleteAll drops every entry of a browser session, used on logout
	DeleteAll(ctx context.Context, browserSession string) error
}
