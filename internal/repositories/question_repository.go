package repositories

import (
	"context"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"gorm.io/gorm"
)

// QuestionRepository interface for question bank operations
type QuestionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	// Delete removes the question together with its bookmarks and test answers
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Query operations, all ordered by question number
	List(ctx context.Context, tx *gorm.DB) ([]*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)
	Search(ctx context.Context, tx *gorm.DB, query string) ([]*models.Question, error)
	ListIDs(ctx context.Context, tx *gorm.DB) ([]uint, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)

	// NextNumber returns one past the highest number in use, or 1 for an empty bank
	NextNumber(ctx context.Context, tx *gorm.DB) (int, error)

	// MigrateLegacyVariants rewrites rows that only carry the legacy A-D columns
	MigrateLegacyVariants(ctx context.Context, tx *gorm.DB) (int, error)
}

// BookmarkRepository interface for per-user saved questions
type BookmarkRepository interface {
	Exists(ctx context.Context, tx *gorm.DB, userID, questionID uint) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, bookmark *models.Bookmark) error
	// Delete reports whether a bookmark was removed
	Delete(ctx context.Context, tx *gorm.DB, userID, questionID uint) (bool, error)

	ListQuestions(ctx context.Context, tx *gorm.DB, userID uint) ([]*models.Question, error)
	QuestionIDs(ctx context.Context, tx *gorm.DB, userID uint) ([]uint, error)
	CountByUser(ctx context.Context, tx *gorm.DB, userID uint) (int64, error)
}
