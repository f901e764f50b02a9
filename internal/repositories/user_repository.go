package repositories

import (
	"context"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"gorm.io/gorm"
)

// UserRepository interface for account storage
type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*models.User, error)
	Update(ctx context.Context, tx *gorm.DB, user *models.User) error
	// Delete removes the user with their bookmarks, sessions and answers
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	ExistsByUsername(ctx context.Context, tx *gorm.DB, username string, excludeID *uint) (bool, error)
	ListNonAdmin(ctx context.Context, tx *gorm.DB) ([]*models.User, error)
	CountNonAdmin(ctx context.Context, tx *gorm.DB) (int64, error)
	TouchLastLogin(ctx context.Context, tx *gorm.DB, id uint, at time.Time) error
}
