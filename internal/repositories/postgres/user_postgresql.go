package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/cache"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"gorm.io/gorm"
)

type UserPostgreSQL struct {
	db            *gorm.DB
	helpers       *SharedHelpers
	cacheManager  *cache.CacheManager
	invalidations *Invalidations
}

func NewUserPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager, invalidations *Invalidations) repositories.UserRepository {
	return &UserPostgreSQL{
		db:            db,
		helpers:       NewSharedHelpers(db),
		cacheManager:  cacheManager,
		invalidations: invalidations,
	}
}

func (u *UserPostgreSQL) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	db := u.getDB(tx)
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("username %q: %w", user.Username, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	u.invalidations.Run(ctx, func(ctx context.Context) {
		cache.SafeInvalidatePattern(ctx, u.cacheManager.Stats, cache.AdminStatsKey+"*")
	})
	return nil
}

func (u *UserPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.User, error) {
	db := u.getDB(tx)
	var user models.User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (u *UserPostgreSQL) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*models.User, error) {
	db := u.getDB(tx)
	var user models.User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %q: %w", username, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

func (u *UserPostgreSQL) Update(ctx context.Context, tx *gorm.DB, user *models.User) error {
	db := u.getDB(tx)
	if err := db.WithContext(ctx).Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("username %q: %w", user.Username, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	u.invalidations.Run(ctx, func(ctx context.Context) {
		cache.SafeInvalidatePattern(ctx, u.cacheManager.Stats, cache.AdminStatsKey+"*")
	})
	return nil
}

// Delete removes the user and every row that belongs to them
func (u *UserPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := u.getDB(tx)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to get user before delete: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("user %d: %w", id, repositories.ErrNotFound)
		}

		sessions := tx.Model(&models.TestSession{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("session_id IN (?)", sessions).Delete(&models.TestAnswer{}).Error; err != nil {
			return fmt.Errorf("failed to delete answers of user: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.TestSession{}).Error; err != nil {
			return fmt.Errorf("failed to delete sessions of user: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Bookmark{}).Error; err != nil {
			return fmt.Errorf("failed to delete bookmarks of user: %w", err)
		}
		if err := tx.Delete(&models.User{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	u.invalidations.Run(ctx, func(ctx context.Context) {
		cache.InvalidateUserStats(ctx, u.cacheManager, id)
	})
	return nil
}

func (u *UserPostgreSQL) ExistsByUsername(ctx context.Context, tx *gorm.DB, username string, excludeID *uint) (bool, error) {
	db := u.getDB(tx)
	query := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

func (u *UserPostgreSQL) ListNonAdmin(ctx context.Context, tx *gorm.DB) ([]*models.User, error) {
	db := u.getDB(tx)
	var users []*models.User
	if err := u.helpers.NonAdminUsers(db.WithContext(ctx).Model(&models.User{})).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (u *UserPostgreSQL) CountNonAdmin(ctx context.Context, tx *gorm.DB) (int64, error) {
	db := u.getDB(tx)
	var count int64
	if err := u.helpers.NonAdminUsers(db.WithContext(ctx).Model(&models.User{})).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (u *UserPostgreSQL) TouchLastLogin(ctx context.Context, tx *gorm.DB, id uint, at time.Time) error {
	db := u.getDB(tx)
	if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login_at", at).Error; err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (u *UserPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return u.db
}
