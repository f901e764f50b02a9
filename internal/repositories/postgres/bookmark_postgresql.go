package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/avtotestprime/avtotest-service/internal/cache"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"gorm.io/gorm"
)

type BookmarkPostgreSQL struct {
	db            *gorm.DB
	cacheManager  *cache.CacheManager
	invalidations *Invalidations
}

func NewBookmarkPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager, invalidations *Invalidations) repositories.BookmarkRepository {
	return &BookmarkPostgreSQL{
		db:            db,
		cacheManager:  cacheManager,
		invalidations: invalidations,
	}
}

func (b *BookmarkPostgreSQL) Exists(ctx context.Context, tx *gorm.DB, userID, questionID uint) (bool, error) {
	db := b.getDB(tx)
	var count int64
	err := db.WithContext(ctx).Model(&models.Bookmark{}).
		Where("user_id = ? AND question_id = ?", userID, questionID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check bookmark: %w", err)
	}
	return count > 0, nil
}

func (b *BookmarkPostgreSQL) Create(ctx context.Context, tx *gorm.DB, bookmark *models.Bookmark) error {
	db := b.getDB(tx)
	if err := db.WithContext(ctx).Create(bookmark).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("bookmark exists: %w", repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create bookmark: %w", err)
	}

	b.invalidateUser(ctx, bookmark.UserID)
	return nil
}

func (b *BookmarkPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, userID, questionID uint) (bool, error) {
	db := b.getDB(tx)
	result := db.WithContext(ctx).
		Where("user_id = ? AND question_id = ?", userID, questionID).
		Delete(&models.Bookmark{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete bookmark: %w", result.Error)
	}

	b.invalidateUser(ctx, userID)
	return result.RowsAffected > 0, nil
}

// ListQuestions returns the bookmarked questions in bank order
func (b *BookmarkPostgreSQL) ListQuestions(ctx context.Context, tx *gorm.DB, userID uint) ([]*models.Question, error) {
	db := b.getDB(tx)
	var questions []*models.Question
	err := db.WithContext(ctx).
		Select("questions.*").
		Joins("JOIN bookmarks ON bookmarks.question_id = questions.id").
		Where("bookmarks.user_id = ?", userID).
		Order("questions.number ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarked questions: %w", err)
	}
	return questions, nil
}

func (b *BookmarkPostgreSQL) QuestionIDs(ctx context.Context, tx *gorm.DB, userID uint) ([]uint, error) {
	db := b.getDB(tx)
	var ids []uint
	err := db.WithContext(ctx).Model(&models.Bookmark{}).
		Where("user_id = ?", userID).
		Pluck("question_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmark IDs: %w", err)
	}
	return ids, nil
}

func (b *BookmarkPostgreSQL) CountByUser(ctx context.Context, tx *gorm.DB, userID uint) (int64, error) {
	db := b.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).Model(&models.Bookmark{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count bookmarks: %w", err)
	}
	return count, nil
}

func (b *BookmarkPostgreSQL) invalidateUser(ctx context.Context, userID uint) {
	b.invalidations.Run(ctx, func(ctx context.Context) {
		cache.SafeInvalidatePattern(ctx, b.cacheManager.Stats, cache.UserStatsKey(userID)+"*")
	})
}

func (b *BookmarkPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return b.db
}
