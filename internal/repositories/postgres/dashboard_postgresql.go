package postgres

import (
	"context"
	"fmt"

	"github.com/avtotestprime/avtotest-service/internal/cache"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"gorm.io/gorm"
)

type DashboardPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewDashboardRepository(db *gorm.DB, cacheManager *cache.CacheManager) repositories.DashboardRepository {
	return &DashboardPostgreSQL{
		db:           db,
		cacheManager: cacheManager,
	}
}

// SessionScores loads per-session tallies of completed tests, cached per scope
func (r *DashboardPostgreSQL) SessionScores(ctx context.Context, tx *gorm.DB, userID *uint) ([]repositories.SessionScore, error) {
	db := r.getDB(tx)

	fetch := func() (interface{}, error) {
		query := db.WithContext(ctx).Model(&models.TestSession{}).
			Select("user_id, total_questions, correct_answers").
			Where("completed = ?", true)
		if userID != nil {
			query = query.Where("user_id = ?", *userID)
		}

		var scores []repositories.SessionScore
		if err := query.Order("created_at DESC").Scan(&scores).Error; err != nil {
			return nil, fmt.Errorf("failed to load session scores: %w", err)
		}
		if scores == nil {
			scores = []repositories.SessionScore{}
		}
		return scores, nil
	}

	if tx != nil {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		return v.([]repositories.SessionScore), nil
	}

	key := cache.AdminStatsKey + "scores"
	if userID != nil {
		key = cache.UserStatsKey(*userID) + "scores"
	}

	var scores []repositories.SessionScore
	if err := r.cacheManager.Stats.CacheOrExecute(ctx, key, &scores, cache.StatsCacheConfig.TTL, fetch); err != nil {
		return nil, err
	}
	return scores, nil
}

func (r *DashboardPostgreSQL) RecentCompletedTests(ctx context.Context, tx *gorm.DB, userID *uint, limit int) ([]*models.TestSession, error) {
	db := r.getDB(tx)
	query := db.WithContext(ctx).Model(&models.TestSession{}).
		Preload("User").
		Where("completed = ?", true)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var sessions []*models.TestSession
	if err := query.Order("created_at DESC").Order("id DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent tests: %w", err)
	}
	return sessions, nil
}

func (r *DashboardPostgreSQL) InvalidateUser(ctx context.Context, userID uint) {
	cache.InvalidateUserStats(ctx, r.cacheManager, userID)
}

func (r *DashboardPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
