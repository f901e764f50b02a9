package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"gorm.io/gorm"
)

type TestSessionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewTestSessionPostgreSQL(db *gorm.DB) repositories.TestSessionRepository {
	return &TestSessionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

// ===== BASIC CRUD OPERATIONS =====

func (r *TestSessionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.TestSession) error {
	db := r.getDB(tx)
	if err := db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create test session: %w", err)
	}
	return nil
}

func (r *TestSessionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestSession, error) {
	db := r.getDB(tx)
	var session models.TestSession
	if err := db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("test session %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get test session: %w", err)
	}
	return &session, nil
}

func (r *TestSessionPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.TestSession, error) {
	db := r.getDB(tx)
	var session models.TestSession
	err := db.WithContext(ctx).
		Preload("Answers.Question").
		First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("test session %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get test session with answers: %w", err)
	}

	sort.SliceStable(session.Answers, func(i, j int) bool {
		return questionNumber(session.Answers[i].Question) < questionNumber(session.Answers[j].Question)
	})
	return &session, nil
}

// Complete is a compare-and-set on the completed flag. Callers invalidate
// cached statistics once the surrounding transaction commits.
func (r *TestSessionPostgreSQL) Complete(ctx context.Context, tx *gorm.DB, session *models.TestSession) (bool, error) {
	db := r.getDB(tx)
	now := time.Now()

	result := db.WithContext(ctx).Model(&models.TestSession{}).
		Where("id = ? AND completed = ?", session.ID, false).
		Updates(map[string]interface{}{
			"correct_answers": session.CorrectAnswers,
			"wrong_answers":   session.WrongAnswers,
			"time_spent":      session.TimeSpent,
			"completed":       true,
			"completed_at":    now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to complete test session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	session.Completed = true
	session.CompletedAt = &now
	return true, nil
}

// ===== CLEANUP =====

func (r *TestSessionPostgreSQL) DeleteStale(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.getDB(tx)
	var deleted int64

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&models.TestSession{}).
			Select("id").
			Where("completed = ? AND created_at < ?", false, cutoff)

		if err := tx.Where("session_id IN (?)", stale).Delete(&models.TestAnswer{}).Error; err != nil {
			return fmt.Errorf("failed to delete answers of stale sessions: %w", err)
		}

		result := tx.Where("completed = ? AND created_at < ?", false, cutoff).Delete(&models.TestSession{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete stale sessions: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

func (r *TestSessionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// ===== ANSWERS =====

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (r *AnswerPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, answers []*models.TestAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	db := r.getDB(tx)
	if err := db.WithContext(ctx).Omit("Question").CreateInBatches(answers, 100).Error; err != nil {
		return fmt.Errorf("failed to create answers: %w", err)
	}
	return nil
}

// questionNumber orders answers whose question is gone after the rest
func questionNumber(q *models.Question) int {
	if q == nil {
		return math.MaxInt
	}
	return q.Number
}

func (r *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
