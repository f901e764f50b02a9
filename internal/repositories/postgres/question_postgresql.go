package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/avtotestprime/avtotest-service/internal/cache"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"gorm.io/gorm"
)

type QuestionPostgreSQL struct {
	db            *gorm.DB
	helpers       *SharedHelpers
	cacheManager  *cache.CacheManager
	invalidations *Invalidations
}

func NewQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager, invalidations *Invalidations) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:            db,
		helpers:       NewSharedHelpers(db),
		cacheManager:  cacheManager,
		invalidations: invalidations,
	}
}

// ===== BASIC CRUD OPERATIONS =====

// Create creates a new question and invalidates cache
func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("question number %d already taken: %w", question.Number, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create question: %w", err)
	}

	q.invalidate(ctx)
	return nil
}

// GetByID retrieves a question by ID
func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.getDB(tx)
	var question models.Question
	if err := db.WithContext(ctx).First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("question %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &question, nil
}

// Update saves every column of the question
func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).Save(question).Error; err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}

	q.invalidate(ctx)
	return nil
}

// Delete removes a question and everything that references it
func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Question{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to get question before delete: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("question %d: %w", id, repositories.ErrNotFound)
		}

		if err := tx.Where("question_id = ?", id).Delete(&models.Bookmark{}).Error; err != nil {
			return fmt.Errorf("failed to delete bookmarks of question: %w", err)
		}
		if err := tx.Where("question_id = ?", id).Delete(&models.TestAnswer{}).Error; err != nil {
			return fmt.Errorf("failed to delete answers of question: %w", err)
		}
		if err := tx.Delete(&models.Question{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete question: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	q.invalidate(ctx)
	return nil
}

// ===== QUERY OPERATIONS =====

// List returns the whole bank ordered by number
func (q *QuestionPostgreSQL) List(ctx context.Context, tx *gorm.DB) ([]*models.Question, error) {
	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).Order("number ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

// GetByIDs returns the questions that exist among ids, ordered by number
func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return []*models.Question{}, nil
	}

	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).Where("id IN ?", ids).Order("number ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by IDs: %w", err)
	}
	return questions, nil
}

// Search performs a case-insensitive substring search over question text,
// option texts and the question number. SQL narrows the candidate set when
// the query is safe to push down, and Question.Matches gives the exact answer.
func (q *QuestionPostgreSQL) Search(ctx context.Context, tx *gorm.DB, query string) ([]*models.Question, error) {
	if query == "" {
		return q.List(ctx, tx)
	}

	db := q.getDB(tx)
	dbQuery := db.WithContext(ctx).Model(&models.Question{})
	if canPrefilter(query) {
		pattern := "%" + q.helpers.EscapeLike(strings.ToLower(query)) + "%"
		dbQuery = dbQuery.Where(
			"LOWER(questions.text) LIKE ? ESCAPE '\\' OR LOWER(CAST(variants_json AS TEXT)) LIKE ? ESCAPE '\\' OR CAST(number AS TEXT) LIKE ? ESCAPE '\\'",
			pattern, pattern, pattern,
		)
	}

	var candidates []*models.Question
	if err := dbQuery.Order("number ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to search questions: %w", err)
	}

	results := make([]*models.Question, 0, len(candidates))
	for _, question := range candidates {
		if question.Matches(query) {
			results = append(results, question)
		}
	}
	return results, nil
}

// canPrefilter reports whether SQL LOWER/LIKE can be trusted for query.
// SQLite only folds ASCII, and JSON encoding rewrites quotes, backslashes
// and HTML-sensitive characters inside variants_json.
func canPrefilter(query string) bool {
	for _, r := range query {
		if r > 127 || r < 32 {
			return false
		}
		switch r {
		case '"', '\\', '<', '>', '&':
			return false
		}
	}
	return true
}

// ListIDs returns every question id in bank order
func (q *QuestionPostgreSQL) ListIDs(ctx context.Context, tx *gorm.DB) ([]uint, error) {
	db := q.getDB(tx)
	var ids []uint
	if err := db.WithContext(ctx).Model(&models.Question{}).Order("number ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list question IDs: %w", err)
	}
	return ids, nil
}

// Count returns the bank size, cached between changes. Reads inside a
// transaction bypass the cache so uncommitted counts are never stored.
func (q *QuestionPostgreSQL) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	db := q.getDB(tx)
	if tx != nil || q.invalidations != nil {
		return q.helpers.CountQuestions(ctx, db)
	}

	var count int64
	err := q.cacheManager.Question.CacheOrExecute(ctx, "count", &count, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		return q.helpers.CountQuestions(ctx, db)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

// NextNumber returns max(number)+1
func (q *QuestionPostgreSQL) NextNumber(ctx context.Context, tx *gorm.DB) (int, error) {
	db := q.getDB(tx)
	var maxNumber sql.NullInt64
	if err := db.WithContext(ctx).Model(&models.Question{}).Select("MAX(number)").Row().Scan(&maxNumber); err != nil {
		return 0, fmt.Errorf("failed to get max question number: %w", err)
	}
	if !maxNumber.Valid {
		return 1, nil
	}
	return int(maxNumber.Int64) + 1, nil
}

// MigrateLegacyVariants converts legacy rows in place and returns how many changed
func (q *QuestionPostgreSQL) MigrateLegacyVariants(ctx context.Context, tx *gorm.DB) (int, error) {
	db := q.getDB(tx)

	var candidates []*models.Question
	err := db.WithContext(ctx).
		Where("COALESCE(variant_a, '') <> '' OR COALESCE(variant_b, '') <> '' OR COALESCE(variant_c, '') <> '' OR COALESCE(variant_d, '') <> ''").
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find legacy questions: %w", err)
	}

	migrated := 0
	for _, question := range candidates {
		if !models.MigrateLegacyVariants(question) {
			continue
		}
		if err := db.WithContext(ctx).Model(question).Update("variants_json", question.VariantsJSON).Error; err != nil {
			return migrated, fmt.Errorf("failed to migrate question %d: %w", question.ID, err)
		}
		migrated++
	}

	if migrated > 0 {
		q.invalidate(ctx)
	}
	return migrated, nil
}

func (q *QuestionPostgreSQL) invalidate(ctx context.Context) {
	q.invalidations.Run(ctx, func(ctx context.Context) {
		cache.InvalidateQuestionCache(ctx, q.cacheManager)
	})
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}
