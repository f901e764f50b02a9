package postgres

import (
	"context"
	"strings"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"gorm.io/gorm"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// CountQuestions counts the question bank
func (h *SharedHelpers) CountQuestions(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&models.Question{}).Count(&count).Error
	return count, err
}

// EscapeLike escapes LIKE wildcards so the value matches literally with ESCAPE '\'
func (h *SharedHelpers) EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// NonAdminUsers scopes a user query to regular accounts
func (h *SharedHelpers) NonAdminUsers(query *gorm.DB) *gorm.DB {
	return query.Where("users.is_admin = ?", false)
}
