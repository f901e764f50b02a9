package models

import "time"

type Bookmark struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_bookmarks_user_question"`
	QuestionID uint      `json:"question_id" gorm:"not null;uniqueIndex:idx_bookmarks_user_question;index"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Bookmark) TableName() string {
	return "bookmarks"
}

type BookmarkStatus string

const (
	BookmarkAdded   BookmarkStatus = "added"
	BookmarkRemoved BookmarkStatus = "removed"
)
