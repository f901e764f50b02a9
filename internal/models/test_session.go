package models

import (
	"math"
	"time"
)

type TestSession struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	UserID         uint       `json:"user_id" gorm:"not null;index"`
	TotalQuestions int        `json:"total_questions" gorm:"not null"`
	CorrectAnswers int        `json:"correct_answers" gorm:"not null;default:0"`
	WrongAnswers   int        `json:"wrong_answers" gorm:"not null;default:0"`
	TimeSpent      int        `json:"time_spent" gorm:"not null;default:0"` // seconds
	Completed      bool       `json:"completed" gorm:"not null;default:false;index"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// Relations
	User    *User        `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Answers []TestAnswer `json:"answers,omitempty" gorm:"foreignKey:SessionID"`
}

func (TestSession) TableName() string {
	return "test_sessions"
}

// ScorePercent is the rounded percentage of correct answers
func (s *TestSession) ScorePercent() int {
	return ScorePercent(s.CorrectAnswers, s.TotalQuestions)
}

// ScorePercent rounds correct/total*100 half-to-even. An empty test scores 0.
func ScorePercent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.RoundToEven(float64(correct) / float64(total) * 100))
}

type TestAnswer struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	SessionID      uint   `json:"session_id" gorm:"not null;uniqueIndex:idx_test_answers_session_question"`
	QuestionID     uint   `json:"question_id" gorm:"not null;uniqueIndex:idx_test_answers_session_question;index"`
	SelectedAnswer string `json:"selected_answer" gorm:"size:1"`
	IsCorrect      bool   `json:"is_correct" gorm:"not null;default:false"`

	Question *Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

func (TestAnswer) TableName() string {
	return "test_answers"
}

// TestProgress is the in-flight state of a started test. It lives only in
// ephemeral storage and is discarded on submit or logout.
type TestProgress struct {
	QuestionIDs []uint          `json:"question_ids"`
	Current     int             `json:"current"`
	Answers     map[uint]string `json:"answers"`
	TimeLimit   int             `json:"time_limit"` // seconds, advisory
	StartedAt   time.Time       `json:"started_at"`
}

// Contains reports whether questionID was sampled into this test
func (p *TestProgress) Contains(questionID uint) bool {
	for _, id := range p.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}
