package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	eventSource  = "avtotest-service"
	eventVersion = "1.0"
)

// Topics
const (
	TopicTestCompleted   = "test.completed"
	TopicQuestionChanged = "question.changed"
	TopicUserChanged     = "user.changed"
)

// Event is the envelope every domain event is published in
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent stamps data with a fresh id and the current time
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher delivers events to whatever broker is configured
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

type TestCompletedEvent struct {
	SessionID      uint `json:"session_id"`
	UserID         uint `json:"user_id"`
	TotalQuestions int  `json:"total_questions"`
	CorrectAnswers int  `json:"correct_answers"`
	ScorePercent   int  `json:"score_percent"`
	TimeSpent      int  `json:"time_spent"`
}

type QuestionChangedEvent struct {
	QuestionID uint   `json:"question_id"`
	Number     int    `json:"number"`
	Action     string `json:"action"` // created, updated, deleted
}

type UserChangedEvent struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Action   string `json:"action"` // created, updated, deleted
}

// Change actions
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)
