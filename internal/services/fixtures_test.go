package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avtotestprime/avtotest-service/internal/auth"
	"github.com/avtotestprime/avtotest-service/internal/events"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"github.com/avtotestprime/avtotest-service/internal/repositories/postgres"
	"github.com/avtotestprime/avtotest-service/internal/storage"
	"github.com/avtotestprime/avtotest-service/internal/validator"
	"github.com/avtotestprime/avtotest-service/pkg"
)

type fixture struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	images    *storage.LocalStorage
	publisher *events.MockEventPublisher
	tokens    *auth.TokenManager

	questions QuestionService
	bookmarks BookmarkService
	tests     *testSessionService
	stats     StatisticsService
	users     UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := pkg.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	images, err := storage.NewLocalStorage(t.TempDir(), "/media/")
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		repo:      postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{DB: db, ProgressTTL: time.Hour, Logger: log}),
		logger:    log,
		validator: validator.New(),
		images:    images,
		publisher: events.NewMockEventPublisher(log),
		tokens:    auth.NewTokenManager("test-secret", time.Hour),
	}
	f.questions = NewQuestionService(f.repo, log, f.validator, images, f.publisher)
	f.bookmarks = NewBookmarkService(f.repo, log, images)
	f.tests = NewTestSessionService(f.repo, log, f.validator, images, f.publisher).(*testSessionService)
	f.stats = NewStatisticsService(f.repo, log)
	f.users = NewUserService(f.repo, log, f.validator, f.tokens, nil, f.publisher)
	return f
}

// addQuestions fills the bank with n two-option questions whose key is A
func (f *fixture) addQuestions(t *testing.T, n int) []*QuestionResponse {
	t.Helper()
	out := make([]*QuestionResponse, 0, n)
	for i := 0; i < n; i++ {
		q, err := f.questions.Add(context.Background(), &CreateQuestionRequest{
			Text:          "Question text",
			Variants:      []VariantInput{{Letter: "A", Text: "Right"}, {Letter: "B", Text: "Wrong"}},
			CorrectAnswer: "A",
		}, nil)
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		out = append(out, q)
	}
	return out
}

func (f *fixture) addUser(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), &CreateUserRequest{Username: username, Password: "secret-pass"})
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", username, err)
	}
	return u
}

// completedSession records a finished test directly, bypassing sampling
func (f *fixture) completedSession(t *testing.T, userID uint, total, correct int) *models.TestSession {
	t.Helper()
	ctx := context.Background()
	s := &models.TestSession{UserID: userID, TotalQuestions: total}
	if err := f.repo.TestSession().Create(ctx, nil, s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	s.CorrectAnswers = correct
	s.WrongAnswers = total - correct
	if ok, err := f.repo.TestSession().Complete(ctx, nil, s); err != nil || !ok {
		t.Fatalf("complete session: ok=%v err=%v", ok, err)
	}
	return s
}

func (f *fixture) eventsOfType(eventType string) []*events.Event {
	var out []*events.Event
	for _, e := range f.publisher.GetPublishedEvents() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
