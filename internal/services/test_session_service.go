package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avtotestprime/avtotest-service/internal/events"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"github.com/avtotestprime/avtotest-service/internal/storage"
	"github.com/avtotestprime/avtotest-service/internal/validator"
)

// secondsPerQuestion is the advisory time budget of one question
const secondsPerQuestion = 60

// errLostCompletion aborts a submit transaction when another request
// completed the session first
var errLostCompletion = errors.New("session completed concurrently")

type testSessionService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	images    storage.ImageStorage
	publisher events.EventPublisher
	shuffle   func(n int, swap func(i, j int))
	now       func() time.Time
}

func NewTestSessionService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, images storage.ImageStorage, publisher events.EventPublisher) TestService {
	return &testSessionService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		images:    images,
		publisher: publisher,
		shuffle:   defaultShuffle,
		now:       time.Now,
	}
}

// ===== CORE SESSION OPERATIONS =====

func (s *testSessionService) StartInfo(ctx context.Context) (*StartTestInfo, error) {
	total, err := s.repo.Question().Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}
	return &StartTestInfo{TotalAvailable: total}, nil
}

func (s *testSessionService) Start(ctx context.Context, userID uint, browserSession string, requested int) (*models.TestSession, error) {
	s.logger.Info("Starting test", "user_id", userID, "requested", requested)

	ids, err := s.repo.Question().ListIDs(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	if len(ids) == 0 {
		return nil, newFieldValidationError("num_questions", "available", "the question bank is empty")
	}

	n := clampQuestionCount(requested, len(ids))
	selected := sampleQuestions(ids, n, s.shuffle)

	session := &models.TestSession{
		UserID:         userID,
		TotalQuestions: n,
	}
	if err := s.repo.TestSession().Create(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("failed to create test session: %w", err)
	}

	progress := &models.TestProgress{
		QuestionIDs: selected,
		Current:     0,
		Answers:     map[uint]string{},
		TimeLimit:   n * secondsPerQuestion,
		StartedAt:   s.now(),
	}
	if err := s.repo.Progress().Set(ctx, browserSession, session.ID, progress); err != nil {
		return nil, fmt.Errorf("failed to store test progress: %w", err)
	}

	s.logger.Info("Test started", "session_id", session.ID, "user_id", userID, "questions", n)
	return session, nil
}

func (s *testSessionService) Take(ctx context.Context, sessionID, userID uint, browserSession string) (*TakeTestResponse, error) {
	session, progress, err := s.openSession(ctx, sessionID, userID, browserSession)
	if err != nil {
		return nil, err
	}

	questions, err := s.repo.Question().GetByIDs(ctx, nil, progress.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load test questions: %w", err)
	}

	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	ordered := make([]*QuestionResponse, 0, len(progress.QuestionIDs))
	for _, id := range progress.QuestionIDs {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, newQuestionResponse(q, s.images.URL(q.Image), false))
		}
	}

	elapsed := int(s.now().Sub(progress.StartedAt).Seconds())
	remaining := progress.TimeLimit - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return &TakeTestResponse{
		Session:          session,
		Questions:        ordered,
		QuestionIDs:      progress.QuestionIDs,
		Answers:          progress.Answers,
		Current:          progress.Current,
		TimeLimit:        progress.TimeLimit,
		RemainingSeconds: remaining,
	}, nil
}

// SaveAnswer records a partial answer in the progress store only
func (s *testSessionService) SaveAnswer(ctx context.Context, sessionID, userID uint, browserSession string, req *SaveAnswerRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return NewValidationError(err)
	}

	_, progress, err := s.openSession(ctx, sessionID, userID, browserSession)
	if err != nil {
		return err
	}

	if !progress.Contains(req.QuestionID) {
		return newFieldValidationError("question_id", "in_test", "question is not part of this test")
	}

	answer := normalizeAnswer(req.Answer)
	if answer == "" {
		delete(progress.Answers, req.QuestionID)
	} else {
		progress.Answers[req.QuestionID] = answer
	}
	if req.Current != nil && *req.Current < len(progress.QuestionIDs) {
		progress.Current = *req.Current
	}

	if err := s.repo.Progress().Set(ctx, browserSession, sessionID, progress); err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

func (s *testSessionService) Submit(ctx context.Context, sessionID, userID uint, browserSession string, req *SubmitTestRequest) (*models.TestSession, error) {
	s.logger.Info("Submitting test", "session_id", sessionID, "user_id", userID)

	session, progress, err := s.openSession(ctx, sessionID, userID, browserSession)
	if err != nil {
		return nil, err
	}

	answers := make(map[uint]string, len(progress.Answers)+len(req.Answers))
	for id, a := range progress.Answers {
		answers[id] = a
	}
	for id, a := range req.Answers {
		answers[id] = a
	}

	questions, err := s.repo.Question().GetByIDs(ctx, nil, progress.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load test questions: %w", err)
	}

	score := scoreAnswers(session.ID, progress.QuestionIDs, questions, answers)
	session.CorrectAnswers = score.Correct
	session.WrongAnswers = score.Wrong
	session.TimeSpent = max(req.TimeSpent, 0)

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		completed, err := tx.TestSession().Complete(ctx, nil, session)
		if err != nil {
			return err
		}
		if !completed {
			return errLostCompletion
		}
		return tx.Answer().CreateBatch(ctx, nil, score.Answers)
	})
	if err != nil {
		if errors.Is(err, errLostCompletion) {
			s.logger.Info("Test already completed by a concurrent submit", "session_id", sessionID)
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("failed to submit test: %w", err)
	}

	if err := s.repo.Progress().Delete(ctx, browserSession, sessionID); err != nil {
		s.logger.Warn("Failed to drop test progress", "session_id", sessionID, "error", err)
	}
	s.repo.Dashboard().InvalidateUser(ctx, userID)

	s.logger.Info("Test submitted",
		"session_id", sessionID,
		"user_id", userID,
		"correct", session.CorrectAnswers,
		"wrong", session.WrongAnswers)

	s.publishCompleted(ctx, session)
	return session, nil
}

func (s *testSessionService) Result(ctx context.Context, sessionID, userID uint) (*TestResultResponse, error) {
	session, err := s.repo.TestSession().GetByIDWithAnswers(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get test result: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}

	results := make([]*AnswerResult, 0, len(session.Answers))
	for _, a := range session.Answers {
		item := &AnswerResult{
			QuestionID:     a.QuestionID,
			SelectedAnswer: a.SelectedAnswer,
			IsCorrect:      a.IsCorrect,
			Variants:       []models.Variant{},
		}
		if q := a.Question; q != nil {
			item.Number = q.Number
			item.Text = q.Text
			item.ImageURL = s.images.URL(q.Image)
			item.CorrectAnswer = q.CorrectAnswer
			if v := q.Variants(); v != nil {
				item.Variants = v
			}
		}
		results = append(results, item)
	}
	session.Answers = nil

	return &TestResultResponse{
		Session:      session,
		ScorePercent: session.ScorePercent(),
		Answers:      results,
	}, nil
}

func (s *testSessionService) CleanupStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	deleted, err := s.repo.TestSession().DeleteStale(ctx, nil, s.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Stale test sessions removed", "count", deleted)
	}
	return deleted, nil
}

// openSession loads a session the caller owns that can still be answered,
// together with its progress.
func (s *testSessionService) openSession(ctx context.Context, sessionID, userID uint, browserSession string) (*models.TestSession, *models.TestProgress, error) {
	session, err := s.repo.TestSession().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to get test session: %w", err)
	}
	if session.UserID != userID {
		return nil, nil, ErrSessionNotFound
	}
	if session.Completed {
		return session, nil, ErrAlreadyCompleted
	}

	progress, err := s.repo.Progress().Get(ctx, browserSession, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return session, nil, ErrSessionExpired
		}
		return nil, nil, fmt.Errorf("failed to load test progress: %w", err)
	}
	return session, progress, nil
}

func (s *testSessionService) publishCompleted(ctx context.Context, session *models.TestSession) {
	event := events.NewEvent(events.TopicTestCompleted, events.TestCompletedEvent{
		SessionID:      session.ID,
		UserID:         session.UserID,
		TotalQuestions: session.TotalQuestions,
		CorrectAnswers: session.CorrectAnswers,
		ScorePercent:   session.ScorePercent(),
		TimeSpent:      session.TimeSpent,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish test event", "session_id", session.ID, "error", err)
	}
}

func normalizeAnswer(answer string) string {
	return strings.ToUpper(strings.TrimSpace(answer))
}
