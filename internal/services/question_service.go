package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avtotestprime/avtotest-service/internal/events"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"github.com/avtotestprime/avtotest-service/internal/storage"
	"github.com/avtotestprime/avtotest-service/internal/validator"
)

// numberRetries bounds how often Add re-reads max(number) after losing a race
const numberRetries = 3

type questionService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	images    storage.ImageStorage
	publisher events.EventPublisher
}

func NewQuestionService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, images storage.ImageStorage, publisher events.EventPublisher) QuestionService {
	return &questionService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		images:    images,
		publisher: publisher,
	}
}

// ===== READER OPERATIONS =====

func (s *questionService) List(ctx context.Context, userID uint) (*QuestionListResponse, error) {
	questions, err := s.repo.Question().List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return s.buildListResponse(ctx, questions, userID, "")
}

func (s *questionService) Search(ctx context.Context, userID uint, query string) (*QuestionListResponse, error) {
	questions, err := s.repo.Question().Search(ctx, nil, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search questions: %w", err)
	}
	return s.buildListResponse(ctx, questions, userID, query)
}

func (s *questionService) Get(ctx context.Context, id uint, userID uint) (*QuestionResponse, error) {
	question, err := s.getQuestion(ctx, id)
	if err != nil {
		return nil, err
	}

	bookmarked, err := s.repo.Bookmark().Exists(ctx, nil, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check bookmark: %w", err)
	}

	resp := s.buildQuestionResponse(question, true)
	resp.IsBookmarked = bookmarked
	return resp, nil
}

// ===== ADMINISTRATION =====

func (s *questionService) AdminList(ctx context.Context) ([]*QuestionResponse, error) {
	questions, err := s.repo.Question().List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	out := make([]*QuestionResponse, 0, len(questions))
	for _, q := range questions {
		out = append(out, s.buildQuestionResponse(q, true))
	}
	return out, nil
}

func (s *questionService) AdminGet(ctx context.Context, id uint) (*QuestionResponse, error) {
	question, err := s.getQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.buildQuestionResponse(question, true), nil
}

func (s *questionService) Add(ctx context.Context, req *CreateQuestionRequest, image *ImageUpload) (*QuestionResponse, error) {
	s.logger.Info("Adding question", "variants", len(req.Variants))

	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError(err)
	}

	question := &models.Question{
		Text:          req.Text,
		CorrectAnswer: req.CorrectAnswer,
	}
	if err := question.SetVariants(toVariants(req.Variants)); err != nil {
		return nil, fmt.Errorf("failed to encode variants: %w", err)
	}

	if image != nil {
		ref, err := s.saveImage(ctx, image)
		if err != nil {
			return nil, err
		}
		question.Image = ref
	}

	if err := s.createWithNextNumber(ctx, question); err != nil {
		s.deleteImage(ctx, question.Image)
		return nil, err
	}

	s.logger.Info("Question added", "question_id", question.ID, "number", question.Number)
	s.publishChange(ctx, question, events.ActionCreated)

	return s.buildQuestionResponse(question, true), nil
}

// createWithNextNumber assigns max(number)+1 inside a transaction and retries
// when a concurrent add claimed the same number first.
func (s *questionService) createWithNextNumber(ctx context.Context, question *models.Question) error {
	var lastErr error
	for attempt := 0; attempt < numberRetries; attempt++ {
		lastErr = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
			next, err := tx.Question().NextNumber(ctx, nil)
			if err != nil {
				return err
			}
			question.ID = 0
			question.Number = next
			return tx.Question().Create(ctx, nil, question)
		})
		if lastErr == nil {
			return nil
		}
		if !repositories.IsDuplicateError(lastErr) {
			return fmt.Errorf("failed to create question: %w", lastErr)
		}
		s.logger.Warn("Question number taken, retrying", "number", question.Number, "attempt", attempt+1)
	}
	return fmt.Errorf("failed to assign question number: %w", lastErr)
}

func (s *questionService) Edit(ctx context.Context, id uint, req *UpdateQuestionRequest, image *ImageUpload) (*QuestionResponse, error) {
	s.logger.Info("Editing question", "question_id", id)

	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError(err)
	}

	question, err := s.getQuestion(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Text != nil {
		question.Text = *req.Text
	}
	if req.CorrectAnswer != nil {
		question.CorrectAnswer = *req.CorrectAnswer
	}
	if req.Variants != nil {
		if err := question.SetVariants(toVariants(req.Variants)); err != nil {
			return nil, fmt.Errorf("failed to encode variants: %w", err)
		}
	}

	if errs := s.validator.Business().ValidateQuestion(question); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	oldImage := question.Image
	newImage := ""
	switch {
	case req.RemoveImage:
		question.Image = ""
	case image != nil:
		ref, err := s.saveImage(ctx, image)
		if err != nil {
			return nil, err
		}
		newImage = ref
		question.Image = ref
	}

	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		s.deleteImage(ctx, newImage)
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	if oldImage != "" && oldImage != question.Image {
		s.deleteImage(ctx, oldImage)
	}

	s.logger.Info("Question updated", "question_id", question.ID)
	s.publishChange(ctx, question, events.ActionUpdated)

	return s.buildQuestionResponse(question, true), nil
}

func (s *questionService) Delete(ctx context.Context, id uint) error {
	s.logger.Info("Deleting question", "question_id", id)

	question, err := s.getQuestion(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Question().Delete(ctx, nil, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to delete question: %w", err)
	}

	s.deleteImage(ctx, question.Image)

	s.logger.Info("Question deleted", "question_id", id)
	s.publishChange(ctx, question, events.ActionDeleted)
	return nil
}

func (s *questionService) getQuestion(ctx context.Context, id uint) (*models.Question, error) {
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return question, nil
}

func (s *questionService) saveImage(ctx context.Context, image *ImageUpload) (string, error) {
	ref, err := s.images.Save(ctx, image.Filename, image.Reader)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return "", newFieldValidationError("image", "image", "image must be a jpg, png, gif, webp or svg file")
		}
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return ref, nil
}

// deleteImage is best effort; a leftover file never fails the request
func (s *questionService) deleteImage(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.images.Delete(ctx, ref); err != nil {
		s.logger.Warn("Failed to delete question image", "ref", ref, "error", err)
	}
}

func (s *questionService) publishChange(ctx context.Context, question *models.Question, action string) {
	event := events.NewEvent(events.TopicQuestionChanged, events.QuestionChangedEvent{
		QuestionID: question.ID,
		Number:     question.Number,
		Action:     action,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish question event", "question_id", question.ID, "error", err)
	}
}
