package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/repositories"
	"github.com/avtotestprime/avtotest-service/internal/storage"
)

type bookmarkService struct {
	repo   repositories.Repository
	logger *slog.Logger
	images storage.ImageStorage
}

func NewBookmarkService(repo repositories.Repository, logger *slog.Logger, images storage.ImageStorage) BookmarkService {
	return &bookmarkService{
		repo:   repo,
		logger: logger,
		images: images,
	}
}

// Toggle adds the bookmark when absent and removes it when present
func (s *bookmarkService) Toggle(ctx context.Context, userID, questionID uint) (models.BookmarkStatus, error) {
	if _, err := s.repo.Question().GetByID(ctx, nil, questionID); err != nil {
		if repositories.IsNotFoundError(err) {
			return "", ErrQuestionNotFound
		}
		return "", fmt.Errorf("failed to get question: %w", err)
	}

	removed, err := s.repo.Bookmark().Delete(ctx, nil, userID, questionID)
	if err != nil {
		return "", fmt.Errorf("failed to toggle bookmark: %w", err)
	}
	if removed {
		s.logger.Info("Bookmark removed", "user_id", userID, "question_id", questionID)
		return models.BookmarkRemoved, nil
	}

	err = s.repo.Bookmark().Create(ctx, nil, &models.Bookmark{UserID: userID, QuestionID: questionID})
	if err != nil && !repositories.IsDuplicateError(err) {
		return "", fmt.Errorf("failed to toggle bookmark: %w", err)
	}

	s.logger.Info("Bookmark added", "user_id", userID, "question_id", questionID)
	return models.BookmarkAdded, nil
}

func (s *bookmarkService) List(ctx context.Context, userID uint) (*QuestionListResponse, error) {
	questions, err := s.repo.Bookmark().ListQuestions(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}

	resp := &QuestionListResponse{
		Questions:     make([]*QuestionResponse, 0, len(questions)),
		UserBookmarks: make([]uint, 0, len(questions)),
		Total:         len(questions),
	}
	for _, q := range questions {
		item := newQuestionResponse(q, s.images.URL(q.Image), true)
		item.IsBookmarked = true
		resp.Questions = append(resp.Questions, item)
		resp.UserBookmarks = append(resp.UserBookmarks, q.ID)
	}
	return resp, nil
}

func (s *bookmarkService) IDs(ctx context.Context, userID uint) ([]uint, error) {
	ids, err := s.repo.Bookmark().QuestionIDs(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmark IDs: %w", err)
	}
	return ids, nil
}

func (s *bookmarkService) Count(ctx context.Context, userID uint) (int64, error) {
	count, err := s.repo.Bookmark().CountByUser(ctx, nil, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookmarks: %w", err)
	}
	return count, nil
}
