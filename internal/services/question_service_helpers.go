package services

import (
	"context"
	"fmt"

	"github.com/avtotestprime/avtotest-service/internal/models"
)

func toVariants(inputs []VariantInput) []models.Variant {
	variants := make([]models.Variant, 0, len(inputs))
	for _, in := range inputs {
		variants = append(variants, models.Variant{Letter: in.Letter, Text: in.Text})
	}
	return variants
}

// buildQuestionResponse renders a question; withAnswer=false hides the key
func (s *questionService) buildQuestionResponse(q *models.Question, withAnswer bool) *QuestionResponse {
	return newQuestionResponse(q, s.images.URL(q.Image), withAnswer)
}

func newQuestionResponse(q *models.Question, imageURL string, withAnswer bool) *QuestionResponse {
	variants := q.Variants()
	if variants == nil {
		variants = []models.Variant{}
	}

	resp := &QuestionResponse{
		ID:       q.ID,
		Number:   q.Number,
		Text:     q.Text,
		ImageURL: imageURL,
		Variants: variants,
	}
	if withAnswer {
		resp.CorrectAnswer = q.CorrectAnswer
	}
	return resp
}

func (s *questionService) buildListResponse(ctx context.Context, questions []*models.Question, userID uint, query string) (*QuestionListResponse, error) {
	ids, err := s.repo.Bookmark().QuestionIDs(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarks: %w", err)
	}

	bookmarked := make(map[uint]bool, len(ids))
	for _, id := range ids {
		bookmarked[id] = true
	}

	resp := &QuestionListResponse{
		Questions:     make([]*QuestionResponse, 0, len(questions)),
		UserBookmarks: ids,
		Query:         query,
		Total:         len(questions),
	}
	if resp.UserBookmarks == nil {
		resp.UserBookmarks = []uint{}
	}
	for _, q := range questions {
		item := s.buildQuestionResponse(q, true)
		item.IsBookmarked = bookmarked[q.ID]
		resp.Questions = append(resp.Questions, item)
	}
	return resp, nil
}
