package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
)

// QuestionHandler serves the question bank to signed-in readers
type QuestionHandler struct {
	BaseHandler
	questions services.QuestionService
	bookmarks services.BookmarkService
}

func NewQuestionHandler(questions services.QuestionService, bookmarks services.BookmarkService, logger utils.Logger) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler: NewBaseHandler(logger),
		questions:   questions,
		bookmarks:   bookmarks,
	}
}

// ListQuestions returns every question in number order
// @Summary List questions
// @Tags questions
// @Produce json
// @Success 200 {object} services.QuestionListResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /questions/ [get]
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	response, err := h.questions.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetQuestion returns one question with its correct answer
// @Summary Get a question by ID
// @Tags questions
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} services.QuestionResponse
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /questions/{id}/ [get]
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	response, err := h.questions.Get(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// SearchQuestions matches the query against question text, case-insensitively
// @Summary Search questions
// @Tags questions
// @Produce json
// @Param q query string false "Search text"
// @Success 200 {object} services.QuestionListResponse
// @Router /search/ [get]
func (h *QuestionHandler) SearchQuestions(c *gin.Context) {
	query := c.Query("q")
	h.LogRequest(c, "Searching questions", "query", query)

	response, err := h.questions.Search(c.Request.Context(), currentUser(c).ID, query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ===== BOOKMARKS =====

// ToggleBookmark adds or removes a bookmark on a question
// @Summary Toggle a bookmark
// @Tags bookmarks
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} map[string]string "status is added or removed"
// @Success 302 "Redirect back to the referring page"
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /bookmark/toggle/{id}/ [post]
func (h *QuestionHandler) ToggleBookmark(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	status, err := h.bookmarks.Toggle(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"status": status})
		return
	}
	c.Redirect(http.StatusFound, backTo(c, "/questions/"))
}

// ListBookmarks returns the caller's bookmarked questions
// @Summary List bookmarked questions
// @Tags bookmarks
// @Produce json
// @Success 200 {object} services.QuestionListResponse
// @Router /bookmarks/ [get]
func (h *QuestionHandler) ListBookmarks(c *gin.Context) {
	response, err := h.bookmarks.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// backTo returns the same-site Referer path, or fallback
func backTo(c *gin.Context, fallback string) string {
	referer := c.GetHeader("Referer")
	if referer == "" {
		return fallback
	}
	u, err := url.Parse(referer)
	if err != nil || (u.Host != "" && !strings.EqualFold(u.Host, c.Request.Host)) {
		return fallback
	}
	if next := safeNext(u.RequestURI()); next != "" {
		return next
	}
	return fallback
}
