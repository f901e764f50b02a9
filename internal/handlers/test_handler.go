package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
)

const testStartPath = "/test/start/"

// TestHandler drives a timed practice test from start to result
type TestHandler struct {
	BaseHandler
	tests services.TestService
}

func NewTestHandler(tests services.TestService, logger utils.Logger) *TestHandler {
	return &TestHandler{
		BaseHandler: NewBaseHandler(logger),
		tests:       tests,
	}
}

func testPath(id uint) string {
	return fmt.Sprintf("/test/%d/", id)
}

func resultPath(id uint) string {
	return fmt.Sprintf("/test/%d/result/", id)
}

// ===== SESSION LIFECYCLE =====

// StartPage reports how many questions a test can draw from
// @Summary Test start form
// @Tags tests
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /test/start/ [get]
func (h *TestHandler) StartPage(c *gin.Context) {
	info, err := h.tests.StartInfo(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_available":       info.TotalAvailable,
		"default_num_questions": defaultQuestionCount,
	})
}

// StartTest samples questions and opens a new session
// @Summary Start a test
// @Tags tests
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param num_questions formData int false "Number of questions, clamped to the bank size"
// @Success 201 {object} map[string]interface{}
// @Success 302 "Redirect to the test page"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Router /test/start/ [post]
func (h *TestHandler) StartTest(c *gin.Context) {
	requested, err := bindQuestionCount(c)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	identity := currentIdentity(c)
	session, err := h.tests.Start(c.Request.Context(), identity.User.ID, identity.BrowserSession, requested)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Test started", "session_id", session.ID)
	finish(c, http.StatusCreated, testPath(session.ID), gin.H{"session": session})
}

// TakeTest returns the questions of an open session without their answers
// @Summary Take a test
// @Tags tests
// @Produce json
// @Param id path int true "Test session ID"
// @Success 200 {object} services.TakeTestResponse
// @Success 302 "Completed sessions go to the result, expired ones to the start page"
// @Router /test/{id}/ [get]
func (h *TestHandler) TakeTest(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	identity := currentIdentity(c)
	response, err := h.tests.Take(c.Request.Context(), id, identity.User.ID, identity.BrowserSession)
	if err != nil {
		h.handleSessionError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// SaveAnswer stores one answer of an open session
// @Summary Save a partial answer
// @Tags tests
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param id path int true "Test session ID"
// @Param request body services.SaveAnswerRequest true "Answer"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 409 {object} ErrorResponse "Session completed or expired"
// @Router /test/{id}/answer/ [post]
func (h *TestHandler) SaveAnswer(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SaveAnswerRequest
	if err := c.ShouldBind(&req); err != nil {
		h.invalidInput(c, err)
		return
	}

	identity := currentIdentity(c)
	if err := h.tests.SaveAnswer(c.Request.Context(), id, identity.User.ID, identity.BrowserSession, &req); err != nil {
		h.handleSessionError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// SubmitTest scores the session and completes it
// @Summary Submit a test
// @Tags tests
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param id path int true "Test session ID"
// @Param request body services.SubmitTestRequest true "Final answers keyed by question ID"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Redirect to the result page"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Router /test/{id}/submit/ [post]
func (h *TestHandler) SubmitTest(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	req, err := bindSubmit(c)
	if err != nil {
		h.invalidInput(c, err)
		return
	}

	identity := currentIdentity(c)
	session, err := h.tests.Submit(c.Request.Context(), id, identity.User.ID, identity.BrowserSession, req)
	if err != nil {
		h.handleSessionError(c, id, err)
		return
	}

	h.LogRequest(c, "Test submitted", "session_id", session.ID, "score", session.ScorePercent())
	finish(c, http.StatusOK, resultPath(session.ID), gin.H{
		"session":       session,
		"score_percent": session.ScorePercent(),
	})
}

// TestResult returns a completed session with every answer
// @Summary Test result
// @Tags tests
// @Produce json
// @Param id path int true "Test session ID"
// @Success 200 {object} services.TestResultResponse
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /test/{id}/result/ [get]
func (h *TestHandler) TestResult(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	response, err := h.tests.Result(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// handleSessionError sends browsers somewhere useful when a session is no
// longer open. API clients get the error with the same target attached.
func (h *TestHandler) handleSessionError(c *gin.Context, id uint, err error) {
	var (
		status   int
		location string
	)
	switch {
	case errors.Is(err, services.ErrAlreadyCompleted):
		status, location = http.StatusConflict, resultPath(id)
	case errors.Is(err, services.ErrSessionExpired):
		status, location = http.StatusConflict, testStartPath
	case errors.Is(err, services.ErrSessionNotFound):
		status, location = http.StatusNotFound, testStartPath
	default:
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Test session not open", "session_id", id, "error", err)
	if !wantsJSON(c) {
		c.Redirect(http.StatusFound, location)
		return
	}
	c.JSON(status, ErrorResponse{
		Message:    "Test session is no longer open",
		Details:    err.Error(),
		RedirectTo: location,
	})
}
