package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
	"github.com/avtotestprime/avtotest-service/internal/validator"
)

// ErrorResponse is the body of every failed JSON request
type ErrorResponse struct {
	Message string                      `json:"message"`
	Details string                      `json:"details,omitempty"`
	Errors  []validator.ValidationError `json:"errors,omitempty"`

	// RedirectTo is where a browser would have been sent instead
	RedirectTo string `json:"redirect_to,omitempty"`
}

// BaseHandler carries what every handler needs: logging and error mapping
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Debug(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, msg string, err error, args ...any) {
	utils.GetLogger(c, h.logger).Error(msg, append(args, "error", err)...)
}

func (h *BaseHandler) RespondWithError(c *gin.Context, status int, message, details string) {
	c.JSON(status, ErrorResponse{Message: message, Details: details})
}

// parseIDParam reads a positive numeric path parameter and answers 400 otherwise
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid "+name, c.Param(name))
		return 0, false
	}
	return uint(id), true
}

// handleServiceError maps service errors onto HTTP responses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: verr.Error(),
			Errors:  verr.Errors,
		})
	case errors.Is(err, services.ErrInvalidCredentials):
		h.RespondWithError(c, http.StatusUnauthorized, "Invalid username or password", "")
	case errors.Is(err, services.ErrUnauthorized):
		h.RespondWithError(c, http.StatusUnauthorized, "Authentication required", "")
	case errors.Is(err, services.ErrForbidden):
		h.RespondWithError(c, http.StatusForbidden, "Access denied", err.Error())
	case errors.Is(err, services.ErrNotFound):
		h.RespondWithError(c, http.StatusNotFound, "Resource not found", err.Error())
	case errors.Is(err, services.ErrAlreadyCompleted), errors.Is(err, services.ErrSessionExpired):
		h.RespondWithError(c, http.StatusConflict, "Test session is no longer open", err.Error())
	default:
		h.LogError(c, "Unhandled service error", err, "path", c.Request.URL.Path)
		h.RespondWithError(c, http.StatusInternalServerError, "Internal server error", "")
	}
}

// invalidInput answers a request whose body could not be bound
func (h *BaseHandler) invalidInput(c *gin.Context, err error) {
	h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
}

// ===== REQUEST CONTEXT =====

const identityKey = "identity"

// currentIdentity returns the caller set by the authentication middleware
func currentIdentity(c *gin.Context) *services.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(*services.Identity); ok {
			return id
		}
	}
	return nil
}

// isXHR reports an AJAX request from page scripts
func isXHR(c *gin.Context) bool {
	return c.GetHeader("X-Requested-With") == "XMLHttpRequest"
}

// wantsJSON reports whether the client expects a JSON answer instead of a redirect
func wantsJSON(c *gin.Context) bool {
	if isXHR(c) {
		return true
	}
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, gin.MIMEJSON) && !strings.Contains(accept, gin.MIMEHTML)
}

// finish ends a state-changing request: browsers are redirected, API
// clients get the payload.
func finish(c *gin.Context, status int, location string, payload any) {
	if wantsJSON(c) {
		if payload == nil {
			payload = gin.H{}
		}
		if body, ok := payload.(gin.H); ok {
			body["redirect_to"] = location
		}
		c.JSON(status, payload)
		return
	}
	c.Redirect(http.StatusFound, location)
}

// safeNext accepts only local absolute paths as a post-login target
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return ""
	}
	return next
}

func loginURL(next string) string {
	if next == "" {
		return "/login/"
	}
	return "/login/?next=" + url.QueryEscape(next)
}
