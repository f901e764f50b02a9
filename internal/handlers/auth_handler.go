package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
)

type AuthHandler struct {
	BaseHandler
	users   services.UserService
	session *AuthMiddleware
}

func NewAuthHandler(users services.UserService, session *AuthMiddleware, logger utils.Logger) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(logger),
		users:       users,
		session:     session,
	}
}

// Index sends the caller to the landing page of their role
// @Summary Role-based landing redirect
// @Tags auth
// @Success 302 "Redirect to /panel/, /dashboard/ or /login/"
// @Router / [get]
func (h *AuthHandler) Index(c *gin.Context) {
	user := currentUser(c)
	switch {
	case user == nil:
		c.Redirect(http.StatusFound, "/login/")
	case user.IsAdmin:
		c.Redirect(http.StatusFound, "/panel/")
	default:
		c.Redirect(http.StatusFound, "/dashboard/")
	}
}

// LoginPage describes the login form
// @Summary Login form
// @Tags auth
// @Produce json
// @Param next query string false "Local path to return to after login"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Already signed in"
// @Router /login/ [get]
func (h *AuthHandler) LoginPage(c *gin.Context) {
	if currentUser(c) != nil {
		h.Index(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"next":         safeNext(c.Query("next")),
		"sso_enabled":  h.users.ExternalEnabled(),
		"login_fields": []string{"username", "password"},
	})
}

// Login checks credentials and starts a browser session
// @Summary Log in
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body services.LoginRequest true "Credentials"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Redirect to next or the role landing page"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Router /login/ [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.invalidInput(c, err)
		return
	}

	result, err := h.users.Login(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.session.setCookie(c, result)
	h.LogRequest(c, "User logged in", "user_id", result.User.ID)

	next := safeNext(c.Query("next"))
	if next == "" {
		next = safeNext(c.PostForm("next"))
	}
	if next == "" {
		next = result.RedirectTo
	}
	finish(c, http.StatusOK, next, gin.H{"user": result.User})
}

// Logout ends the browser session and drops its unfinished test progress
// @Summary Log out
// @Tags auth
// @Success 302 "Redirect to /login/"
// @Router /logout/ [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if identity := currentIdentity(c); identity != nil {
		if err := h.users.Logout(c.Request.Context(), identity.BrowserSession); err != nil {
			h.LogError(c, "Failed to drop test progress on logout", err, "user_id", identity.User.ID)
		}
	}
	h.session.clearCookie(c)
	finish(c, http.StatusOK, "/login/", nil)
}

// ===== PROFILE =====

// Profile returns the caller's account
// @Summary Current account
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /profile/ [get]
func (h *AuthHandler) Profile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}

// UpdateProfile changes the caller's username and/or password
// @Summary Update own account
// @Tags auth
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body services.ProfileUpdateRequest true "New credentials"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Redirect to /profile/"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Router /profile/ [post]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req services.ProfileUpdateRequest
	if err := c.ShouldBind(&req); err != nil {
		h.invalidInput(c, err)
		return
	}

	result, err := h.users.UpdateProfile(c.Request.Context(), currentIdentity(c), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	// reissued token keeps the browser session and restarts its expiry
	h.session.setCookie(c, result)
	finish(c, http.StatusOK, "/profile/", gin.H{"user": result.User})
}
