package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
)

const panelUsersPath = "/panel/users/"

// UserHandler manages regular accounts from the admin panel
type UserHandler struct {
	BaseHandler
	users services.UserService
}

func NewUserHandler(users services.UserService, logger utils.Logger) *UserHandler {
	return &UserHandler{
		BaseHandler: NewBaseHandler(logger),
		users:       users,
	}
}

// ListUsers lists every non-administrator account
// @Summary List users
// @Tags panel
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /panel/users/ [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	h.LogRequest(c, "Listing users")

	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

// AddUserPage describes the new account form
// @Summary User form
// @Tags panel
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /panel/users/add/ [get]
func (h *UserHandler) AddUserPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"fields": []string{"username", "password"}})
}

// AddUser creates a regular account
// @Summary Create a user
// @Tags panel
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body services.CreateUserRequest true "Account"
// @Success 201 {object} map[string]interface{}
// @Success 302 "Redirect to the user list"
// @Failure 400 {object} ErrorResponse "Bad request or username taken"
// @Router /panel/users/add/ [post]
func (h *UserHandler) AddUser(c *gin.Context) {
	var req services.CreateUserRequest
	if err := c.ShouldBind(&req); err != nil {
		h.invalidInput(c, err)
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	finish(c, http.StatusCreated, panelUsersPath, gin.H{"user": user})
}

// EditUserPage returns an account for its edit form
// @Summary User edit form
// @Tags panel
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /panel/users/{id}/edit/ [get]
func (h *UserHandler) EditUserPage(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// EditUser renames an account and optionally resets its password
// @Summary Update a user
// @Tags panel
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param id path int true "User ID"
// @Param request body services.UpdateUserRequest true "Account changes"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Redirect to the user list"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /panel/users/{id}/edit/ [post]
func (h *UserHandler) EditUser(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateUserRequest
	if err := c.ShouldBind(&req); err != nil {
		h.invalidInput(c, err)
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	finish(c, http.StatusOK, panelUsersPath, gin.H{"user": user})
}

// DeleteUser removes an account with its sessions and bookmarks
// @Summary Delete a user
// @Tags panel
// @Param id path int true "User ID"
// @Success 200 {object} map[string]interface{}
// @Success 302 "Redirect to the user list"
// @Failure 404 {object} ErrorResponse "Not found"
// @Router /panel/users/{id}/delete/ [post]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "User deleted", "user_id", id)
	finish(c, http.StatusOK, panelUsersPath, gin.H{"deleted": id})
}
