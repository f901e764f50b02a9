package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/auth"
	"github.com/avtotestprime/avtotest-service/internal/models"
	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
)

// AuthMiddleware resolves the caller of each request and enforces the
// capability a route declares.
type AuthMiddleware struct {
	BaseHandler
	users        services.UserService
	cookieSecure bool
}

func NewAuthMiddleware(users services.UserService, cookieSecure bool, logger utils.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		BaseHandler:  NewBaseHandler(logger),
		users:        users,
		cookieSecure: cookieSecure,
	}
}

// Identify attaches the caller to the context when the session cookie or a
// single sign-on bearer token checks out. It never rejects a request.
func (m *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity := m.resolve(c); identity != nil {
			c.Set(identityKey, identity)
			c.Set("user_id", identity.User.ID)
			c.Set("user_role", identity.User.Role())
		}
		c.Next()
	}
}

func (m *AuthMiddleware) resolve(c *gin.Context) *services.Identity {
	ctx := c.Request.Context()

	if token, err := c.Cookie(auth.CookieName); err == nil && token != "" {
		identity, err := m.users.Authenticate(ctx, token)
		if err == nil {
			return identity
		}
		if !errors.Is(err, services.ErrUnauthorized) {
			m.LogError(c, "Failed to authenticate session", err)
		}
		// stale cookie, e.g. the account was deleted
		m.clearCookie(c)
	}

	if m.users.ExternalEnabled() {
		if bearer, ok := auth.BearerToken(c.GetHeader("Authorization")); ok {
			identity, err := m.users.AuthenticateExternal(ctx, bearer)
			if err == nil {
				return identity
			}
			if !errors.Is(err, services.ErrUnauthorized) {
				m.LogError(c, "Failed to authenticate bearer token", err)
			}
		}
	}
	return nil
}

// Require rejects callers lacking capability. Anonymous browsers are sent to
// the login page; API clients get 401. Authenticated callers without the
// capability get 403.
func (m *AuthMiddleware) Require(capability services.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := services.Authorize(currentUser(c), capability)
		if err == nil {
			c.Next()
			return
		}

		if errors.Is(err, services.ErrUnauthorized) && !wantsJSON(c) {
			c.Redirect(http.StatusFound, loginURL(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}

		m.LogRequest(c, "Access denied", "capability", capability.String(), "error", err)
		m.handleServiceError(c, err)
		c.Abort()
	}
}

func (m *AuthMiddleware) setCookie(c *gin.Context, result *services.LoginResult) {
	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, result.Token, maxAge, "/", "", m.cookieSecure, true)
}

func (m *AuthMiddleware) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", m.cookieSecure, true)
}

func currentUser(c *gin.Context) *models.User {
	if identity := currentIdentity(c); identity != nil {
		return identity.User
	}
	return nil
}
