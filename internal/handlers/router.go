package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

// RouterConfig carries the transport settings the handlers need
type RouterConfig struct {
	CookieSecure bool

	// MediaRoot is served at MediaURL when images are stored on local disk
	MediaRoot string
	MediaURL  string
}

type HandlerManager struct {
	serviceManager services.ServiceManager
	config         RouterConfig

	authHandler          *AuthHandler
	questionHandler      *QuestionHandler
	testHandler          *TestHandler
	dashboardHandler     *DashboardHandler
	panelQuestionHandler *PanelQuestionHandler
	userHandler          *UserHandler
	authMiddleware       *AuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	config RouterConfig,
) *HandlerManager {
	authMiddleware := NewAuthMiddleware(serviceManager.User(), config.CookieSecure, logger)

	return &HandlerManager{
		serviceManager:       serviceManager,
		config:               config,
		authHandler:          NewAuthHandler(serviceManager.User(), authMiddleware, logger),
		questionHandler:      NewQuestionHandler(serviceManager.Question(), serviceManager.Bookmark(), logger),
		testHandler:          NewTestHandler(serviceManager.Test(), logger),
		dashboardHandler:     NewDashboardHandler(serviceManager.Statistics(), logger),
		panelQuestionHandler: NewPanelQuestionHandler(serviceManager.Question(), logger),
		userHandler:          NewUserHandler(serviceManager.User(), logger),
		authMiddleware:       authMiddleware,
	}
}

// route is one entry of the route table. Capability is checked before the
// handler runs.
type route struct {
	method     string
	path       string
	capability services.Capability
	handler    gin.HandlerFunc
}

func (hm *HandlerManager) routes() []route {
	const (
		public = services.CapabilityPublic
		member = services.CapabilityAuthenticated
		admin  = services.CapabilityAdministrator
	)

	return []route{
		// Session
		{http.MethodGet, "/", public, hm.authHandler.Index},
		{http.MethodGet, "/login/", public, hm.authHandler.LoginPage},
		{http.MethodPost, "/login/", public, hm.authHandler.Login},
		{http.MethodPost, "/logout/", public, hm.authHandler.Logout},
		{http.MethodGet, "/profile/", member, hm.authHandler.Profile},
		{http.MethodPost, "/profile/", member, hm.authHandler.UpdateProfile},

		// Dashboard
		{http.MethodGet, "/dashboard/", member, hm.dashboardHandler.GetUserDashboard},
		{http.MethodGet, "/statistics/", member, hm.dashboardHandler.GetUserStatistics},

		// Question bank and bookmarks
		{http.MethodGet, "/questions/", member, hm.questionHandler.ListQuestions},
		{http.MethodGet, "/questions/:id/", member, hm.questionHandler.GetQuestion},
		{http.MethodGet, "/search/", member, hm.questionHandler.SearchQuestions},
		{http.MethodPost, "/bookmark/toggle/:id/", member, hm.questionHandler.ToggleBookmark},
		{http.MethodGet, "/bookmarks/", member, hm.questionHandler.ListBookmarks},

		// Test sessions
		{http.MethodGet, "/test/start/", member, hm.testHandler.StartPage},
		{http.MethodPost, "/test/start/", member, hm.testHandler.StartTest},
		{http.MethodGet, "/test/:id/", member, hm.testHandler.TakeTest},
		{http.MethodPost, "/test/:id/answer/", member, hm.testHandler.SaveAnswer},
		{http.MethodPost, "/test/:id/submit/", member, hm.testHandler.SubmitTest},
		{http.MethodGet, "/test/:id/result/", member, hm.testHandler.TestResult},

		// Admin panel
		{http.MethodGet, "/panel/", admin, hm.dashboardHandler.GetAdminDashboard},
		{http.MethodGet, "/panel/questions/", admin, hm.panelQuestionHandler.ListQuestions},
		{http.MethodGet, "/panel/questions/add/", admin, hm.panelQuestionHandler.AddQuestionPage},
		{http.MethodPost, "/panel/questions/add/", admin, hm.panelQuestionHandler.AddQuestion},
		{http.MethodGet, "/panel/questions/:id/edit/", admin, hm.panelQuestionHandler.EditQuestionPage},
		{http.MethodPost, "/panel/questions/:id/edit/", admin, hm.panelQuestionHandler.EditQuestion},
		{http.MethodPost, "/panel/questions/:id/delete/", admin, hm.panelQuestionHandler.DeleteQuestion},
		{http.MethodGet, "/panel/questions/export/", admin, hm.panelQuestionHandler.ExportQuestions},
		{http.MethodPost, "/panel/questions/import/", admin, hm.panelQuestionHandler.ImportQuestions},
		{http.MethodGet, "/panel/users/", admin, hm.userHandler.ListUsers},
		{http.MethodGet, "/panel/users/add/", admin, hm.userHandler.AddUserPage},
		{http.MethodPost, "/panel/users/add/", admin, hm.userHandler.AddUser},
		{http.MethodGet, "/panel/users/:id/edit/", admin, hm.userHandler.EditUserPage},
		{http.MethodPost, "/panel/users/:id/edit/", admin, hm.userHandler.EditUser},
		{http.MethodPost, "/panel/users/:id/delete/", admin, hm.userHandler.DeleteUser},
		{http.MethodGet, "/panel/statistics/", admin, hm.dashboardHandler.GetAdminStatistics},
		{http.MethodGet, "/panel/statistics/export/", admin, hm.dashboardHandler.ExportAdminStatistics},
	}
}

// SetupRoutes registers the route table behind the identity middleware,
// plus the health check and local media.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.health)
	if hm.config.MediaRoot != "" && hm.config.MediaURL != "" {
		router.Static(hm.config.MediaURL, hm.config.MediaRoot)
	}

	site := router.Group("/")
	site.Use(hm.authMiddleware.Identify())
	for _, r := range hm.routes() {
		site.Handle(r.method, r.path, hm.authMiddleware.Require(r.capability), r.handler)
	}
}

// health reports database reachability
func (hm *HandlerManager) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := hm.serviceManager.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "avtotest-service",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "avtotest-service",
	})
}
