package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avtotestprime/avtotest-service/internal/services"
	"github.com/avtotestprime/avtotest-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type DashboardHandler struct {
	BaseHandler
	stats services.StatisticsService
}

func NewDashboardHandler(stats services.StatisticsService, logger utils.Logger) *DashboardHandler {
	return &DashboardHandler{
		BaseHandler: NewBaseHandler(logger),
		stats:       stats,
	}
}

// ===== USER DASHBOARD ENDPOINTS =====

// GetUserDashboard returns the caller's summary counters
// @Summary Get user dashboard
// @Tags dashboard
// @Produce json
// @Success 200 {object} services.UserDashboard
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /dashboard/ [get]
func (h *DashboardHandler) GetUserDashboard(c *gin.Context) {
	response, err := h.stats.UserDashboard(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetUserStatistics returns the caller's test history summary
// @Summary Get user statistics
// @Tags dashboard
// @Produce json
// @Success 200 {object} services.UserStatistics
// @Router /statistics/ [get]
func (h *DashboardHandler) GetUserStatistics(c *gin.Context) {
	response, err := h.stats.UserStatistics(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ===== ADMIN DASHBOARD ENDPOINTS =====

// GetAdminDashboard returns platform-wide counters and the latest tests
// @Summary Get admin dashboard
// @Tags panel
// @Produce json
// @Success 200 {object} services.AdminDashboard
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /panel/ [get]
func (h *DashboardHandler) GetAdminDashboard(c *gin.Context) {
	response, err := h.stats.AdminDashboard(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetAdminStatistics returns per-user test counts and averages
// @Summary Get per-user statistics
// @Tags panel
// @Produce json
// @Success 200 {object} services.AdminStatistics
// @Router /panel/statistics/ [get]
func (h *DashboardHandler) GetAdminStatistics(c *gin.Context) {
	response, err := h.stats.AdminStatistics(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// ExportAdminStatistics downloads per-user statistics as a workbook
// @Summary Export per-user statistics
// @Tags panel
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /panel/statistics/export/ [get]
func (h *DashboardHandler) ExportAdminStatistics(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.stats.ExportAdminStatistics(c.Request.Context(), &buf); err != nil {
		h.handleServiceError(c, err)
		return
	}
	sendWorkbook(c, "statistics.xlsx", &buf)
}

func sendWorkbook(c *gin.Context, filename string, buf *bytes.Buffer) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
