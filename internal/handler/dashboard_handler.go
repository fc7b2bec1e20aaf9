package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/middleware"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
)

// DashboardHandler serves the role landing page.
type DashboardHandler struct {
	dashboardService *service.DashboardService
	log              zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboardService *service.DashboardService, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		log:              log.With().Str("component", "dashboard_handler").Logger(),
	}
}

// GetDashboard godoc
// GET /api/v1/dashboard
// Returns the dashboard of the caller's role.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	dash, err := h.dashboardService.For(claims.Actor())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	data, err := dash.Build(c.Request.Context())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"role": dash.Role(), "dashboard": data})
}
