package handler

import (
	"net/http"
	"time"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	auth              *middleware.Authenticator
}

func NewStatisticsHandler(statisticsService service.StatisticsService, auth *middleware.Authenticator) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, auth: auth}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/api/statistics")
	{
		statsGroup.GET("", h.auth.RequirePermission("reports.read"), h.GetStatistics)
	}
}

// parseBound accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func parseBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// @Summary      Get Dashboard Statistics
// @Description  Rider totals, onboarding and employment breakdowns, document and acknowledgement status counts
// @Tags         Statistics
// @Produce      json
// @Param        startDate query string false "Start (RFC3339 or YYYY-MM-DD, default first day of month)"
// @Param        endDate   query string false "End (RFC3339 or YYYY-MM-DD, default now)"
// @Success      200 {object} response.Response{data=model.StatisticsResponse}
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      401 {object} response.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /api/statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	startDateStr := c.Query("startDate")
	endDateStr := c.Query("endDate")

	var startDate, endDate time.Time
	var err error

	// Default to current month if no dates are provided
	now := time.Now()
	if startDateStr == "" {
		startDate = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	} else {
		startDate, err = parseBound(startDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid startDate format, expected RFC3339 or YYYY-MM-DD"))
			return
		}
	}

	if endDateStr == "" {
		endDate = now
	} else {
		endDate, err = parseBound(endDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid endDate format, expected RFC3339 or YYYY-MM-DD"))
			return
		}
		if len(endDateStr) == len(time.DateOnly) {
			endDate = endDate.Add(24*time.Hour - time.Nanosecond)
		}
	}

	stats, err := h.statisticsService.GetStatistics(c.Request.Context(), startDate, endDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
