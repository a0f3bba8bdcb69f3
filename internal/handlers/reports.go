package handlers

import (
	"net/http"

	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

func GetDashboard(reports *services.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		dashboard, err := reports.Dashboard(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dashboard)
	}
}

// GetReport answers the date-ranged report; start_date and end_date default
// to the last 30 days.
func GetReport(reports *services.ReportService) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := reports.Report(c.Request.Context(), services.ReportFilter{
			StartDate: c.Query("start_date"),
			EndDate:   c.Query("end_date"),
			Page:      queryInt(c, "page"),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
