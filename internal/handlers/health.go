package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/internal/monitoring"
)

// Health summarises readiness without the per-probe detail.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))
		c.JSON(healthStatus(report), gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checked_at": time.Now().UTC(),
		})
	}
}

// Liveness answers as long as the process serves HTTP.
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"status":     monitoring.StatusUp,
		"checked_at": time.Now().UTC(),
	})
}

// Readiness reports every probe.
func Readiness(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(requestContext(c))
		c.JSON(healthStatus(report), gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checks":     report.Checks,
			"checked_at": time.Now().UTC(),
		})
	}
}

func healthStatus(report monitoring.HealthReport) int {
	if !report.Success {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
