package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/dealcache/internal/monitoring"
)

func registerHealthRoutes(r gin.IRouter, enabled bool, health *monitoring.Health) {
	if !enabled || health == nil {
		for _, path := range []string{"/health", "/health/live", "/health/ready"} {
			r.GET(path, func(c *gin.Context) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "status": "disabled"})
			})
		}
		return
	}

	r.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		report := monitoring.Combine(
			health.Evaluate(ctx, monitoring.Liveness),
			health.Evaluate(ctx, monitoring.Readiness),
		)
		c.JSON(statusFor(report), gin.H{
			"success":    report.Ready,
			"status":     report.Status,
			"checked_at": report.CheckedAt,
		})
	})
	r.GET("/health/live", func(c *gin.Context) {
		report := health.Evaluate(c.Request.Context(), monitoring.Liveness)
		c.JSON(statusFor(report), report)
	})
	r.GET("/health/ready", func(c *gin.Context) {
		report := health.Evaluate(c.Request.Context(), monitoring.Readiness)
		c.JSON(statusFor(report), report)
	})
}

func statusFor(report monitoring.Report) int {
	if report.Ready {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
