package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck checks one dependency
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthCheckHandler liveness
// GET /api/health
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "raffle-backend",
		"version": "v1.0",
		"api":     "healthy",
		"time":    time.Now().UTC(),
	})
}

// ReadinessHandler runs every check; any failure answers 503
// GET /api/ready
func ReadinessHandler(checks ...ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		ready := true
		components := make(gin.H, len(checks))
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				ready = false
				components[check.Name] = err.Error()
				continue
			}
			components[check.Name] = "ok"
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"success":    ready,
			"ready":      ready,
			"components": components,
		})
	}
}
