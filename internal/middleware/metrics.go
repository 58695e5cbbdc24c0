package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/issuetrail/pkg/metrics"
)

// unmatchedRoute labels requests that hit no route, keeping label cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics records request latency by route template and counts authorization denials.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		metrics.APILatency.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			metrics.HTTPDenials.WithLabelValues(path, status).Inc()
		}
	}
}
