package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware returns a gin middleware that records metrics for each request.
func Middleware(collector *Collector, exporter *PrometheusExporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		// Record request
		collector.RecordRequest(route)
		if exporter != nil {
			exporter.RecordRequest(route)
		}

		c.Next()

		// Record duration
		duration := time.Since(start).Seconds()
		collector.RecordDuration(route, duration)
		if exporter != nil {
			exporter.RecordDuration(route, duration)
		}

		// Record error if any
		if c.Writer.Status() >= 500 {
			collector.RecordError(route)
			if exporter != nil {
				exporter.RecordError(route)
			}
		}
	}
}
