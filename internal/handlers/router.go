package handlers

import (
	"net/http"

	"github.com/bluerp/bluecore/internal/infrastructure/metrics"
	"github.com/gin-gonic/gin"
)

// HealthChecker reports dependency health for the healthz endpoint.
type HealthChecker interface {
	HealthCheck() error
}

// NewRouter assembles the HTTP API. healthDeps are probed by GET /healthz;
// a nil entry is skipped.
func NewRouter(
	check *CheckHandler,
	insights *InsightHandler,
	policies *PolicyHandler,
	records *RecordHandler,
	collector *metrics.Collector,
	exporter *metrics.PrometheusExporter,
	healthDeps map[string]HealthChecker,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if collector != nil {
		router.Use(metrics.Middleware(collector, exporter))
	}

	router.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		deps := gin.H{}
		for name, hc := range healthDeps {
			if hc == nil {
				continue
			}
			if err := hc.HealthCheck(); err != nil {
				status = http.StatusServiceUnavailable
				deps[name] = err.Error()
			} else {
				deps[name] = "ok"
			}
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "dependencies": deps})
	})

	v1 := router.Group("/v1")
	{
		v1.POST("/permissions/check", check.Check)
		v1.POST("/insights", insights.Query)
		v1.POST("/admin/policy", policies.Apply)
		v1.GET("/admin/policy", policies.Get)
		v1.PUT("/admin/records/:id", records.Ingest)
		v1.DELETE("/admin/records/:id", records.Delete)
	}

	return router
}
