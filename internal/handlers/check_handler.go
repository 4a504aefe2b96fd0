package handlers

import (
	"net/http"

	"github.com/bluerp/bluecore/internal/infrastructure/metrics"
	"github.com/bluerp/bluecore/internal/services/authorization"
	"github.com/gin-gonic/gin"
)

// CheckHandler handles permission check requests
type CheckHandler struct {
	checker   authorization.CheckerInterface
	collector *metrics.Collector
	exporter  *metrics.PrometheusExporter
}

// NewCheckHandler creates a new CheckHandler
func NewCheckHandler(checker authorization.CheckerInterface, collector *metrics.Collector, exporter *metrics.PrometheusExporter) *CheckHandler {
	return &CheckHandler{checker: checker, collector: collector, exporter: exporter}
}

// CheckRequest is the body of POST /v1/permissions/check.
type CheckRequest struct {
	Principal PrincipalRequest `json:"principal" binding:"required"`
	Action    string           `json:"action" binding:"required"`
	Resource  ResourceRequest  `json:"resource" binding:"required"`
}

// CheckResponse reports the decision and its audit reason.
type CheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Check handles POST /v1/permissions/check
func (h *CheckHandler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	decision, err := h.checker.Check(c.Request.Context(), req.Principal.toEntity(), req.Action, req.Resource.toEntity())
	if err != nil {
		respondError(c, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordDecision(decision.Allowed)
	}
	if h.exporter != nil {
		h.exporter.RecordDecision(decision.Allowed, decision.Reason)
	}

	c.JSON(http.StatusOK, CheckResponse{Allowed: decision.Allowed, Reason: decision.Reason})
}
