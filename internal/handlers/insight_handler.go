package handlers

import (
	"context"
	"net/http"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/services/insight"
	"github.com/gin-gonic/gin"
)

// Summarizer renders a narrative for an insight feed. The returned bool
// reports degraded (template fallback) mode.
type Summarizer interface {
	Summarize(ctx context.Context, insights []*entities.Insight) (string, bool)
}

// InsightHandler handles insight feed requests
type InsightHandler struct {
	aggregator *insight.Aggregator
	summarizer Summarizer // optional
}

// NewInsightHandler creates a new InsightHandler
func NewInsightHandler(aggregator *insight.Aggregator, summarizer Summarizer) *InsightHandler {
	return &InsightHandler{aggregator: aggregator, summarizer: summarizer}
}

// SimilarityQueryRequest asks for nearest-neighbor insights.
type SimilarityQueryRequest struct {
	Vector       []float32 `json:"vector" binding:"required"`
	K            int       `json:"k" binding:"required"`
	ResourceType string    `json:"resource_type" binding:"required"`
	Action       string    `json:"action"`
}

// SeriesQueryRequest asks for forecast or anomaly insights over one series.
type SeriesQueryRequest struct {
	SeriesID     string `json:"series_id" binding:"required"`
	Horizon      int    `json:"horizon"`
	ResourceType string `json:"resource_type" binding:"required"`
	Action       string `json:"action"`
}

// InsightRequest is the body of POST /v1/insights.
type InsightRequest struct {
	Principal  PrincipalRequest        `json:"principal" binding:"required"`
	Similarity *SimilarityQueryRequest `json:"similarity"`
	Forecasts  []SeriesQueryRequest    `json:"forecasts"`
	Anomalies  []SeriesQueryRequest    `json:"anomalies"`
	Limit      int                     `json:"limit"`
}

// InsightResponse carries the ranked feed and its narrative.
type InsightResponse struct {
	Insights          []*entities.Insight `json:"insights"`
	Narrative         string              `json:"narrative,omitempty"`
	NarrativeDegraded bool                `json:"narrative_degraded,omitempty"`
}

// Query handles POST /v1/insights
func (h *InsightHandler) Query(c *gin.Context) {
	var req InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	q := &insight.Query{Limit: req.Limit}
	if req.Similarity != nil {
		q.Similarity = &insight.SimilarityQuery{
			Vector:       req.Similarity.Vector,
			K:            req.Similarity.K,
			ResourceType: req.Similarity.ResourceType,
			Action:       req.Similarity.Action,
		}
	}
	for _, f := range req.Forecasts {
		q.Forecasts = append(q.Forecasts, insight.ForecastQuery{
			SeriesID:     f.SeriesID,
			Horizon:      f.Horizon,
			ResourceType: f.ResourceType,
			Action:       f.Action,
		})
	}
	for _, a := range req.Anomalies {
		q.Anomalies = append(q.Anomalies, insight.AnomalyQuery{
			SeriesID:     a.SeriesID,
			ResourceType: a.ResourceType,
			Action:       a.Action,
		})
	}

	insights, err := h.aggregator.Produce(c.Request.Context(), req.Principal.toEntity(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := InsightResponse{Insights: insights}
	if resp.Insights == nil {
		resp.Insights = []*entities.Insight{}
	}
	if h.summarizer != nil {
		resp.Narrative, resp.NarrativeDegraded = h.summarizer.Summarize(c.Request.Context(), insights)
	}
	c.JSON(http.StatusOK, resp)
}
