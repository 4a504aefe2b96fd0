package handlers

import (
	"errors"
	"net/http"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/repositories"
	"github.com/bluerp/bluecore/internal/services/forecast"
	"github.com/bluerp/bluecore/internal/services/insight"
	"github.com/bluerp/bluecore/internal/services/policy"
	"github.com/gin-gonic/gin"
)

// === Shared helpers for all handlers ===

// PrincipalRequest is the wire form of a principal.
type PrincipalRequest struct {
	ID         string                 `json:"id" binding:"required"`
	Roles      []string               `json:"roles"`
	Attributes map[string]interface{} `json:"attributes"`
	Active     *bool                  `json:"active"`
}

// ResourceRequest is the wire form of a resource reference.
type ResourceRequest struct {
	Type       string                 `json:"type" binding:"required"`
	ID         string                 `json:"id" binding:"required"`
	Attributes map[string]interface{} `json:"attributes"`
}

func (p *PrincipalRequest) toEntity() *entities.Principal {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return &entities.Principal{
		ID:         p.ID,
		Roles:      p.Roles,
		Attributes: p.Attributes,
		Active:     active,
	}
}

func (r *ResourceRequest) toEntity() *entities.Resource {
	return &entities.Resource{Type: r.Type, ID: r.ID, Attributes: r.Attributes}
}

// respondError maps domain errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case policy.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"kind":  string(policy.ConflictOf(err)),
		})
	case errors.Is(err, insight.ErrTimeout) || errors.Is(err, forecast.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, insight.ErrAllSourcesFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, forecast.ErrInsufficientHistory):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrSeriesNotFound), errors.Is(err, repositories.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
