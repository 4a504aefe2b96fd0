package handlers

import (
	"net/http"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/repositories"
	"github.com/bluerp/bluecore/internal/services/vector"
	"github.com/gin-gonic/gin"
)

// RecordHandler handles business record ingestion. Each ingested record is
// persisted and its embedding upserted into the index, so similarity queries
// see it immediately and a restarted server can rebuild the index from
// storage.
type RecordHandler struct {
	records repositories.RecordRepository
	indexer *vector.Indexer
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(records repositories.RecordRepository, indexer *vector.Indexer) *RecordHandler {
	return &RecordHandler{records: records, indexer: indexer}
}

// IngestRequest is the body of PUT /v1/admin/records/:id.
type IngestRequest struct {
	Attributes map[string]interface{} `json:"attributes" binding:"required"`
}

// Ingest handles PUT /v1/admin/records/:id
func (h *RecordHandler) Ingest(c *gin.Context) {
	id := c.Param("id")

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// Embed before persisting so a record with non-numeric feature
	// attributes is rejected whole.
	if err := h.indexer.Sync(id, req.Attributes); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.records.Save(c.Request.Context(), &entities.BusinessRecord{
		ID:         id,
		Attributes: req.Attributes,
	}); err != nil {
		h.indexer.Drop(id)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record_id": id})
}

// Delete handles DELETE /v1/admin/records/:id
func (h *RecordHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	if err := h.records.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.indexer.Drop(id)

	c.JSON(http.StatusOK, gin.H{"record_id": id})
}
