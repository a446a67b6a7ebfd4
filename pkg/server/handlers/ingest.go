package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasgraph/atlas"
	"github.com/atlasgraph/atlas/pkg/patterns"
	"github.com/atlasgraph/atlas/pkg/server/dto"
)

// IngestHandler handles document ingestion requests.
type IngestHandler struct {
	engine atlas.Ingestor
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(engine atlas.Ingestor) *IngestHandler {
	return &IngestHandler{engine: engine}
}

// Ingest handles POST /api/v1/ingest.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(c, err)
		return
	}

	result, err := h.engine.Ingest(c.Request.Context(), req.Text, req.Source())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewIngestResponse(result))
}

// IngestBatch handles POST /api/v1/ingest/batch. Documents are
// processed independently; the response reports per-document outcomes.
func (h *IngestHandler) IngestBatch(c *gin.Context) {
	var req dto.IngestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(c, err)
		return
	}

	docs := make([]patterns.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = patterns.Document{Text: d.Text, Source: d.Source()}
	}

	results, errs := h.engine.IngestBatch(c.Request.Context(), docs)

	resp := dto.IngestBatchResponse{
		Results: make([]*dto.IngestResponse, len(results)),
		Errors:  make([]string, len(errs)),
	}
	for i, result := range results {
		if errs[i] != nil {
			resp.Errors[i] = errs[i].Error()
			resp.Failed++
			continue
		}
		converted := dto.NewIngestResponse(result)
		resp.Results[i] = &converted
	}
	c.JSON(http.StatusOK, resp)
}
