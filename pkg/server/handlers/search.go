package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasgraph/atlas"
	"github.com/atlasgraph/atlas/pkg/server/dto"
)

// SearchHandler handles retrieval requests.
type SearchHandler struct {
	engine atlas.Searcher
	reader atlas.GraphReader
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(engine atlas.Searcher, reader atlas.GraphReader) *SearchHandler {
	return &SearchHandler{engine: engine, reader: reader}
}

// Search handles POST /api/v1/search.
func (h *SearchHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(c, err)
		return
	}

	resp, err := h.engine.Search(c.Request.Context(), req.ToQuery())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Explain handles GET /api/v1/explain/:query_id/:entity_id.
func (h *SearchHandler) Explain(c *gin.Context) {
	explanation, err := h.engine.Explain(c.Param("query_id"), c.Param("entity_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, explanation)
}

// GetEntity handles GET /api/v1/entity/:uuid.
func (h *SearchHandler) GetEntity(c *gin.Context) {
	entity, err := h.reader.GetNode(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

// Stats handles GET /api/v1/stats.
func (h *SearchHandler) Stats(c *gin.Context) {
	stats, err := h.reader.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
