package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/atlasgraph/atlas/pkg/types"
)

// IngestRequest represents a request to ingest a single document.
type IngestRequest struct {
	Text      string     `json:"text" binding:"required"`
	SourceRef string     `json:"source_ref" binding:"required"`
	Domain    string     `json:"domain,omitempty"`
	Quality   float64    `json:"quality,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Validate performs validation on IngestRequest.
func (r *IngestRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if len(r.Text) > MaxTextLength {
		return ErrTextTooLong
	}
	if strings.TrimSpace(r.SourceRef) == "" {
		return ErrEmptySourceRef
	}
	if r.Quality < 0 || r.Quality > 1 {
		return ErrQualityRange
	}
	return nil
}

// Source converts the request's provenance fields to SourceMetadata.
func (r *IngestRequest) Source() types.SourceMetadata {
	meta := types.SourceMetadata{
		SourceRef: r.SourceRef,
		Domain:    r.Domain,
		Quality:   r.Quality,
	}
	if r.Timestamp != nil {
		meta.Timestamp = *r.Timestamp
	}
	return meta
}

// IngestBatchRequest represents a request to ingest multiple documents.
type IngestBatchRequest struct {
	Documents []IngestRequest `json:"documents" binding:"required,dive"`
}

// Validate performs validation on IngestBatchRequest.
func (r *IngestBatchRequest) Validate() error {
	if len(r.Documents) == 0 {
		return ErrEmptyDocuments
	}
	if len(r.Documents) > MaxDocumentsCount {
		return ErrTooManyDocs
	}
	for i, doc := range r.Documents {
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("document %d: %w", i, err)
		}
	}
	return nil
}

// IngestResponse summarizes what one ingestion call did.
type IngestResponse struct {
	Created       []*types.Entity       `json:"created"`
	Updated       []*types.Entity       `json:"updated"`
	Relationships []*types.Relationship `json:"relationships"`
	CreatedCount  int                   `json:"created_count"`
	UpdatedCount  int                   `json:"updated_count"`
}

// NewIngestResponse converts an engine result to the API shape.
func NewIngestResponse(result *types.IngestResult) IngestResponse {
	return IngestResponse{
		Created:       result.Created,
		Updated:       result.Updated,
		Relationships: result.Relationships,
		CreatedCount:  len(result.Created),
		UpdatedCount:  len(result.Updated),
	}
}

// IngestBatchResponse reports per-document outcomes. Results and Errors
// are positional with the request's documents; a failed document has a
// nil result and a non-empty error string.
type IngestBatchResponse struct {
	Results []*IngestResponse `json:"results"`
	Errors  []string          `json:"errors"`
	Failed  int               `json:"failed"`
}
