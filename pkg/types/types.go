package types

import (
	"errors"
	"time"
)

// Validation errors
var (
	ErrEmptyName       = errors.New("name cannot be empty")
	ErrEmptyEntityType = errors.New("entity_type cannot be empty")
	ErrEmptyUUID       = errors.New("uuid cannot be empty")
	ErrEmptySourceID   = errors.New("source_entity_id cannot be empty")
	ErrEmptyTargetID   = errors.New("target_entity_id cannot be empty")
	ErrEmptyRelType    = errors.New("relationship_type cannot be empty")
	ErrScoreOutOfRange = errors.New("score must be in [0,1]")
	ErrInvalidLimit    = errors.New("limit must be positive")
)

// Entity represents a node in the knowledge graph.
type Entity struct {
	Uuid       string            `json:"uuid" mapstructure:"uuid"`
	EntityType string            `json:"entity_type" mapstructure:"entity_type"`
	Name       string            `json:"name" mapstructure:"name"`
	Attributes map[string]string `json:"attributes,omitempty" mapstructure:"attributes"`

	// Embedding is nil until the embedding index has seen the entity.
	Embedding []float32 `json:"embedding,omitempty" mapstructure:"embedding"`

	QualityScore float64 `json:"quality_score" mapstructure:"quality_score"`
	Version      int64   `json:"version" mapstructure:"version"`
	SourceRef    string  `json:"source_ref,omitempty" mapstructure:"source_ref"`

	CreatedAt time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt time.Time `json:"updated_at" mapstructure:"updated_at"`

	// PriorVersions holds snapshots taken before each merge, newest first.
	// Capped by the store's history limit.
	PriorVersions []EntityVersion `json:"prior_versions,omitempty" mapstructure:"prior_versions"`

	// MergedSources records provenance refs of candidates that merged
	// into this entity without winning the quality comparison, newest
	// first. Capped by the store's history limit.
	MergedSources []string `json:"merged_sources,omitempty" mapstructure:"merged_sources"`
}

// EntityVersion is a point-in-time snapshot of an entity, kept for
// temporal history and explainability.
type EntityVersion struct {
	Version      int64             `json:"version"`
	Name         string            `json:"name"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	QualityScore float64           `json:"quality_score"`
	SourceRef    string            `json:"source_ref,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Validate checks if the Entity has all required fields set.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return ErrEmptyName
	}
	if e.EntityType == "" {
		return ErrEmptyEntityType
	}
	if e.QualityScore < 0 || e.QualityScore > 1 {
		return ErrScoreOutOfRange
	}
	return nil
}

// ValidateForCreate checks if the Entity has all required fields for creation.
func (e *Entity) ValidateForCreate() error {
	if e.Uuid == "" {
		return ErrEmptyUUID
	}
	return e.Validate()
}

// Snapshot captures the current state as an EntityVersion.
func (e *Entity) Snapshot() EntityVersion {
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return EntityVersion{
		Version:      e.Version,
		Name:         e.Name,
		Attributes:   attrs,
		QualityScore: e.QualityScore,
		SourceRef:    e.SourceRef,
		UpdatedAt:    e.UpdatedAt,
	}
}

// Clone returns a deep copy so stores can hand out entities without
// sharing mutable state with callers.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Attributes != nil {
		clone.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			clone.Attributes[k] = v
		}
	}
	if e.Embedding != nil {
		clone.Embedding = make([]float32, len(e.Embedding))
		copy(clone.Embedding, e.Embedding)
	}
	if e.PriorVersions != nil {
		clone.PriorVersions = make([]EntityVersion, len(e.PriorVersions))
		copy(clone.PriorVersions, e.PriorVersions)
	}
	if e.MergedSources != nil {
		clone.MergedSources = make([]string, len(e.MergedSources))
		copy(clone.MergedSources, e.MergedSources)
	}
	return &clone
}

// Relationship represents a typed, evidenced edge between two entities.
// Relationships are never hard-deleted, only marked deprecated, so
// evidence chains stay intact.
type Relationship struct {
	Uuid       string     `json:"uuid" mapstructure:"uuid"`
	SourceID   string     `json:"source_entity_id" mapstructure:"source_entity_id"`
	TargetID   string     `json:"target_entity_id" mapstructure:"target_entity_id"`
	RelType    string     `json:"relationship_type" mapstructure:"relationship_type"`
	Confidence float64    `json:"confidence" mapstructure:"confidence"`
	Evidence   []Evidence `json:"evidence,omitempty" mapstructure:"evidence"`
	Deprecated bool       `json:"deprecated,omitempty" mapstructure:"deprecated"`
	CreatedAt  time.Time  `json:"created_at" mapstructure:"created_at"`
}

// Evidence is a single source citation backing a relationship.
type Evidence struct {
	SourceRef string    `json:"source_ref"`
	Excerpt   string    `json:"excerpt,omitempty"`
	CitedAt   time.Time `json:"cited_at"`
}

// Validate checks if the Relationship has all required fields set.
func (r *Relationship) Validate() error {
	if r.SourceID == "" {
		return ErrEmptySourceID
	}
	if r.TargetID == "" {
		return ErrEmptyTargetID
	}
	if r.RelType == "" {
		return ErrEmptyRelType
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return ErrScoreOutOfRange
	}
	return nil
}

// ValidateForCreate checks if the Relationship has all required fields for creation.
func (r *Relationship) ValidateForCreate() error {
	if r.Uuid == "" {
		return ErrEmptyUUID
	}
	return r.Validate()
}

// Clone returns a deep copy of the relationship.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Evidence != nil {
		clone.Evidence = make([]Evidence, len(r.Evidence))
		copy(clone.Evidence, r.Evidence)
	}
	return &clone
}

// Common entity types. The vocabulary is open; these are the ones the
// built-in pattern set produces.
const (
	EntityTypeFinding  = "Finding"
	EntityTypeControl  = "Control"
	EntityTypeService  = "Service"
	EntityTypeResource = "Resource"
	EntityTypeThreat   = "Threat"
)

// Common relationship types.
const (
	RelTypeAffects   = "affects"
	RelTypeMitigates = "mitigates"
	RelTypeRelatesTo = "relates_to"
)
