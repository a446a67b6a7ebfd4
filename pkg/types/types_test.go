package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		wantErr error
	}{
		{
			name:   "valid",
			entity: Entity{Name: "S3", EntityType: EntityTypeService, QualityScore: 0.8},
		},
		{
			name:    "missing name",
			entity:  Entity{EntityType: EntityTypeService},
			wantErr: ErrEmptyName,
		},
		{
			name:    "missing type",
			entity:  Entity{Name: "S3"},
			wantErr: ErrEmptyEntityType,
		},
		{
			name:    "score out of range",
			entity:  Entity{Name: "S3", EntityType: EntityTypeService, QualityScore: 1.2},
			wantErr: ErrScoreOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entity.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEntityValidateForCreateRequiresUUID(t *testing.T) {
	e := Entity{Name: "S3", EntityType: EntityTypeService}
	assert.ErrorIs(t, e.ValidateForCreate(), ErrEmptyUUID)

	e.Uuid = "entity-1"
	assert.NoError(t, e.ValidateForCreate())
}

func TestEntityCloneIsDeep(t *testing.T) {
	orig := &Entity{
		Uuid:       "entity-1",
		Name:       "data-bucket",
		EntityType: EntityTypeResource,
		Attributes: map[string]string{"region": "us-east-1"},
		Embedding:  []float32{0.1, 0.2},
	}

	clone := orig.Clone()
	clone.Attributes["region"] = "eu-west-1"
	clone.Embedding[0] = 0.9

	assert.Equal(t, "us-east-1", orig.Attributes["region"])
	assert.Equal(t, float32(0.1), orig.Embedding[0])
}

func TestEntitySnapshot(t *testing.T) {
	now := time.Now()
	e := &Entity{
		Uuid:         "entity-1",
		Name:         "public access",
		EntityType:   EntityTypeFinding,
		Version:      3,
		QualityScore: 0.7,
		Attributes:   map[string]string{"severity": "high"},
		UpdatedAt:    now,
	}

	snap := e.Snapshot()
	require.Equal(t, int64(3), snap.Version)
	require.Equal(t, 0.7, snap.QualityScore)

	// Snapshot attributes must not alias the live map.
	e.Attributes["severity"] = "low"
	assert.Equal(t, "high", snap.Attributes["severity"])
}

func TestRelationshipValidate(t *testing.T) {
	rel := Relationship{
		SourceID:   "a",
		TargetID:   "b",
		RelType:    RelTypeAffects,
		Confidence: 0.9,
	}
	assert.NoError(t, rel.Validate())

	rel.Confidence = -0.1
	assert.ErrorIs(t, rel.Validate(), ErrScoreOutOfRange)

	rel.Confidence = 0.9
	rel.RelType = ""
	assert.ErrorIs(t, rel.Validate(), ErrEmptyRelType)
}

func TestSearchQueryNormalize(t *testing.T) {
	q := SearchQuery{Text: "  What   MITIGATES public\tS3 access  "}
	q.Normalize()

	assert.Equal(t, "what mitigates public s3 access", q.Text)
	assert.Equal(t, SearchModeHybrid, q.Mode)
	assert.Equal(t, 10, q.MaxResults)
	assert.Equal(t, 1, q.GraphDepth)

	q = SearchQuery{Text: "x", GraphDepth: 7}
	q.Normalize()
	assert.Equal(t, 3, q.GraphDepth)
}

func TestSearchQueryValidate(t *testing.T) {
	q := SearchQuery{Text: "   "}
	q.Normalize()
	err := q.Validate()
	require.Error(t, err)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestErrorTaxonomyIs(t *testing.T) {
	wrapped := NewValidationError("mode", "unknown search mode")
	assert.True(t, errors.Is(wrapped, &ValidationError{}))

	conflict := &ConflictError{EntityID: "entity-1"}
	assert.True(t, errors.Is(conflict, &ConflictError{}))
	assert.Contains(t, conflict.Error(), "entity-1")
}
