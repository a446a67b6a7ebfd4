package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyQueryTypes(t *testing.T) {
	c := NewRuleClassifier()
	ctx := context.Background()

	tests := []struct {
		query string
		want  QueryType
	}{
		{"what is the payments service", QueryTypeFactual},
		{"what mitigates public S3 access", QueryTypeRelational},
		{"which findings affect the api gateway", QueryTypeRelational},
		{"when did the bucket policy change", QueryTypeTemporal},
		{"how many open findings exist", QueryTypeAggregation},
		{"compare sg-1 versus sg-2", QueryTypeComparison},
		{"path from the finding to the billing service", QueryTypeMultiHop},
		{"random gibberish zzz", QueryTypeFactual},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := c.Classify(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.QueryType)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestClassifyComplexity(t *testing.T) {
	c := NewRuleClassifier()
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  Complexity
	}{
		{"short", "what mitigates this", ComplexitySimple},
		{"one conjunction", "findings that affect storage and compute", ComplexityModerate},
		{
			"long multi clause",
			"list every finding that affects the payments service, show what mitigates each one, and explain how they are connected to the shared network layer",
			ComplexityComplex,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Complexity)
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewRuleClassifier()
	ctx := context.Background()
	query := "what mitigates public S3 access"

	first, err := c.Classify(ctx, query)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Classify(ctx, query)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
