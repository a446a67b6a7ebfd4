// Package classify assigns a query type and complexity to search queries.
// The search layer depends only on the Classifier interface; the built-in
// rule classifier is a deterministic fallback that an external NLU
// service can replace.
package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/atlasgraph/atlas/pkg/utils"
)

// QueryType buckets what a query is asking for.
type QueryType string

const (
	QueryTypeFactual     QueryType = "factual"
	QueryTypeRelational  QueryType = "relational"
	QueryTypeTemporal    QueryType = "temporal"
	QueryTypeComparison  QueryType = "comparison"
	QueryTypeAggregation QueryType = "aggregation"
	QueryTypeMultiHop    QueryType = "multi_hop"
)

// Complexity buckets how much work answering likely takes.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Classification is the contract the search orchestrator consumes.
type Classification struct {
	QueryType  QueryType  `json:"query_type"`
	Complexity Complexity `json:"complexity"`
	Confidence float64    `json:"confidence"`
}

// Classifier assigns a classification to raw query text.
type Classifier interface {
	Classify(ctx context.Context, query string) (Classification, error)
}

// rule maps a phrasing pattern to a query type. Rules are evaluated in
// order; the first match wins, so classification is deterministic.
type rule struct {
	re         *regexp.Regexp
	queryType  QueryType
	confidence float64
}

// RuleClassifier is the built-in deterministic fallback.
type RuleClassifier struct {
	rules []rule
}

// NewRuleClassifier creates the default phrase-rule classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{rules: []rule{
		{regexp.MustCompile(`\b(?:chain|path (?:from|between)|indirectly|through which|via)\b`), QueryTypeMultiHop, 0.8},
		{regexp.MustCompile(`\b(?:compare|versus|vs\.?|difference between|better than|worse than)\b`), QueryTypeComparison, 0.85},
		{regexp.MustCompile(`\b(?:how many|count|total|number of|average|sum of|most common)\b`), QueryTypeAggregation, 0.85},
		{regexp.MustCompile(`\b(?:when|since|history|over time|changed|before|after|recently|latest|newest|last \w+)\b`), QueryTypeTemporal, 0.8},
		{regexp.MustCompile(`\b(?:mitigates?|affects?|relates? to|related to|connected to|depends? on|impacts?|caused by|leads? to)\b`), QueryTypeRelational, 0.85},
		{regexp.MustCompile(`\b(?:what is|who is|define|describe|tell me about|show me)\b`), QueryTypeFactual, 0.8},
	}}
}

// Classify buckets the query by phrasing rules and token count. The
// zero query classifies as factual with low confidence rather than
// failing, since the orchestrator can still run a default strategy.
func (c *RuleClassifier) Classify(ctx context.Context, query string) (Classification, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	tokens := utils.Tokenize(normalized)

	out := Classification{
		QueryType:  QueryTypeFactual,
		Confidence: 0.4,
	}
	for _, r := range c.rules {
		if r.re.MatchString(normalized) {
			out.QueryType = r.queryType
			out.Confidence = r.confidence
			break
		}
	}

	out.Complexity = complexityFor(tokens, normalized)
	return out, nil
}

// complexityFor grades queries by length and the number of distinct
// clauses or conjunctions they carry.
func complexityFor(tokens []string, normalized string) Complexity {
	conjunctions := 0
	for _, tok := range tokens {
		switch tok {
		case "and", "or", "but", "also", "both":
			conjunctions++
		}
	}
	clauses := strings.Count(normalized, ",") + strings.Count(normalized, ";")

	switch {
	case len(tokens) > 16 || conjunctions >= 2 || clauses >= 2:
		return ComplexityComplex
	case len(tokens) > 8 || conjunctions == 1 || clauses == 1:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}
