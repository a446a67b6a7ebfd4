package search

import (
	"github.com/atlasgraph/atlas/pkg/classify"
)

// Strategy names one retrieval plan.
type Strategy string

const (
	StrategyVectorOnly        Strategy = "VECTOR_ONLY"
	StrategyGraphOnly         Strategy = "GRAPH_ONLY"
	StrategyHybridVectorFirst Strategy = "HYBRID_VECTOR_FIRST"
	StrategyHybridGraphFirst  Strategy = "HYBRID_GRAPH_FIRST"
	StrategyParallelHybrid    Strategy = "PARALLEL_HYBRID"
)

// State tracks a query through the orchestrator. Mostly useful in logs
// and when reasoning about where a query degraded.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateClassified       State = "CLASSIFIED"
	StateStrategySelected State = "STRATEGY_SELECTED"
	StateExecuting        State = "EXECUTING"
	StateMerging          State = "MERGING"
	StateRanking          State = "RANKING"
	StateContextAssembly  State = "CONTEXT_ASSEMBLY"
	StateComplete         State = "COMPLETE"
	StateDegraded         State = "DEGRADED"
	StateFailed           State = "FAILED"
)

type strategyKey struct {
	queryType  classify.QueryType
	complexity classify.Complexity
}

// strategyTable is the deterministic (queryType, complexity) lookup.
// Pairs absent from the table run PARALLEL_HYBRID.
var strategyTable = map[strategyKey]Strategy{
	{classify.QueryTypeFactual, classify.ComplexitySimple}:      StrategyVectorOnly,
	{classify.QueryTypeFactual, classify.ComplexityModerate}:    StrategyHybridVectorFirst,
	{classify.QueryTypeRelational, classify.ComplexitySimple}:   StrategyGraphOnly,
	{classify.QueryTypeRelational, classify.ComplexityModerate}: StrategyHybridGraphFirst,
	{classify.QueryTypeRelational, classify.ComplexityComplex}:  StrategyParallelHybrid,
	{classify.QueryTypeTemporal, classify.ComplexitySimple}:     StrategyGraphOnly,
	{classify.QueryTypeTemporal, classify.ComplexityModerate}:   StrategyGraphOnly,
	{classify.QueryTypeTemporal, classify.ComplexityComplex}:    StrategyParallelHybrid,
	{classify.QueryTypeMultiHop, classify.ComplexitySimple}:     StrategyHybridGraphFirst,
}

// SelectStrategy maps a classification to a retrieval strategy.
func SelectStrategy(c classify.Classification) Strategy {
	if s, ok := strategyTable[strategyKey{c.QueryType, c.Complexity}]; ok {
		return s
	}
	return StrategyParallelHybrid
}
