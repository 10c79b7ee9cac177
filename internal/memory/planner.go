package memory

import "regexp"

// QueryType classifies an incoming query for routing.
type QueryType string

const (
	QueryOperational QueryType = "operational"
	QueryLookup      QueryType = "lookup"
	QueryConnection  QueryType = "connection"
	QueryExploration QueryType = "exploration"
	QueryHybrid      QueryType = "hybrid"
)

type classifierRule struct {
	queryType QueryType
	pattern   *regexp.Regexp
}

// classifierRules is checked in order; the first match wins. Grounded on
// the BM25 tokenizer's own regex-driven dispatch, extended to a small
// classification table.
var classifierRules = []classifierRule{
	{QueryOperational, regexp.MustCompile(`(?i)what'?s blocked|ready|open questions|recent activity`)},
	{QueryLookup, regexp.MustCompile(`(?i)what did we decide|find the|resource for`)},
	{QueryConnection, regexp.MustCompile(`(?i)contradicts|supports|builds on|related to`)},
	{QueryExploration, regexp.MustCompile(`(?i)what do i know about|tell me about|how does .* work`)},
}

// ClassifyQuery returns the QueryType the planner routes text to; falls
// back to QueryHybrid when nothing matches.
func ClassifyQuery(text string) QueryType {
	for _, rule := range classifierRules {
		if rule.pattern.MatchString(text) {
			return rule.queryType
		}
	}
	return QueryHybrid
}

// HybridQueryDefaults are the default parameters for a hybrid-routed query.
type HybridQueryDefaults struct {
	Limit        int
	ExpandLimit  int
	MinWeight    float64
}

// DefaultHybridQueryParams matches the spec's stated defaults.
var DefaultHybridQueryParams = HybridQueryDefaults{Limit: 20, ExpandLimit: 5, MinWeight: 0.6}

// confidenceWeight is the confidence-weighted final scoring table applied
// to hybrid-routed hits.
var confidenceWeight = map[Confidence]float64{
	ConfidenceVerified:    1.0,
	ConfidenceInferred:    0.8,
	ConfidenceSpeculative: 0.5,
}

// ApplyConfidenceWeight multiplies a hit's score by its chunk's confidence
// weight, as the final step of hybrid-routed scoring.
func ApplyConfidenceWeight(score float64, confidence Confidence) float64 {
	w, ok := confidenceWeight[confidence]
	if !ok {
		w = 1.0
	}
	return score * w
}

// QueryPlanner classifies a query and routes it to the appropriate
// component. It is a thin dispatcher; the actual routed operations live on
// the Working-State Engine, Relationship Graph, and Hybrid Retriever.
type QueryPlanner struct {
	retriever *HybridRetriever
	graph     *Graph
	db        *SQLiteMemoryDB
}

// NewQueryPlanner binds a planner to its dependent components.
func NewQueryPlanner(retriever *HybridRetriever, graph *Graph, db *SQLiteMemoryDB) *QueryPlanner {
	return &QueryPlanner{retriever: retriever, graph: graph, db: db}
}

// PlanAndRetrieve classifies text and executes the routed retrieval,
// applying confidence-weighted scoring for hybrid routes.
func (qp *QueryPlanner) PlanAndRetrieve(projectID, text string, rc RetrievalContext) (QueryType, []RetrievalHit, error) {
	qType := ClassifyQuery(text)

	switch qType {
	case QueryExploration:
		opts := RetrievalOptions{K: DefaultHybridQueryParams.Limit, MinSimilarity: 0.3, GraphExpansion: false}
		hits, err := qp.retriever.Retrieve(projectID, text, rc, opts)
		return qType, hits, err
	case QueryHybrid:
		opts := RetrievalOptions{
			K:              DefaultHybridQueryParams.Limit,
			MinSimilarity:  0.5,
			GraphExpansion: true,
		}
		hits, err := qp.retriever.Retrieve(projectID, text, rc, opts)
		if err != nil {
			return qType, nil, err
		}
		for i := range hits {
			hits[i].Score = ApplyConfidenceWeight(hits[i].Score, hits[i].Chunk.Confidence)
		}
		return qType, hits, nil
	default:
		// Operational, lookup, and connection routes return qType with no
		// hits and do not call the retriever. The query surface
		// (internal/queryhttp) passes qType and the empty hit list through
		// as-is; it does not route these types anywhere else.
		return qType, nil, nil
	}
}
