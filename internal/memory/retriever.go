package memory

import (
	"sort"

	"github.com/google/uuid"

	"github.com/ODSapper/agentmem/internal/embedding"
)

// RetrievalWeights are the fusion weights for semantic/keyword/graph
// rankings, renormalized if a stage fell back or was disabled.
type RetrievalWeights struct {
	Semantic float64
	Keyword  float64
	Graph    float64
}

// DefaultRetrievalWeights matches the spec's stated defaults.
var DefaultRetrievalWeights = RetrievalWeights{Semantic: 0.40, Keyword: 0.35, Graph: 0.25}

// RetrievalOptions configures one Retrieve call.
type RetrievalOptions struct {
	K               int
	MinSimilarity   float64
	Types           []ChunkType
	GraphExpansion  bool
	Weights         RetrievalWeights
	SessionID       string
}

// HitSources records which ranking(s) surfaced a candidate.
type HitSources struct {
	Semantic *float64
	Keyword  *float64
	Graph    *float64
}

// RetrievalHit is one scored, boosted candidate returned by the retriever.
type RetrievalHit struct {
	Chunk         *Chunk
	RawSimilarity float64
	Score         float64
	Boosted       bool
	BoostReason   string
	Sources       HitSources
}

// HybridRetriever fuses semantic, keyword, and graph rankings with
// reciprocal rank fusion, then applies context-boosted reranking.
type HybridRetriever struct {
	db          *SQLiteMemoryDB
	vectorIndex *VectorIndex
	bm25Index   *BM25Index
	graph       *Graph
	chunkStore  *ChunkStore
	decay       *DecayEngine
	embedder    embedding.Provider
}

// NewHybridRetriever wires a HybridRetriever to its dependent components.
func NewHybridRetriever(db *SQLiteMemoryDB, vi *VectorIndex, bm25 *BM25Index, graph *Graph, cs *ChunkStore, decay *DecayEngine, embedder embedding.Provider) *HybridRetriever {
	return &HybridRetriever{db: db, vectorIndex: vi, bm25Index: bm25, graph: graph, chunkStore: cs, decay: decay, embedder: embedder}
}

const rrfK = 60.0

// Retrieve runs the full hybrid retrieval pipeline for a query.
func (hr *HybridRetriever) Retrieve(projectID, queryText string, rc RetrievalContext, opts RetrievalOptions) ([]RetrievalHit, error) {
	if opts.K <= 0 {
		opts.K = 20
	}
	weights := opts.Weights
	if weights == (RetrievalWeights{}) {
		weights = DefaultRetrievalWeights
	}

	var semRanks map[string]int
	var semSims map[string]float64
	var semanticAvailable bool

	qVec, embErr := hr.embedder.Embed(queryText)
	if embErr == nil {
		hits, err := hr.vectorIndex.Search(projectID, qVec, 50, opts.MinSimilarity)
		if err == nil {
			semanticAvailable = true
			semRanks = make(map[string]int, len(hits))
			semSims = make(map[string]float64, len(hits))
			for i, h := range hits {
				semRanks[h.ChunkID] = i + 1
				semSims[h.ChunkID] = h.Similarity
			}
		}
	}

	kwHits := hr.bm25Index.Search(projectID, queryText, 50, opts.Types)
	kwRanks := make(map[string]int, len(kwHits))
	kwScores := make(map[string]float64, len(kwHits))
	for i, h := range kwHits {
		kwRanks[h.ChunkID] = i + 1
		kwScores[h.ChunkID] = h.Score
	}

	graphRanks := make(map[string]int)
	graphScores := make(map[string]float64)
	if opts.GraphExpansion && semanticAvailable {
		top5 := topNByRank(semRanks, 5)
		var neighborOrder []string
		seen := make(map[string]bool)
		for _, chunkID := range top5 {
			neighbors, err := hr.graph.Get(chunkID, nil, 0.2, DirBoth, 5)
			if err != nil {
				continue
			}
			for _, n := range neighbors {
				neighborID := n.To
				if neighborID == chunkID {
					neighborID = n.From
				}
				if neighborID == chunkID || seen[neighborID] {
					continue
				}
				seen[neighborID] = true
				neighborOrder = append(neighborOrder, neighborID)
				if existing, ok := graphScores[neighborID]; !ok || n.Weight > existing {
					graphScores[neighborID] = n.Weight
				}
			}
		}
		for i, id := range neighborOrder {
			graphRanks[id] = i + 1
		}
	}

	activeWeights := weights
	if !semanticAvailable {
		activeWeights.Semantic = 0
	}
	if len(graphRanks) == 0 {
		activeWeights.Graph = 0
	}
	activeWeights = normalizeWeights(activeWeights)

	fused := make(map[string]float64)
	for id, rank := range semRanks {
		fused[id] += activeWeights.Semantic * (1.0 / (rrfK + float64(rank)))
	}
	for id, rank := range kwRanks {
		fused[id] += activeWeights.Keyword * (1.0 / (rrfK + float64(rank)))
	}
	for id, rank := range graphRanks {
		fused[id] += activeWeights.Graph * (1.0 / (rrfK + float64(rank)))
	}

	type scored struct {
		id    string
		score float64
	}
	var ordered []scored
	for id, s := range fused {
		ordered = append(ordered, scored{id, s})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].score > ordered[j].score })

	limit := 5 * opts.K
	if limit > len(ordered) {
		limit = len(ordered)
	}
	ordered = ordered[:limit]

	var hits []RetrievalHit
	for _, o := range ordered {
		chunk, err := hr.chunkStore.GetChunk(o.id)
		if err != nil || chunk.Status == StatusTombstone {
			continue
		}

		rawSim, hasRaw := semSims[o.id]
		if !hasRaw {
			rawSim = kwScores[o.id]
		}

		baseScore := chunk.CurrentStrength * rawSim

		match := contextMatch(chunk.LearningContext, rc)
		boosted := false
		boostReason := ""
		score := baseScore

		switch {
		case match > 0.7:
			score = baseScore * (1 + 0.6*(match-0.5))
			boosted = true
			boostReason = "strong_context_match"
		case match > 0.4:
			score = baseScore * (1 + 0.3*(match-0.3))
			boosted = true
			boostReason = "moderate_context_match"
		}

		if chunk.CurrentStrength < 0.3 && match > 0.6 {
			travel := match * rawSim * 0.7
			if travel > score {
				score = travel
			}
			boosted = true
			boostReason = "memory_reactivation"
		}

		hit := RetrievalHit{
			Chunk:         chunk,
			RawSimilarity: rawSim,
			Score:         score,
			Boosted:       boosted,
			BoostReason:   boostReason,
		}
		if sim, ok := semSims[o.id]; ok {
			v := sim
			hit.Sources.Semantic = &v
		}
		if sc, ok := kwScores[o.id]; ok {
			v := sc
			hit.Sources.Keyword = &v
		}
		if sc, ok := graphScores[o.id]; ok {
			v := sc
			hit.Sources.Graph = &v
		}
		hits = append(hits, hit)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > opts.K {
		hits = hits[:opts.K]
	}

	if hr.decay != nil {
		for _, h := range hits {
			hr.decay.Reactivate(h.Chunk.ID, rc.Tick, false)
		}
	}

	if hr.graph != nil && len(hits) > 1 {
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.Chunk.ID
		}
		sessionID := opts.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		hr.graph.RecordCoretrieval(projectID, ids, sessionID, queryText, rc.Tick)
	}

	return hits, nil
}

func topNByRank(ranks map[string]int, n int) []string {
	type pair struct {
		id   string
		rank int
	}
	var pairs []pair
	for id, r := range ranks {
		pairs = append(pairs, pair{id, r})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].rank < pairs[j].rank })
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.id
	}
	return out
}

func normalizeWeights(w RetrievalWeights) RetrievalWeights {
	total := w.Semantic + w.Keyword + w.Graph
	if total == 0 {
		return w
	}
	return RetrievalWeights{Semantic: w.Semantic / total, Keyword: w.Keyword / total, Graph: w.Graph / total}
}

// contextMatch computes weighted agreement between a chunk's learning
// context and the query's retrieval context, normalized by weights
// actually compared.
func contextMatch(lc LearningContext, rc RetrievalContext) float64 {
	const (
		wGoal  = 0.35
		wSkill = 0.25
		wTask  = 0.25
		wPhase = 0.15
	)

	var totalWeight, matchedWeight float64

	if lc.GoalID != nil && rc.GoalID != nil {
		totalWeight += wGoal
		if *lc.GoalID == *rc.GoalID {
			matchedWeight += wGoal
		}
	}
	if lc.SkillArea != nil && rc.SkillArea != nil {
		totalWeight += wSkill
		if *lc.SkillArea == *rc.SkillArea {
			matchedWeight += wSkill
		}
	}
	if lc.TaskID != nil && rc.TaskID != nil {
		totalWeight += wTask
		if *lc.TaskID == *rc.TaskID {
			matchedWeight += wTask
		}
	}
	if lc.Phase != "" && rc.Phase != "" {
		totalWeight += wPhase
		if lc.Phase == rc.Phase {
			matchedWeight += wPhase
		}
	}

	if totalWeight == 0 {
		return 0
	}
	return matchedWeight / totalWeight
}
