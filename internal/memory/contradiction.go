package memory

import (
	"regexp"
	"strconv"
	"strings"
)

// ConflictType classifies a detected contradiction.
type ConflictType string

const (
	ConflictDirect   ConflictType = "direct"
	ConflictTemporal ConflictType = "temporal"
	ConflictPartial  ConflictType = "partial"
)

// ContradictionCandidate is the per-candidate heuristic analysis result.
type ContradictionCandidate struct {
	ChunkID        string
	IsContradiction bool
	ConflictType   ConflictType
	Confidence     float64
	Explanation    string
}

// SuggestedAction is the aggregated action the Chunk Store should take.
type SuggestedAction string

const (
	ActionSupersede    SuggestedAction = "supersede"
	ActionFlagReview   SuggestedAction = "flag_for_review"
	ActionStore        SuggestedAction = "store"
)

// ContradictionResult is the outcome of running the detector against a
// candidate set.
type ContradictionResult struct {
	Action     SuggestedAction
	BestMatch  *ContradictionCandidate
	Candidates []ContradictionCandidate
}

// contradictableTypes is the set of chunk types the detector runs against.
var contradictableTypes = map[ChunkType]bool{
	ChunkResearch: true,
	ChunkInsight:  true,
	ChunkDecision: true,
}

var negationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bis not\b`),
	regexp.MustCompile(`\bisn't\b`),
	regexp.MustCompile(`\bcannot\b`),
	regexp.MustCompile(`\bcan't\b`),
	regexp.MustCompile(`\bnever\b`),
	regexp.MustCompile(`\bno longer\b`),
	regexp.MustCompile(`\bdoes not\b`),
	regexp.MustCompile(`\bdoesn't\b`),
}

var antonymPairs = [][2]string{
	{"best", "worst"},
	{"true", "false"},
	{"always", "never"},
	{"fast", "slow"},
	{"easy", "hard"},
	{"good", "bad"},
	{"central", "peripheral"},
}

var numberRegex = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-zA-Z%]*)`)

// ContradictionDetector runs heuristic analysis against an optional
// cross-encoder validator capability.
type ContradictionDetector struct {
	vectorIndex *VectorIndex
	db          *SQLiteMemoryDB
	validator   CrossEncoder
}

// CrossEncoder is the optional external validator capability (§6).
type CrossEncoder interface {
	ValidateContradiction(a, b string, priorConfidence float64) (isContradiction bool, confidence float64, explanation string, available bool)
}

// NewContradictionDetector binds a detector to the given indexes; validator
// may be nil if no cross-encoder capability is configured.
func NewContradictionDetector(vi *VectorIndex, db *SQLiteMemoryDB, validator CrossEncoder) *ContradictionDetector {
	return &ContradictionDetector{vectorIndex: vi, db: db, validator: validator}
}

// Check runs the full detection pipeline for a new chunk's content against
// existing chunks in the project.
func (cd *ContradictionDetector) Check(projectID string, content string, embedding []float32, chunkType ChunkType, autoSupersede bool) (*ContradictionResult, error) {
	if !contradictableTypes[chunkType] {
		return &ContradictionResult{Action: ActionStore}, nil
	}
	if embedding == nil {
		return &ContradictionResult{Action: ActionStore}, nil
	}

	hits, err := cd.vectorIndex.Search(projectID, embedding, 10, 0.85)
	if err != nil {
		return nil, err
	}

	var candidates []ContradictionCandidate
	for _, hit := range hits {
		existing, err := cd.fetchContent(hit.ChunkID)
		if err != nil {
			continue
		}
		cand := analyzeHeuristic(hit.ChunkID, content, existing, hit.Similarity)
		if cd.validator != nil {
			if isC, conf, expl, available := cd.validator.ValidateContradiction(content, existing, cand.Confidence); available {
				if !isC {
					continue
				}
				cand.IsContradiction = isC
				cand.Confidence = conf
				cand.Explanation = expl
			}
		}
		if cand.IsContradiction {
			candidates = append(candidates, cand)
		}
	}

	result := &ContradictionResult{Action: ActionStore, Candidates: candidates}
	if len(candidates) == 0 {
		return result, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	result.BestMatch = &best

	switch {
	case best.Confidence > 0.9:
		if autoSupersede {
			result.Action = ActionSupersede
		} else {
			result.Action = ActionFlagReview
		}
	case best.Confidence > 0.7:
		result.Action = ActionFlagReview
	default:
		result.Action = ActionStore
	}
	return result, nil
}

func (cd *ContradictionDetector) fetchContent(chunkID string) (string, error) {
	var content string
	err := cd.db.db.QueryRow(`SELECT content FROM chunks WHERE id = ?`, chunkID).Scan(&content)
	return content, err
}

// negationHighSimilarityFloor is the minimum vector similarity at which a
// negation mismatch is treated as confident enough to auto-supersede
// without a cross-encoder: the two chunks are near-duplicates in meaning
// except for the negation itself, which is the strongest heuristic signal
// this detector has.
const negationHighSimilarityFloor = 0.9

// analyzeHeuristic detects negation patterns, antonym pairs, and numeric
// conflicts between newContent and existingContent. similarity is the
// vector-search score that produced this candidate, used to raise
// confidence on a negation mismatch when the surrounding content is
// otherwise near-identical.
func analyzeHeuristic(existingID, newContent, existingContent string, similarity float64) ContradictionCandidate {
	lowerNew := strings.ToLower(newContent)
	lowerExisting := strings.ToLower(existingContent)

	for _, re := range negationPatterns {
		newHasNeg := re.MatchString(lowerNew)
		existingHasNeg := re.MatchString(lowerExisting)
		if newHasNeg != existingHasNeg {
			confidence := 0.8
			explanation := "negation pattern mismatch between new and existing content"
			if similarity >= negationHighSimilarityFloor {
				confidence = 0.95
				explanation = "negation pattern mismatch at very high semantic similarity"
			}
			return ContradictionCandidate{
				ChunkID:        existingID,
				IsContradiction: true,
				ConflictType:   ConflictDirect,
				Confidence:     confidence,
				Explanation:    explanation,
			}
		}
	}

	for _, pair := range antonymPairs {
		newHasA, newHasB := strings.Contains(lowerNew, pair[0]), strings.Contains(lowerNew, pair[1])
		exHasA, exHasB := strings.Contains(lowerExisting, pair[0]), strings.Contains(lowerExisting, pair[1])
		if (newHasA && exHasB) || (newHasB && exHasA) {
			return ContradictionCandidate{
				ChunkID:        existingID,
				IsContradiction: true,
				ConflictType:   ConflictDirect,
				Confidence:     0.75,
				Explanation:    "opposing value pair: " + pair[0] + " / " + pair[1],
			}
		}
	}

	if conflict, ok := numericConflict(lowerNew, lowerExisting); ok {
		return conflict.withID(existingID)
	}

	// High vector similarity with no clear heuristic signal still gets a
	// weak flag per spec.
	return ContradictionCandidate{
		ChunkID:        existingID,
		IsContradiction: true,
		ConflictType:   ConflictPartial,
		Confidence:     0.5,
		Explanation:    "very high similarity, no clear contradiction signal",
	}
}

func numericConflict(a, b string) (ContradictionCandidate, bool) {
	numsA := numberRegex.FindAllStringSubmatch(a, -1)
	numsB := numberRegex.FindAllStringSubmatch(b, -1)
	for _, na := range numsA {
		for _, nb := range numsB {
			if na[2] != "" && na[2] == nb[2] {
				va, errA := strconv.ParseFloat(na[1], 64)
				vb, errB := strconv.ParseFloat(nb[1], 64)
				if errA == nil && errB == nil && va != vb {
					return ContradictionCandidate{
						IsContradiction: true,
						ConflictType:   ConflictPartial,
						Confidence:     0.7,
						Explanation:    "conflicting numeric values with the same unit",
					}, true
				}
			}
		}
	}
	return ContradictionCandidate{}, false
}

func (c ContradictionCandidate) withID(id string) ContradictionCandidate {
	c.ChunkID = id
	return c
}
