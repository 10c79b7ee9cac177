package memory

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ODSapper/agentmem/internal/events"
)

// ChunkStoreOptions are per-call overrides for Store.
type ChunkStoreOptions struct {
	ForceNoCheck     bool
	AutoSupersede    bool
	RelatedTo        []string // chunk ids to create explicit related_to edges to
	ContradictionOff bool
}

// ChunkStore writes new learnings with full context capture, applying the
// contradiction policy and keeping the Vector/BM25 indexes and relationship
// graph in step with the persistent store.
type ChunkStore struct {
	db          *SQLiteMemoryDB
	vectorIndex *VectorIndex
	bm25Index   *BM25Index
	graph       *Graph
	detector    *ContradictionDetector
	bus         *events.Bus
}

// NewChunkStore wires a ChunkStore to its dependent components. bus may be
// nil in tests that do not care about event emission.
func NewChunkStore(db *SQLiteMemoryDB, vi *VectorIndex, bm25 *BM25Index, graph *Graph, detector *ContradictionDetector, bus *events.Bus) *ChunkStore {
	return &ChunkStore{db: db, vectorIndex: vi, bm25Index: bm25, graph: graph, detector: detector, bus: bus}
}

// decayParams is the (decay_function, decay_rate, category_multiplier)
// triple chosen by chunk origin, per the Chunk Store's decay parameter table.
type decayParams struct {
	function   DecayFunction
	rate       float64
	multiplier float64
}

func decayParamsFor(chunkType ChunkType, tags []string) decayParams {
	if chunkType == ChunkUserInput {
		return decayParams{DecayNone, 0, 0.0}
	}
	if chunkType == ChunkDecision {
		return decayParams{DecayLinear, 0.02, 0.3}
	}
	for _, t := range tags {
		if t == "goal" || t == "priority" {
			return decayParams{DecayExponential, 0.02, 0.4}
		}
	}
	if chunkType == ChunkAttempt {
		return decayParams{DecayExponential, 0.10, 1.5}
	}
	if chunkType == ChunkInsight {
		return decayParams{DecayExponential, 0.05, 0.8}
	}
	return decayParams{DecayExponential, 0.05, 1.0}
}

// Store inserts a new chunk, running the Contradiction Detector first when
// applicable and applying its suggested action.
func (cs *ChunkStore) Store(projectID, content string, chunkType ChunkType, tags []string, confidence Confidence,
	source Source, embedding []float32, lc LearningContext, opts ChunkStoreOptions) (*Chunk, error) {

	var result *ContradictionResult
	if !opts.ForceNoCheck && !opts.ContradictionOff && cs.detector != nil {
		var err error
		result, err = cs.detector.Check(projectID, content, embedding, chunkType, opts.AutoSupersede)
		if err != nil {
			return nil, fmt.Errorf("contradiction check failed: %w", err)
		}
	}

	params := decayParamsFor(chunkType, tags)
	now := time.Now().UTC()

	chunk := &Chunk{
		ID:               uuid.New().String(),
		ProjectID:        projectID,
		Content:          content,
		Type:             chunkType,
		Tags:             tags,
		Confidence:       confidence,
		Source:           source,
		CreatedAt:        now,
		TickCreated:      lc.Tick,
		LearningContext:  lc,
		InitialStrength:  1.0,
		CurrentStrength:  1.0,
		DecayFunction:    params.function,
		DecayRate:        params.rate,
		PersistenceScore: 0.5,
		Status:           StatusActive,
		EmbeddingPending: embedding == nil,
	}

	err := cs.db.withTx(func(tx *sql.Tx) error {
		if err := insertChunkTx(tx, chunk); err != nil {
			return err
		}

		if result != nil && result.BestMatch != nil {
			switch result.Action {
			case ActionSupersede:
				if err := supersedeTx(tx, result.BestMatch.ChunkID, chunk.ID, lc.Tick); err != nil {
					return err
				}
				if err := createEdgeTx(tx, chunk.ID, result.BestMatch.ChunkID, RelContradicts,
					result.BestMatch.Confidence, []string{string(result.BestMatch.ConflictType)}, OriginImplicit); err != nil {
					return err
				}
			case ActionFlagReview:
				if err := createEdgeTx(tx, chunk.ID, result.BestMatch.ChunkID, RelContradicts,
					result.BestMatch.Confidence, []string{string(result.BestMatch.ConflictType)}, OriginImplicit); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store chunk: %w", err)
	}

	if embedding != nil {
		if err := cs.vectorIndex.Store(chunk.ID, projectID, embedding); err != nil {
			return nil, fmt.Errorf("failed to index embedding: %w", err)
		}
	}
	cs.bm25Index.Insert(chunk.ID, projectID, chunkType, content)

	for _, relatedID := range opts.RelatedTo {
		if _, err := cs.graph.Create(chunk.ID, relatedID, RelRelatedTo, 0.5, nil, OriginExplicit); err != nil {
			return nil, fmt.Errorf("failed to create related_to edge: %w", err)
		}
	}

	if cs.bus != nil {
		cs.bus.Publish(events.NewEvent(events.EventChunkStored, "chunkstore", "all", events.PriorityNormal,
			events.ChunkStoredPayload(chunk.ID)))
		if result != nil && result.BestMatch != nil {
			cs.bus.Publish(events.NewEvent(events.EventContradictionFound, "chunkstore", "all", events.PriorityHigh,
				events.ContradictionDetectedPayload(chunk.ID, result.BestMatch.ChunkID, result.BestMatch.Confidence)))
			if result.Action == ActionSupersede || result.Action == ActionFlagReview {
				cs.bus.Publish(events.NewEvent(events.EventEdgeCreated, "chunkstore", "all", events.PriorityNormal,
					events.EdgeCreatedPayload(chunk.ID, result.BestMatch.ChunkID, string(RelContradicts), result.BestMatch.Confidence)))
			}
		}
	}

	return chunk, nil
}

func insertChunkTx(tx *sql.Tx, c *Chunk) error {
	_, err := tx.Exec(`INSERT INTO chunks (id, project_id, content, type, tags, confidence, source,
		created_at, tick_created, learning_context, initial_strength, current_strength,
		decay_function, decay_rate, persistence_score, access_count, successful_uses, status, pinned,
		embedding_pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, 0, ?)`,
		c.ID, c.ProjectID, c.Content, string(c.Type), marshalJSON(c.Tags), string(c.Confidence), string(c.Source),
		c.CreatedAt.Format(time.RFC3339), c.TickCreated, marshalJSON(c.LearningContext),
		c.InitialStrength, c.CurrentStrength, string(c.DecayFunction), c.DecayRate, c.PersistenceScore,
		string(c.Status), boolToInt(c.EmbeddingPending))
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func supersedeTx(tx *sql.Tx, oldID, newID string, tick uint64) error {
	_, err := tx.Exec(`UPDATE chunks SET superseded_by = ?, decay_rate = decay_rate * 3.0, valid_until_tick = ?
		WHERE id = ?`, newID, tick, oldID)
	if err != nil {
		return fmt.Errorf("failed to supersede chunk: %w", err)
	}
	return nil
}

func createEdgeTx(tx *sql.Tx, from, to string, typ RelationshipType, weight float64, contextTags []string, origin RelationshipOrigin) error {
	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.Exec(`INSERT INTO relationships (id, from_chunk, to_chunk, type, weight, last_activated,
		activation_count, context_tags, origin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(from_chunk, to_chunk, type) DO UPDATE SET
			weight = MAX(relationships.weight, excluded.weight),
			context_tags = excluded.context_tags,
			last_activated = excluded.last_activated`,
		id, from, to, string(typ), weight, now, marshalJSON(contextTags), string(origin), now)
	if err != nil {
		return fmt.Errorf("failed to create edge: %w", err)
	}
	return nil
}

// GetChunk fetches a chunk by id.
func (cs *ChunkStore) GetChunk(id string) (*Chunk, error) {
	row := cs.db.db.QueryRow(chunkSelectColumns+` FROM chunks WHERE id = ?`, id)
	return scanChunk(row)
}

// GetChunks fetches multiple chunks by id, skipping any not found.
func (cs *ChunkStore) GetChunks(ids []string) ([]*Chunk, error) {
	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		c, err := cs.GetChunk(id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

const chunkSelectColumns = `SELECT id, project_id, content, type, tags, confidence, source, created_at,
	last_accessed, last_useful, tick_created, tick_last_accessed, tick_last_useful, learning_context,
	initial_strength, current_strength, decay_function, decay_rate, persistence_score, access_count,
	successful_uses, status, pinned, superseded_by, valid_until_tick, embedding_pending`

func scanChunk(row taskRowScanner) (*Chunk, error) {
	var c Chunk
	var chunkType, tags, confidence, source, createdAt, learningContext, decayFunc, status string
	var lastAccessed, lastUseful, supersededBy sql.NullString
	var tickLastAccessed, tickLastUseful, validUntilTick sql.NullInt64
	var pinned, embeddingPending int

	err := row.Scan(&c.ID, &c.ProjectID, &c.Content, &chunkType, &tags, &confidence, &source, &createdAt,
		&lastAccessed, &lastUseful, &c.TickCreated, &tickLastAccessed, &tickLastUseful, &learningContext,
		&c.InitialStrength, &c.CurrentStrength, &decayFunc, &c.DecayRate, &c.PersistenceScore, &c.AccessCount,
		&c.SuccessfulUses, &status, &pinned, &supersededBy, &validUntilTick, &embeddingPending)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}

	c.Type = ChunkType(chunkType)
	c.Tags = unmarshalStrings(tags)
	c.Confidence = Confidence(confidence)
	c.Source = Source(source)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.LastAccessed = parseTimePtr(lastAccessed)
	c.LastUseful = parseTimePtr(lastUseful)
	c.TickLastAccessed = uint64PtrOrNil(tickLastAccessed)
	c.TickLastUseful = uint64PtrOrNil(tickLastUseful)
	c.LearningContext = unmarshalLearningContext(learningContext)
	c.DecayFunction = DecayFunction(decayFunc)
	c.Status = ChunkStatus(status)
	c.Pinned = intToBool(pinned)
	c.SupersededBy = stringPtrOrNil(supersededBy)
	if validUntilTick.Valid {
		v := uint64(validUntilTick.Int64)
		c.ValidUntilTick = &v
	}
	c.EmbeddingPending = intToBool(embeddingPending)
	return &c, nil
}

// contentHash computes the stable hash used by archive rows.
func contentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h)
}

func summarize(content string, maxLen int) string {
	r := []rune(content)
	if len(r) <= maxLen {
		return content
	}
	return string(r[:maxLen])
}
