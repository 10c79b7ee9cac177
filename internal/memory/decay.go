package memory

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/ODSapper/agentmem/internal/events"
)

// DecayEngine applies forgetting curves, recomputes persistence scores,
// and archives chunks that reach zero strength. Invoked at tick boundaries,
// gated by the caller's configured interval.
type DecayEngine struct {
	db          *SQLiteMemoryDB
	vectorIndex *VectorIndex
	bm25Index   *BM25Index
	graph       *Graph
	bus         *events.Bus
}

// NewDecayEngine binds a DecayEngine to its dependent components. graph may
// be nil, in which case the Persistence Score's connection term floors at 0.
func NewDecayEngine(db *SQLiteMemoryDB, vi *VectorIndex, bm25 *BM25Index, graph *Graph, bus *events.Bus) *DecayEngine {
	return &DecayEngine{db: db, vectorIndex: vi, bm25Index: bm25, graph: graph, bus: bus}
}

// typeSalience and related salience tables for the Persistence Score.
var typeSalience = map[ChunkType]float64{
	ChunkUserInput: 0.30,
	ChunkDecision:  0.25,
	ChunkInsight:   0.20,
	ChunkResearch:  0.10,
	ChunkAttempt:   0.05,
	ChunkResource:  0.05,
}

var sourceSalience = map[Source]float64{
	SourceUser:       0.20,
	SourceExperiment: 0.15,
	SourceDeduction:  0.10,
}

var confidenceSalience = map[Confidence]float64{
	ConfidenceVerified: 0.15,
	ConfidenceInferred: 0.05,
}

// Run applies a decay pass to every non-tombstoned, non-none-decay chunk in
// project, advancing last_decay_tick atomically with the strength updates
// so a rerun with the same (last_decay_tick, current_tick) is a no-op.
func (de *DecayEngine) Run(projectID string, currentTick uint64) (processed, tombstoned int, avgStrength float64, err error) {
	state, err := de.db.GetAgentState(projectID)
	if err != nil {
		return 0, 0, 0, err
	}
	delta := int64(currentTick) - int64(state.LastDecayTick)
	if delta <= 0 {
		return 0, 0, 0, nil
	}

	rows, err := de.db.db.Query(`SELECT `+chunkSelectColumnsBare+` FROM chunks
		WHERE project_id = ? AND status != 'tombstone' AND decay_function != 'none'`, projectID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to query chunks for decay: %w", err)
	}
	var chunks []*Chunk
	for rows.Next() {
		c, scanErr := scanChunk(rows)
		if scanErr != nil {
			rows.Close()
			return 0, 0, 0, scanErr
		}
		chunks = append(chunks, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, 0, err
	}

	now := time.Now().UTC()
	var strengthSum float64

	err = de.db.withTx(func(tx *sql.Tx) error {
		for _, c := range chunks {
			mult := categoryMultiplier(c)
			recency := recencyFactor(c, currentTick)
			lambdaEff := c.DecayRate * mult * recency

			newStrength := applyDecayFunction(c.DecayFunction, c.CurrentStrength, lambdaEff, float64(delta))
			if newStrength < 0 {
				newStrength = 0
			}
			if newStrength > c.CurrentStrength {
				newStrength = c.CurrentStrength // non-increasing invariant
			}

			prevStatus := c.Status
			newStatus := statusForStrength(newStrength)
			if statusRank(newStatus) < statusRank(prevStatus) {
				newStatus = prevStatus // can only demote
			}

			c.CurrentStrength = newStrength
			c.Status = newStatus
			strengthSum += newStrength

			if newStrength == 0 && prevStatus != StatusTombstone {
				c.Status = StatusTombstone
				if err := archiveTombstoneTx(tx, c, currentTick, now); err != nil {
					return err
				}
				tombstoned++
			} else {
				persistence := computePersistenceScore(c, currentTick, de.edgeCount(c.ID))
				c.PersistenceScore = persistence
				if _, err := tx.Exec(`UPDATE chunks SET current_strength=?, status=?, persistence_score=?
					WHERE id = ?`, c.CurrentStrength, string(c.Status), c.PersistenceScore, c.ID); err != nil {
					return fmt.Errorf("failed to update decayed chunk: %w", err)
				}
			}
			processed++
		}

		if _, err := tx.Exec(`UPDATE agent_state SET last_decay_tick = ? WHERE project_id = ?`,
			currentTick, projectID); err != nil {
			return fmt.Errorf("failed to advance last_decay_tick: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("decay pass failed: %w", err)
	}

	for _, c := range chunks {
		if c.Status == StatusTombstone {
			if de.vectorIndex != nil {
				de.vectorIndex.Remove(c.ID)
			}
			if de.bm25Index != nil {
				de.bm25Index.Remove(c.ID)
			}
		}
	}

	if processed > 0 {
		avgStrength = strengthSum / float64(processed)
	}

	if de.bus != nil {
		de.bus.Publish(events.NewEvent(events.EventDecayRun, "decay", "all", events.PriorityLow,
			events.DecayRunPayload(processed, tombstoned, avgStrength)))
	}

	return processed, tombstoned, avgStrength, nil
}

func archiveTombstoneTx(tx *sql.Tx, c *Chunk, tick uint64, now time.Time) error {
	summary := summarize(c.Content, 200)
	hash := contentHash(c.Content)
	_, err := tx.Exec(`INSERT INTO chunks_archive (chunk_id, project_id, summary, content_hash,
		final_strength, tick_archived, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, summary, hash, c.CurrentStrength, tick, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write archive row: %w", err)
	}
	_, err = tx.Exec(`UPDATE chunks SET current_strength = 0, status = 'tombstone' WHERE id = ?`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to tombstone chunk: %w", err)
	}
	return nil
}

func categoryMultiplier(c *Chunk) float64 {
	if c.SupersededBy != nil {
		return 3.0
	}
	params := decayParamsFor(c.Type, c.Tags)
	if params.multiplier == 0 {
		return 1.0
	}
	return params.multiplier
}

func recencyFactor(c *Chunk, currentTick uint64) float64 {
	if c.TickLastAccessed == nil {
		return 1.0
	}
	ticksSince := float64(currentTick) - float64(*c.TickLastAccessed)
	if ticksSince < 0 {
		ticksSince = 0
	}
	return 1 - 0.5*math.Exp(-ticksSince/50)
}

func applyDecayFunction(fn DecayFunction, strength, lambdaEff, delta float64) float64 {
	switch fn {
	case DecayExponential:
		return strength * math.Exp(-lambdaEff*delta)
	case DecayLinear:
		v := strength - lambdaEff*delta
		if v < 0 {
			v = 0
		}
		return v
	case DecayPowerLaw:
		return strength * math.Pow(1+0.01*delta, -0.3)
	default:
		return strength
	}
}

func statusForStrength(s float64) ChunkStatus {
	switch {
	case s >= 0.30:
		return StatusActive
	case s >= 0.15:
		return StatusWarm
	case s >= 0.05:
		return StatusCool
	case s > 0:
		return StatusCold
	default:
		return StatusTombstone
	}
}

// statusRank orders statuses from least to most decayed, so decay can only
// move a chunk to a higher rank (never "promote" on its own).
func statusRank(s ChunkStatus) int {
	switch s {
	case StatusActive:
		return 0
	case StatusWarm:
		return 1
	case StatusCool:
		return 2
	case StatusCold:
		return 3
	case StatusArchived:
		return 4
	case StatusTombstone:
		return 5
	default:
		return 0
	}
}

// edgeCount returns the live relationship count touching chunkID, used as
// the Persistence Score's connection term. Returns 0 if no graph is wired.
func (de *DecayEngine) edgeCount(chunkID string) int {
	if de.graph == nil {
		return 0
	}
	n, err := de.graph.EdgeCount(chunkID)
	if err != nil {
		return 0
	}
	return n
}

// computePersistenceScore recomputes PS per the fixed-weight formula.
func computePersistenceScore(c *Chunk, currentTick uint64, edgeCount int) float64 {
	F := 1 - math.Exp(-0.3*float64(c.AccessCount))

	S := typeSalience[c.Type] + sourceSalience[c.Source] + confidenceSalience[c.Confidence]
	for _, tag := range c.Tags {
		if tag == "goal" || tag == "priority" {
			S += 0.10
			break
		}
	}
	if S > 1 {
		S = 1
	}
	if S < 0 {
		S = 0
	}

	C := float64(edgeCount) / 20.0
	if C > 1 {
		C = 1
	}

	var R float64
	if c.TickLastAccessed != nil {
		ticksSince := float64(currentTick) - float64(*c.TickLastAccessed)
		if ticksSince < 0 {
			ticksSince = 0
		}
		R = math.Exp(-ticksSince / 100)
	}

	var I float64
	switch {
	case c.Pinned || c.Type == ChunkUserInput:
		I = 1.0
	case c.Type == ChunkDecision:
		I = 0.8
	default:
		for _, tag := range c.Tags {
			switch tag {
			case "pinned":
				I = 1.0
			case "core":
				if I < 0.9 {
					I = 0.9
				}
			case "important":
				if I < 0.7 {
					I = 0.7
				}
			}
		}
	}

	ps := 0.25*F + 0.20*S + 0.25*C + 0.15*R + 0.15*I
	if ps < 0 {
		ps = 0
	}
	if ps > 1 {
		ps = 1
	}
	return ps
}

// Reactivate bumps access_count and tick_last_accessed; if wasHelpful, it
// also increments successful_uses, boosts strength, slows decay, and may
// re-promote status.
func (de *DecayEngine) Reactivate(chunkID string, tick uint64, wasHelpful bool) error {
	return de.db.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+chunkSelectColumnsBare+` FROM chunks WHERE id = ?`, chunkID)
		c, err := scanChunk(row)
		if err != nil {
			return err
		}

		now := time.Now().UTC().Format(time.RFC3339)
		c.AccessCount++
		c.TickLastAccessed = &tick

		if wasHelpful {
			c.SuccessfulUses++
			c.TickLastUseful = &tick
			boost := 0.2 * (1 - c.CurrentStrength)
			c.CurrentStrength += boost
			if c.CurrentStrength > 1 {
				c.CurrentStrength = 1
			}
			c.DecayRate *= 0.95
			if c.DecayRate < 0.01 {
				c.DecayRate = 0.01
			}
			if c.CurrentStrength > 0.4 {
				c.Status = StatusActive
			}
		}

		_, err = tx.Exec(`UPDATE chunks SET access_count=?, tick_last_accessed=?, last_accessed=?,
			successful_uses=?, tick_last_useful=?, last_useful=?, current_strength=?, decay_rate=?, status=?
			WHERE id = ?`,
			c.AccessCount, tick, now, c.SuccessfulUses, nullUint64Ptr(c.TickLastUseful),
			nullLastUseful(wasHelpful, now), c.CurrentStrength, c.DecayRate, string(c.Status), c.ID)
		if err != nil {
			return fmt.Errorf("failed to reactivate chunk: %w", err)
		}
		return nil
	})
}

func nullLastUseful(wasHelpful bool, now string) sql.NullString {
	if !wasHelpful {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: now, Valid: true}
}

const chunkSelectColumnsBare = `id, project_id, content, type, tags, confidence, source, created_at,
	last_accessed, last_useful, tick_created, tick_last_accessed, tick_last_useful, learning_context,
	initial_strength, current_strength, decay_function, decay_rate, persistence_score, access_count,
	successful_uses, status, pinned, superseded_by, valid_until_tick, embedding_pending`
