package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ODSapper/agentmem/internal/events"
)

// weightFloor is the minimum live edge weight; below this an edge is
// archived and removed from the live set.
const weightFloor = 0.05

// Graph is the Relationship Graph: typed weighted edges between chunks,
// co-retrieval tracking, and implicit-edge promotion.
type Graph struct {
	db  *SQLiteMemoryDB
	bus *events.Bus
}

// NewGraph binds a Graph to db. bus may be nil in tests that do not care
// about event emission.
func NewGraph(db *SQLiteMemoryDB, bus *events.Bus) *Graph { return &Graph{db: db, bus: bus} }

// Create upserts an edge per (from, to, type); on conflict the weight
// becomes max(old, new), tags are replaced, and last_activated is bumped.
func (g *Graph) Create(from, to string, typ RelationshipType, weight float64, contextTags []string, origin RelationshipOrigin) (*Relationship, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	err := g.db.withTx(func(tx *sql.Tx) error {
		var existingWeight float64
		err := tx.QueryRow(`SELECT weight FROM relationships WHERE from_chunk=? AND to_chunk=? AND type=?`,
			from, to, string(typ)).Scan(&existingWeight)
		if err == nil {
			if existingWeight > weight {
				weight = existingWeight
			}
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check existing edge: %w", err)
		}

		_, err = tx.Exec(`INSERT INTO relationships (id, from_chunk, to_chunk, type, weight, last_activated,
			activation_count, context_tags, origin, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
			ON CONFLICT(from_chunk, to_chunk, type) DO UPDATE SET
				weight = excluded.weight,
				context_tags = excluded.context_tags,
				last_activated = excluded.last_activated`,
			id, from, to, string(typ), weight, now.Format(time.RFC3339), marshalJSON(contextTags),
			string(origin), now.Format(time.RFC3339))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}

	if g.bus != nil {
		g.bus.Publish(events.NewEvent(events.EventEdgeCreated, "graph", "all", events.PriorityNormal,
			events.EdgeCreatedPayload(from, to, string(typ), weight)))
	}

	return g.getByKey(from, to, typ)
}

func (g *Graph) getByKey(from, to string, typ RelationshipType) (*Relationship, error) {
	row := g.db.db.QueryRow(`SELECT id, from_chunk, to_chunk, type, weight, last_activated,
		activation_count, context_tags, origin, created_at
		FROM relationships WHERE from_chunk=? AND to_chunk=? AND type=?`, from, to, string(typ))
	return scanRelationship(row)
}

// Direction filters Get traversal.
type Direction string

const (
	DirOutgoing Direction = "outgoing"
	DirIncoming Direction = "incoming"
	DirBoth     Direction = "both"
)

// Get returns edges touching chunk, optionally filtered by type and a
// minimum weight, in the requested direction, up to k results. Traversal
// bumps activation_count and last_activated on every returned edge.
func (g *Graph) Get(chunk string, typ *RelationshipType, minWeight float64, dir Direction, k int) ([]*Relationship, error) {
	var query string
	args := []interface{}{chunk}

	switch dir {
	case DirOutgoing:
		query = `SELECT id, from_chunk, to_chunk, type, weight, last_activated, activation_count, context_tags, origin, created_at
			FROM relationships WHERE from_chunk = ? AND weight >= ?`
	case DirIncoming:
		query = `SELECT id, from_chunk, to_chunk, type, weight, last_activated, activation_count, context_tags, origin, created_at
			FROM relationships WHERE to_chunk = ? AND weight >= ?`
	default:
		query = `SELECT id, from_chunk, to_chunk, type, weight, last_activated, activation_count, context_tags, origin, created_at
			FROM relationships WHERE (from_chunk = ? OR to_chunk = ?) AND weight >= ?`
		args = append(args, chunk)
	}
	args = append(args, minWeight)

	if typ != nil {
		query += ` AND type = ?`
		args = append(args, string(*typ))
	}
	query += ` ORDER BY weight DESC LIMIT ?`
	args = append(args, k)

	rows, err := g.db.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var out []*Relationship
	var ids []string
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range ids {
		if _, err := g.db.db.Exec(`UPDATE relationships SET activation_count = activation_count + 1,
			last_activated = ? WHERE id = ?`, now, id); err != nil {
			return nil, fmt.Errorf("failed to bump activation: %w", err)
		}
	}
	for _, r := range out {
		r.ActivationCount++
	}

	return out, nil
}

// EdgeCount returns the number of live relationships touching chunk, in
// either direction, used as the Persistence Score's connection term.
func (g *Graph) EdgeCount(chunk string) (int, error) {
	var n int
	err := g.db.db.QueryRow(`SELECT COUNT(*) FROM relationships WHERE from_chunk = ? OR to_chunk = ?`,
		chunk, chunk).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return n, nil
}

// Strengthen increases an edge's weight by delta, capped at 1.
func (g *Graph) Strengthen(from, to string, typ RelationshipType, delta float64) error {
	_, err := g.db.db.Exec(`UPDATE relationships SET weight = MIN(1.0, weight + ?)
		WHERE from_chunk=? AND to_chunk=? AND type=?`, delta, from, to, string(typ))
	if err != nil {
		return fmt.Errorf("failed to strengthen edge: %w", err)
	}
	return nil
}

// Weaken decreases an edge's weight by delta; if the result drops below
// weightFloor, the edge is archived with reason and removed.
func (g *Graph) Weaken(from, to string, typ RelationshipType, reason string, delta float64) error {
	return g.db.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id, from_chunk, to_chunk, type, weight, last_activated,
			activation_count, context_tags, origin, created_at
			FROM relationships WHERE from_chunk=? AND to_chunk=? AND type=?`, from, to, string(typ))
		r, err := scanRelationship(row)
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		newWeight := r.Weight - delta
		if newWeight < 0 {
			newWeight = 0
		}

		if newWeight < weightFloor {
			snapshot := marshalJSON(r)
			if _, err := tx.Exec(`INSERT INTO relationships_archive (id, from_chunk, to_chunk, type,
				final_weight, reason, original_data, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.From, r.To, string(r.Type), newWeight, reason, snapshot,
				time.Now().UTC().Format(time.RFC3339)); err != nil {
				return fmt.Errorf("failed to archive relationship: %w", err)
			}
			_, err := tx.Exec(`DELETE FROM relationships WHERE id = ?`, r.ID)
			return err
		}

		_, err = tx.Exec(`UPDATE relationships SET weight = ? WHERE id = ?`, newWeight, r.ID)
		return err
	})
}

// RecordCoretrieval appends a co-retrieval row for every unordered pair in
// chunkIDs, as a single batch per the ordering guarantee in §5.
func (g *Graph) RecordCoretrieval(projectID string, chunkIDs []string, sessionID, queryContext string, tick uint64) error {
	if len(chunkIDs) < 2 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return g.db.withTx(func(tx *sql.Tx) error {
		for i := 0; i < len(chunkIDs); i++ {
			for j := i + 1; j < len(chunkIDs); j++ {
				a, b := chunkIDs[i], chunkIDs[j]
				if a > b {
					a, b = b, a
				}
				if _, err := tx.Exec(`INSERT INTO coretrieval (id, project_id, chunk_a, chunk_b,
					session_id, query_context, tick, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					uuid.New().String(), projectID, a, b, sessionID, queryContext, tick, now); err != nil {
					return fmt.Errorf("failed to record co-retrieval: %w", err)
				}
			}
		}
		return nil
	})
}

// ConsolidateImplicit promotes pairs observed at least threshold times to
// an implicit related_to edge (or strengthens an existing edge between them).
func (g *Graph) ConsolidateImplicit(projectID string, threshold int, initialWeight, strengthenDelta float64) (int, error) {
	rows, err := g.db.db.Query(`SELECT chunk_a, chunk_b, COUNT(*) as cnt FROM coretrieval
		WHERE project_id = ? GROUP BY chunk_a, chunk_b HAVING cnt >= ?`, projectID, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to query co-retrieval pairs: %w", err)
	}
	type pair struct{ a, b string }
	var pairs []pair
	for rows.Next() {
		var p pair
		var cnt int
		if err := rows.Scan(&p.a, &p.b, &cnt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan co-retrieval pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	promoted := 0
	for _, p := range pairs {
		var anyExists bool
		for _, typ := range []RelationshipType{RelSupports, RelContradicts, RelBuildsOn, RelReplaces, RelRequires, RelRelatedTo} {
			if _, err := g.getByKey(p.a, p.b, typ); err == nil {
				anyExists = true
				if err := g.Strengthen(p.a, p.b, typ, strengthenDelta); err != nil {
					return promoted, err
				}
			}
			if _, err := g.getByKey(p.b, p.a, typ); err == nil {
				anyExists = true
				if err := g.Strengthen(p.b, p.a, typ, strengthenDelta); err != nil {
					return promoted, err
				}
			}
		}
		if !anyExists {
			if _, err := g.Create(p.a, p.b, RelRelatedTo, initialWeight, nil, OriginImplicit); err != nil {
				return promoted, err
			}
			promoted++
		}
	}
	return promoted, nil
}

// CleanupCoretrieval removes co-retrieval rows older than keepTicks (tick
// delta from the project's current tick), per the spec's tick-driven choice.
func (g *Graph) CleanupCoretrieval(projectID string, currentTick uint64, keepTicks uint64) error {
	var floor uint64
	if currentTick > keepTicks {
		floor = currentTick - keepTicks
	}
	_, err := g.db.db.Exec(`DELETE FROM coretrieval WHERE project_id = ? AND tick < ?`, projectID, floor)
	if err != nil {
		return fmt.Errorf("failed to clean up co-retrieval: %w", err)
	}
	return nil
}

func scanRelationship(row taskRowScanner) (*Relationship, error) {
	var r Relationship
	var typ, contextTags, origin, createdAt string
	var lastActivated sql.NullString
	err := row.Scan(&r.ID, &r.From, &r.To, &typ, &r.Weight, &lastActivated, &r.ActivationCount,
		&contextTags, &origin, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan relationship: %w", err)
	}
	r.Type = RelationshipType(typ)
	r.ContextTags = unmarshalStrings(contextTags)
	r.Origin = RelationshipOrigin(origin)
	r.LastActivated = parseTimePtr(lastActivated)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}
