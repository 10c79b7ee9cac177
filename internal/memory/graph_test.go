package memory

import (
	"testing"

	"github.com/ODSapper/agentmem/internal/events"
)

func newTestGraph(t *testing.T) (*Graph, *SQLiteMemoryDB, string) {
	t.Helper()
	db, err := NewMemoryDB(":memory:")
	if err != nil {
		t.Fatalf("NewMemoryDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	p, err := db.CreateProject()
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	seedTestChunks(t, db, p.ID, "a", "b", "c", "x", "y", "z")
	return NewGraph(db, nil), db, p.ID
}

// seedTestChunks inserts bare chunk rows under fixed ids so that edges
// between them satisfy the relationships table's foreign keys.
func seedTestChunks(t *testing.T, db *SQLiteMemoryDB, projectID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := db.db.Exec(`INSERT INTO chunks (id, project_id, content, type, confidence, source,
			created_at, tick_created) VALUES (?, ?, ?, 'research', 'inferred', 'research', '2024-01-01T00:00:00Z', 0)`,
			id, projectID, "seed chunk "+id); err != nil {
			t.Fatalf("seed chunk %s: %v", id, err)
		}
	}
}

func TestGraph_CreateAndGet(t *testing.T) {
	g, _, _ := newTestGraph(t)
	r, err := g.Create("a", "b", RelSupports, 0.5, []string{"tag"}, OriginExplicit)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Weight != 0.5 {
		t.Fatalf("expected weight 0.5, got %v", r.Weight)
	}

	edges, err := g.Get("a", nil, 0.0, DirOutgoing, 10)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(edges) != 1 || edges[0].To != "b" {
		t.Fatalf("expected one outgoing edge to b, got %+v", edges)
	}
}

func TestGraph_CreateUpsertTakesMaxWeight(t *testing.T) {
	g, _, _ := newTestGraph(t)
	if _, err := g.Create("a", "b", RelSupports, 0.3, nil, OriginExplicit); err != nil {
		t.Fatalf("Create: %v", err)
	}
	r, err := g.Create("a", "b", RelSupports, 0.1, nil, OriginExplicit)
	if err != nil {
		t.Fatalf("Create (upsert): %v", err)
	}
	if r.Weight != 0.3 {
		t.Fatalf("expected upsert to keep max weight 0.3, got %v", r.Weight)
	}
}

func TestGraph_GetBumpsActivationCount(t *testing.T) {
	g, _, _ := newTestGraph(t)
	g.Create("a", "b", RelSupports, 0.5, nil, OriginExplicit)

	edges, err := g.Get("a", nil, 0.0, DirOutgoing, 10)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if edges[0].ActivationCount != 1 {
		t.Fatalf("expected activation count 1 after first traversal, got %d", edges[0].ActivationCount)
	}

	edges2, err := g.Get("a", nil, 0.0, DirOutgoing, 10)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if edges2[0].ActivationCount != 2 {
		t.Fatalf("expected activation count 2 after second traversal, got %d", edges2[0].ActivationCount)
	}
}

func TestGraph_StrengthenCapsAtOne(t *testing.T) {
	g, _, _ := newTestGraph(t)
	g.Create("a", "b", RelSupports, 0.9, nil, OriginExplicit)
	if err := g.Strengthen("a", "b", RelSupports, 0.5); err != nil {
		t.Fatalf("Strengthen: %v", err)
	}
	r, err := g.getByKey("a", "b", RelSupports)
	if err != nil {
		t.Fatalf("getByKey: %v", err)
	}
	if r.Weight != 1.0 {
		t.Fatalf("expected weight capped at 1.0, got %v", r.Weight)
	}
}

func TestGraph_WeakenBelowFloorArchivesAndRemoves(t *testing.T) {
	g, db, _ := newTestGraph(t)
	g.Create("a", "b", RelSupports, 0.06, nil, OriginExplicit)

	if err := g.Weaken("a", "b", RelSupports, "stale", 0.1); err != nil {
		t.Fatalf("Weaken: %v", err)
	}

	if _, err := g.getByKey("a", "b", RelSupports); err != ErrNotFound {
		t.Fatalf("expected edge removed from live set, got err=%v", err)
	}

	var count int
	if err := db.db.QueryRow(`SELECT COUNT(*) FROM relationships_archive WHERE from_chunk='a' AND to_chunk='b'`).Scan(&count); err != nil {
		t.Fatalf("query archive: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one archived relationship row, got %d", count)
	}
}

func TestGraph_EdgeCountCountsBothDirections(t *testing.T) {
	g, _, _ := newTestGraph(t)
	g.Create("a", "b", RelSupports, 0.5, nil, OriginExplicit)
	g.Create("c", "a", RelBuildsOn, 0.5, nil, OriginExplicit)

	n, err := g.EdgeCount("a")
	if err != nil {
		t.Fatalf("EdgeCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected edge count 2, got %d", n)
	}
}

func TestGraph_CreatePublishesEdgeCreatedEvent(t *testing.T) {
	db, err := NewMemoryDB(":memory:")
	if err != nil {
		t.Fatalf("NewMemoryDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	p, err := db.CreateProject()
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	seedTestChunks(t, db, p.ID, "a", "b")

	bus := events.NewBus(nil)
	ch := bus.Subscribe("all", []events.EventType{events.EventEdgeCreated})
	g := NewGraph(db, bus)

	if _, err := g.Create("a", "b", RelSupports, 0.6, nil, OriginExplicit); err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != events.EventEdgeCreated {
			t.Fatalf("expected edge_created event, got %v", ev.Type)
		}
		if ev.Payload["from"] != "a" || ev.Payload["to"] != "b" {
			t.Fatalf("expected payload to name the edge endpoints, got %+v", ev.Payload)
		}
	default:
		t.Fatalf("expected an edge_created event to be published")
	}
}

func TestGraph_RecordCoretrievalAndConsolidateImplicit(t *testing.T) {
	g, _, projectID := newTestGraph(t)

	for i := 0; i < 3; i++ {
		if err := g.RecordCoretrieval(projectID, []string{"x", "y"}, "session", "query", uint64(i)); err != nil {
			t.Fatalf("RecordCoretrieval: %v", err)
		}
	}

	promoted, err := g.ConsolidateImplicit(projectID, 3, 0.3, 0.1)
	if err != nil {
		t.Fatalf("ConsolidateImplicit: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("expected 1 promoted edge, got %d", promoted)
	}

	r, err := g.getByKey("x", "y", RelRelatedTo)
	if err != nil {
		t.Fatalf("expected implicit related_to edge to exist: %v", err)
	}
	if r.Origin != OriginImplicit {
		t.Fatalf("expected implicit origin, got %v", r.Origin)
	}
}

func TestGraph_ConsolidateImplicitBelowThresholdPromotesNothing(t *testing.T) {
	g, _, projectID := newTestGraph(t)
	g.RecordCoretrieval(projectID, []string{"x", "y"}, "session", "query", 0)

	promoted, err := g.ConsolidateImplicit(projectID, 3, 0.3, 0.1)
	if err != nil {
		t.Fatalf("ConsolidateImplicit: %v", err)
	}
	if promoted != 0 {
		t.Fatalf("expected no promotions below threshold, got %d", promoted)
	}
}

func TestGraph_CleanupCoretrievalRemovesOldRows(t *testing.T) {
	g, db, projectID := newTestGraph(t)
	g.RecordCoretrieval(projectID, []string{"x", "y"}, "s", "q", 1)
	g.RecordCoretrieval(projectID, []string{"x", "z"}, "s", "q", 100)

	if err := g.CleanupCoretrieval(projectID, 100, 10); err != nil {
		t.Fatalf("CleanupCoretrieval: %v", err)
	}

	var count int
	db.db.QueryRow(`SELECT COUNT(*) FROM coretrieval WHERE project_id = ?`, projectID).Scan(&count)
	if count != 1 {
		t.Fatalf("expected only the recent row to survive cleanup, got %d rows", count)
	}
}
