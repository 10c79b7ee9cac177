package memory

import (
	"testing"

	"github.com/ODSapper/agentmem/internal/events"
)

func newTestDecayFixture(t *testing.T) (*DecayEngine, *ChunkStore, *SQLiteMemoryDB, string) {
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

	vi, err := NewVectorIndex(db, 4)
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}
	bm25, err := NewBM25Index(db)
	if err != nil {
		t.Fatalf("NewBM25Index: %v", err)
	}
	bus := events.NewBus(nil)
	graph := NewGraph(db, bus)
	cs := NewChunkStore(db, vi, bm25, graph, nil, nil)
	decay := NewDecayEngine(db, vi, bm25, graph, bus)
	return decay, cs, db, p.ID
}

func TestDecayEngine_RunIsNoOpAtDeltaZero(t *testing.T) {
	decay, cs, db, projectID := newTestDecayFixture(t)
	chunk, err := cs.Store(projectID, "some research finding", ChunkResearch, nil,
		ConfidenceInferred, SourceResearch, nil, LearningContext{}, ChunkStoreOptions{})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	processed, tombstoned, _, err := decay.Run(projectID, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if processed != 0 || tombstoned != 0 {
		t.Fatalf("expected decay at delta=0 to be a no-op, got processed=%d tombstoned=%d", processed, tombstoned)
	}

	got, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if got.CurrentStrength != 1.0 {
		t.Fatalf("expected strength unchanged at delta=0, got %v", got.CurrentStrength)
	}
}

func TestDecayEngine_RunReducesStrengthMonotonically(t *testing.T) {
	decay, cs, db, projectID := newTestDecayFixture(t)
	chunk, err := cs.Store(projectID, "a research attempt", ChunkAttempt, nil,
		ConfidenceSpeculative, SourceExperiment, nil, LearningContext{}, ChunkStoreOptions{})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	_ = db

	if _, _, _, err := decay.Run(projectID, 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	afterOne, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if afterOne.CurrentStrength >= 1.0 {
		t.Fatalf("expected strength to drop after decay pass, got %v", afterOne.CurrentStrength)
	}

	if _, _, _, err := decay.Run(projectID, 10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	afterTwo, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if afterTwo.CurrentStrength > afterOne.CurrentStrength {
		t.Fatalf("expected strength to keep decreasing, got %v then %v", afterOne.CurrentStrength, afterTwo.CurrentStrength)
	}
}

func TestDecayEngine_ZeroStrengthTombstones(t *testing.T) {
	decay, cs, db, projectID := newTestDecayFixture(t)
	chunk, err := cs.Store(projectID, "a doomed attempt", ChunkAttempt, nil,
		ConfidenceSpeculative, SourceExperiment, nil, LearningContext{}, ChunkStoreOptions{})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	// Attempts decay fast (rate 0.10 * multiplier 1.5); a very large delta
	// should drive strength to (effectively) zero and tombstone the chunk.
	if _, tombstoned, _, err := decay.Run(projectID, 100000); err != nil {
		t.Fatalf("Run: %v", err)
	} else if tombstoned != 1 {
		t.Fatalf("expected chunk to tombstone under a huge tick delta, got tombstoned=%d", tombstoned)
	}

	got, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if got.Status != StatusTombstone || got.CurrentStrength != 0 {
		t.Fatalf("expected tombstoned chunk at zero strength, got %+v", got)
	}

	var archiveCount int
	db.db.QueryRow(`SELECT COUNT(*) FROM chunks_archive WHERE chunk_id = ?`, chunk.ID).Scan(&archiveCount)
	if archiveCount != 1 {
		t.Fatalf("expected one archive row written before tombstoning, got %d", archiveCount)
	}
}

func TestDecayEngine_UserInputNeverDecays(t *testing.T) {
	decay, cs, db, projectID := newTestDecayFixture(t)
	chunk, err := cs.Store(projectID, "build the memory substrate", ChunkUserInput, nil,
		ConfidenceVerified, SourceUser, nil, LearningContext{}, ChunkStoreOptions{})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	_ = db

	if _, _, _, err := decay.Run(projectID, 100000); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if got.CurrentStrength != 1.0 || got.Status != StatusActive {
		t.Fatalf("expected user_input chunk untouched by decay, got %+v", got)
	}
}

func TestDecayEngine_StatusCanOnlyDemote(t *testing.T) {
	if got := statusRank(StatusWarm); statusRank(StatusActive) >= got {
		t.Fatalf("expected active to rank lower (less decayed) than warm")
	}
	if statusRank(StatusTombstone) <= statusRank(StatusCold) {
		t.Fatalf("expected tombstone to rank higher (more decayed) than cold")
	}
}

func TestDecayEngine_ReactivateBoostsStrengthWhenHelpful(t *testing.T) {
	decay, cs, db, projectID := newTestDecayFixture(t)
	chunk, err := cs.Store(projectID, "a useful insight", ChunkInsight, nil,
		ConfidenceVerified, SourceResearch, nil, LearningContext{}, ChunkStoreOptions{})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	_ = db

	if _, _, _, err := decay.Run(projectID, 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	decayed, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}

	if err := decay.Reactivate(chunk.ID, 6, true); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	reactivated, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if reactivated.CurrentStrength <= decayed.CurrentStrength {
		t.Fatalf("expected helpful reactivation to boost strength, decayed=%v reactivated=%v",
			decayed.CurrentStrength, reactivated.CurrentStrength)
	}
	if reactivated.SuccessfulUses != 1 {
		t.Fatalf("expected successful_uses incremented, got %d", reactivated.SuccessfulUses)
	}
}

func TestDecayEngine_PersistenceScoreRisesWithEdgeCount(t *testing.T) {
	decay, cs, db, projectID := newTestDecayFixture(t)
	chunk, err := cs.Store(projectID, "a well-connected decision", ChunkDecision, nil,
		ConfidenceVerified, SourceResearch, nil, LearningContext{}, ChunkStoreOptions{})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, _, _, err := decay.Run(projectID, 1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	before, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}

	graph := NewGraph(db, nil)
	neighbors := []string{"n1", "n2", "n3", "n4", "n5"}
	seedTestChunks(t, db, projectID, neighbors...)
	for _, n := range neighbors {
		if _, err := graph.Create(chunk.ID, n, RelRelatedTo, 0.5, nil, OriginExplicit); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if _, _, _, err := decay.Run(projectID, 2); err != nil {
		t.Fatalf("Run: %v", err)
	}
	after, err := cs.GetChunk(chunk.ID)
	if err != nil {
		t.Fatalf("GetChunk: %v", err)
	}
	if after.PersistenceScore <= before.PersistenceScore {
		t.Fatalf("expected persistence score to rise with edge count, before=%v after=%v",
			before.PersistenceScore, after.PersistenceScore)
	}
}
