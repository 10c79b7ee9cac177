package queryhttp

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/ODSapper/agentmem/internal/embedding"
	"github.com/ODSapper/agentmem/internal/events"
	"github.com/ODSapper/agentmem/internal/memory"
	"github.com/ODSapper/agentmem/internal/worklog"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	db, err := memory.NewMemoryDB(":memory:")
	if err != nil {
		t.Fatalf("NewMemoryDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	p, err := db.CreateProject()
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	mock := embedding.NewMock(16)
	vi, err := memory.NewVectorIndex(db, mock.Dimensions())
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}
	bm25, err := memory.NewBM25Index(db)
	if err != nil {
		t.Fatalf("NewBM25Index: %v", err)
	}
	bus := events.NewBus(nil)
	graph := memory.NewGraph(db, bus)
	detector := memory.NewContradictionDetector(vi, db, nil)
	cs := memory.NewChunkStore(db, vi, bm25, graph, detector, bus)
	decay := memory.NewDecayEngine(db, vi, bm25, graph, bus)
	retriever := memory.NewHybridRetriever(db, vi, bm25, graph, cs, decay, mock)
	planner := memory.NewQueryPlanner(retriever, graph, db)
	engine := worklog.NewEngine(db, bus)

	s := NewServer(db, planner, engine, bus)
	return s, p.ID
}

func TestServer_HealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
}

func TestServer_ReadyTasksRequiresProjectID(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/tasks/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 without project_id, got %d", rec.Code)
	}
}

func TestServer_ReadyTasksReturnsEngineCache(t *testing.T) {
	s, projectID := newTestServer(t)

	task, err := s.engine.CreateTask(projectID, "write tests", "", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/tasks/ready?project_id="+projectID, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Tasks []struct {
			ID string `json:"id"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Tasks) != 1 || body.Tasks[0].ID != task.ID {
		t.Fatalf("expected ready task %s in response, got %+v", task.ID, body.Tasks)
	}
}

func TestServer_QueryRequiresProjectIDAndText(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/query", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for empty query request, got %d", rec.Code)
	}
}

func TestServer_GetChunkNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/chunks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404 for missing chunk, got %d", rec.Code)
	}
}

func TestServer_ActiveGoalNoneReturnsNullGoal(t *testing.T) {
	s, projectID := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/goals/active?project_id="+projectID, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["goal"] != nil {
		t.Fatalf("expected nil goal for project with no active goal, got %v", body["goal"])
	}
}
