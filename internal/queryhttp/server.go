// Package queryhttp exposes a read-only HTTP query surface over the
// memory substrate: chunk search via the Query Planner, working-state
// snapshots, and a WebSocket stream of the event bus for dashboards.
package queryhttp

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ODSapper/agentmem/internal/events"
	"github.com/ODSapper/agentmem/internal/memory"
	"github.com/ODSapper/agentmem/internal/worklog"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// MaxPayloadSize bounds request bodies to guard against oversized POSTs.
const MaxPayloadSize = 1 * 1024 * 1024

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://localhost:3000" || origin == "http://127.0.0.1:3000"
	},
}

// Server wires the query surface's HTTP router to the memory core.
type Server struct {
	router   *mux.Router
	db       *memory.SQLiteMemoryDB
	planner  *memory.QueryPlanner
	engine   *worklog.Engine
	bus      *events.Bus
	hub      *Hub
}

// NewServer constructs the router and starts routing bus events to the
// WebSocket hub in a background goroutine.
func NewServer(db *memory.SQLiteMemoryDB, planner *memory.QueryPlanner, engine *worklog.Engine, bus *events.Bus) *Server {
	s := &Server{
		db:      db,
		planner: planner,
		engine:  engine,
		bus:     bus,
		hub:     NewHub(),
	}
	go s.hub.Run()

	if s.bus != nil {
		go func() {
			sub := s.bus.Subscribe("all", nil)
			for event := range sub {
				s.hub.BroadcastJSON(event)
			}
		}()
	}

	s.setupRoutes()
	return s
}

// Handler returns the configured router for mounting under an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(securityHeadersMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/query", s.handleQuery).Methods("POST")
	api.HandleFunc("/tasks/ready", s.handleReadyTasks).Methods("GET")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/questions/open", s.handleOpenQuestions).Methods("GET")
	api.HandleFunc("/goals/active", s.handleActiveGoal).Methods("GET")
	api.HandleFunc("/activity", s.handleRecentActivity).Methods("GET")
	api.HandleFunc("/orientation", s.handleOrientation).Methods("GET")
	api.HandleFunc("/chunks/{id}", s.handleGetChunk).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "agentmemd")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[QUERYHTTP] failed to encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type queryRequest struct {
	ProjectID string                  `json:"project_id"`
	Text      string                  `json:"text"`
	Context   memory.RetrievalContext `json:"context"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadSize)
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ProjectID == "" || req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "project_id and text are required")
		return
	}

	qType, hits, err := s.planner.PlanAndRetrieve(req.ProjectID, req.Text, req.Context)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.respondJSON(w, map[string]interface{}{
		"query_type": qType,
		"hits":       hits,
	})
}

func (s *Server) handleReadyTasks(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		s.respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	s.respondJSON(w, map[string]interface{}{
		"tasks": s.engine.ReadyTasks(projectID),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	task, err := s.db.GetTask(id)
	if err == memory.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	s.respondJSON(w, task)
}

func (s *Server) handleOpenQuestions(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		s.respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	qs, err := s.db.ListOpenQuestions(projectID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load open questions")
		return
	}
	s.respondJSON(w, map[string]interface{}{"questions": qs})
}

func (s *Server) handleActiveGoal(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		s.respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	g, err := s.db.GetActiveGoal(projectID)
	if err == memory.ErrNotFound {
		s.respondJSON(w, map[string]interface{}{"goal": nil})
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load active goal")
		return
	}
	s.respondJSON(w, map[string]interface{}{"goal": g})
}

func (s *Server) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		s.respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		fmt.Sscanf(v, "%d", &n)
	}
	activity, err := s.db.RecentActivity(projectID, n)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load activity")
		return
	}
	s.respondJSON(w, map[string]interface{}{"activity": activity})
}

func (s *Server) handleOrientation(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		s.respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	o, err := s.db.GetOrientation(projectID)
	if err == memory.ErrNotFound {
		s.respondJSON(w, map[string]interface{}{"orientation": nil})
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load orientation")
		return
	}
	s.respondJSON(w, map[string]interface{}{"orientation": o})
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	chunk, err := s.db.GetChunk(id)
	if err == memory.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "chunk not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load chunk")
		return
	}
	s.respondJSON(w, chunk)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, map[string]interface{}{"status": "ok", "clients": s.hub.ClientCount()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, WebSocketBufferSize)}
	s.hub.Register(client)
	go client.readPump()
	go client.writePump()
}
