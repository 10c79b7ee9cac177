package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event published by the memory core
type EventType string

// Event type constants, the fixed enumerated set the memory core publishes.
// Dashboards and the NATS bridge subscribe to these; the core holds no
// reference to its subscribers.
const (
	EventTickAdvance        EventType = "tick_advance"
	EventChunkStored        EventType = "chunk_stored"
	EventContradictionFound EventType = "contradiction_detected"
	EventEdgeCreated        EventType = "edge_created"
	EventTaskStateChanged   EventType = "task_state_changed"
	EventQuestionAsked      EventType = "question_asked"
	EventQuestionAnswered   EventType = "question_answered"
	EventGoalSet            EventType = "goal_set"
	EventDecayRun           EventType = "decay_run"
)

// Priority constants for events
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event represents a system event that can be published and subscribed to
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType EventType, source, target string, priority int, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllEventTypes returns all defined event types
func AllEventTypes() []EventType {
	return []EventType{
		EventTickAdvance,
		EventChunkStored,
		EventContradictionFound,
		EventEdgeCreated,
		EventTaskStateChanged,
		EventQuestionAsked,
		EventQuestionAnswered,
		EventGoalSet,
		EventDecayRun,
	}
}

// Payload builders for the event shapes named in the external event stream
// contract. These keep publishers from hand-building map literals (and
// typo-ing a key) at every call site.

// TickAdvancePayload builds the payload for a tick_advance event.
func TickAdvancePayload(tick uint64) map[string]interface{} {
	return map[string]interface{}{"tick": tick}
}

// ChunkStoredPayload builds the payload for a chunk_stored event.
func ChunkStoredPayload(chunkID string) map[string]interface{} {
	return map[string]interface{}{"chunk_id": chunkID}
}

// ContradictionDetectedPayload builds the payload for a contradiction_detected event.
func ContradictionDetectedPayload(newID, existingID string, confidence float64) map[string]interface{} {
	return map[string]interface{}{
		"new_id":      newID,
		"existing_id": existingID,
		"confidence":  confidence,
	}
}

// EdgeCreatedPayload builds the payload for an edge_created event.
func EdgeCreatedPayload(from, to, edgeType string, weight float64) map[string]interface{} {
	return map[string]interface{}{
		"from":   from,
		"to":     to,
		"type":   edgeType,
		"weight": weight,
	}
}

// TaskStateChangedPayload builds the payload for a task_state_changed event.
func TaskStateChangedPayload(taskID, from, to string) map[string]interface{} {
	return map[string]interface{}{"task_id": taskID, "from": from, "to": to}
}

// QuestionAskedPayload builds the payload for a question_asked event.
func QuestionAskedPayload(questionID string) map[string]interface{} {
	return map[string]interface{}{"question_id": questionID}
}

// QuestionAnsweredPayload builds the payload for a question_answered event.
func QuestionAnsweredPayload(questionID string) map[string]interface{} {
	return map[string]interface{}{"question_id": questionID}
}

// GoalSetPayload builds the payload for a goal_set event.
func GoalSetPayload(goalID string) map[string]interface{} {
	return map[string]interface{}{"goal_id": goalID}
}

// DecayRunPayload builds the payload for a decay_run event.
func DecayRunPayload(processed, tombstoned int, avgStrength float64) map[string]interface{} {
	return map[string]interface{}{
		"processed":    processed,
		"tombstoned":   tombstoned,
		"avg_strength": avgStrength,
	}
}
