package memory

import "time"

// Project is the top-level container; everything else cascades from it.
type Project struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SkillStatus is the lifecycle of one entry in an Orientation's skill map.
type SkillStatus string

const (
	SkillNotStarted SkillStatus = "not_started"
	SkillInProgress SkillStatus = "in_progress"
	SkillAchieved   SkillStatus = "achieved"
)

// SkillNode is one node of the orientation's skill map.
type SkillNode struct {
	Skill        string      `json:"skill"`
	Parent       string      `json:"parent,omitempty"`
	Dependencies []string    `json:"dependencies"`
	Status       SkillStatus `json:"status"`
	Notes        string      `json:"notes,omitempty"`
}

// ProgressArea is one tracked area of the orientation's progress snapshot.
type ProgressArea struct {
	Area     string   `json:"area"`
	Status   string   `json:"status"`
	Percent  *float64 `json:"percent,omitempty"`
	Blockers []string `json:"blockers"`
}

// Phase is the project's current lifecycle phase.
type Phase string

const (
	PhaseIntake     Phase = "intake"
	PhaseResearch   Phase = "research"
	PhasePlanning   Phase = "planning"
	PhaseExecution  Phase = "execution"
	PhaseRefinement Phase = "refinement"
	PhaseComplete   Phase = "complete"
)

// Orientation is the versioned strategic snapshot of a project, exactly one
// per project; replacement archives the prior value.
type Orientation struct {
	ProjectID         string         `json:"project_id"`
	VisionSummary     string         `json:"vision_summary"`
	SuccessCriteria   []string       `json:"success_criteria"`
	Constraints       []string       `json:"constraints"`
	SkillMap          []SkillNode    `json:"skill_map"`
	CurrentPhase      Phase          `json:"current_phase"`
	KeyDecisions      []string       `json:"key_decisions"`
	ActivePriorities  []string       `json:"active_priorities"`
	ProgressSnapshot  []ProgressArea `json:"progress_snapshot"`
	LastRewritten     time.Time      `json:"last_rewritten"`
	Version           int            `json:"version"`
}

// TaskStatus is the Working-State Engine's task lifecycle.
type TaskStatus string

const (
	TaskReady      TaskStatus = "ready"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is one unit of work tracked by the Working-State Engine.
type Task struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	SkillArea       string     `json:"skill_area"`
	Status          TaskStatus `json:"status"`
	DependsOn       []string   `json:"depends_on"`
	BlockedBy       []string   `json:"blocked_by"`
	Outcome         *string    `json:"outcome,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	FailureContext  *string    `json:"failure_context,omitempty"` // raw JSON
}

// QuestionStatus is the lifecycle of a blocking clarification.
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionAnswered QuestionStatus = "answered"
)

// Question is a blocking clarification raised against one or more tasks.
type Question struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	Text        string         `json:"text"`
	Context     string         `json:"context"`
	Status      QuestionStatus `json:"status"`
	Answer      *string        `json:"answer,omitempty"`
	BlocksTasks []string       `json:"blocks_tasks"`
	AskedAt     time.Time      `json:"asked_at"`
	AnsweredAt  *time.Time     `json:"answered_at,omitempty"`
}

// Goal is the project's active objective; at most one active at a time.
type Goal struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	GoalText    string     `json:"goal_text"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Outcome     *string    `json:"outcome,omitempty"`
}

// PendingGoal is the single-slot per-project queue of a goal waiting to be
// applied once the current cycle ends.
type PendingGoal struct {
	ProjectID string    `json:"project_id"`
	GoalText  string    `json:"goal_text"`
	QueuedAt  time.Time `json:"queued_at"`
}

// Activity is one append-only entry in a project's activity log.
type Activity struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Action      string    `json:"action"`
	DetailsJSON string    `json:"details_json"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkType classifies the content of a memory unit.
type ChunkType string

const (
	ChunkResearch  ChunkType = "research"
	ChunkInsight   ChunkType = "insight"
	ChunkDecision  ChunkType = "decision"
	ChunkResource  ChunkType = "resource"
	ChunkAttempt   ChunkType = "attempt"
	ChunkUserInput ChunkType = "user_input"
)

// Confidence is the epistemic status of a chunk's content.
type Confidence string

const (
	ConfidenceVerified    Confidence = "verified"
	ConfidenceInferred    Confidence = "inferred"
	ConfidenceSpeculative Confidence = "speculative"
)

// Source is where a chunk's content originated.
type Source string

const (
	SourceResearch   Source = "research"
	SourceUser       Source = "user"
	SourceDeduction  Source = "deduction"
	SourceExperiment Source = "experiment"
)

// DecayFunction is the forgetting curve applied to a chunk's current_strength.
type DecayFunction string

const (
	DecayExponential DecayFunction = "exponential"
	DecayLinear      DecayFunction = "linear"
	DecayPowerLaw    DecayFunction = "power_law"
	DecayNone        DecayFunction = "none"
)

// ChunkStatus derives from current_strength thresholds and can only demote
// during a decay pass.
type ChunkStatus string

const (
	StatusActive   ChunkStatus = "active"
	StatusWarm     ChunkStatus = "warm"
	StatusCool     ChunkStatus = "cool"
	StatusCold     ChunkStatus = "cold"
	StatusArchived ChunkStatus = "archived"
	StatusTombstone ChunkStatus = "tombstone"
)

// LearningContext is the situational metadata captured at chunk creation.
type LearningContext struct {
	Tick          uint64   `json:"tick"`
	TaskID        *string  `json:"task_id,omitempty"`
	GoalID        *string  `json:"goal_id,omitempty"`
	Phase         Phase    `json:"phase"`
	SkillArea     *string  `json:"skill_area,omitempty"`
	QueryContext  string   `json:"query_context"`
	RelatedChunks []string `json:"related_chunks"`
}

// RetrievalContext is the query-time analog of LearningContext, matched
// against it for context-boosted reranking.
type RetrievalContext struct {
	Tick      uint64  `json:"tick"`
	TaskID    *string `json:"task_id,omitempty"`
	GoalID    *string `json:"goal_id,omitempty"`
	Phase     Phase   `json:"phase"`
	SkillArea *string `json:"skill_area,omitempty"`
	QueryText string  `json:"query_text"`
}

// Chunk is the memory unit: one piece of stored knowledge with content,
// metadata, strength, and context.
type Chunk struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Content   string     `json:"content"`
	Type      ChunkType  `json:"type"`
	Tags      []string   `json:"tags"`
	Confidence Confidence `json:"confidence"`
	Source     Source     `json:"source"`

	CreatedAt        time.Time  `json:"created_at"`
	LastAccessed     *time.Time `json:"last_accessed,omitempty"`
	LastUseful       *time.Time `json:"last_useful,omitempty"`
	TickCreated      uint64     `json:"tick_created"`
	TickLastAccessed *uint64    `json:"tick_last_accessed,omitempty"`
	TickLastUseful   *uint64    `json:"tick_last_useful,omitempty"`

	LearningContext LearningContext `json:"learning_context"`

	InitialStrength  float64       `json:"initial_strength"`
	CurrentStrength  float64       `json:"current_strength"`
	DecayFunction    DecayFunction `json:"decay_function"`
	DecayRate        float64       `json:"decay_rate"`
	PersistenceScore float64       `json:"persistence_score"`
	AccessCount      int           `json:"access_count"`
	SuccessfulUses   int           `json:"successful_uses"`

	Status           ChunkStatus `json:"status"`
	Pinned           bool        `json:"pinned"`
	SupersededBy     *string     `json:"superseded_by,omitempty"`
	ValidUntilTick   *uint64     `json:"valid_until_tick,omitempty"`
	EmbeddingPending bool        `json:"embedding_pending"`
}

// RelationshipType is the kind of typed edge between two chunks.
type RelationshipType string

const (
	RelSupports   RelationshipType = "supports"
	RelContradicts RelationshipType = "contradicts"
	RelBuildsOn    RelationshipType = "builds_on"
	RelReplaces    RelationshipType = "replaces"
	RelRequires    RelationshipType = "requires"
	RelRelatedTo   RelationshipType = "related_to"
)

// RelationshipOrigin distinguishes an edge the caller asked for explicitly
// from one the graph inferred from repeated co-retrieval.
type RelationshipOrigin string

const (
	OriginExplicit RelationshipOrigin = "explicit"
	OriginImplicit RelationshipOrigin = "implicit"
)

// Relationship is a directed typed edge between two chunks.
type Relationship struct {
	ID              string             `json:"id"`
	From            string             `json:"from"`
	To              string             `json:"to"`
	Type            RelationshipType   `json:"type"`
	Weight          float64            `json:"weight"`
	LastActivated   *time.Time         `json:"last_activated,omitempty"`
	ActivationCount int                `json:"activation_count"`
	ContextTags     []string           `json:"context_tags"`
	Origin          RelationshipOrigin `json:"origin"`
	CreatedAt       time.Time          `json:"created_at"`
}

// CoretrievalRecord is an ephemeral pair observation, promoted to an
// implicit relationship once its count crosses a threshold.
type CoretrievalRecord struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	ChunkA       string    `json:"chunk_a"`
	ChunkB       string    `json:"chunk_b"`
	SessionID    string    `json:"session_id"`
	QueryContext string    `json:"query_context"`
	Tick         uint64    `json:"tick"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChunkArchiveEntry is written before a chunk's terminal tombstone transition.
type ChunkArchiveEntry struct {
	ChunkID       string    `json:"chunk_id"`
	ProjectID     string    `json:"project_id"`
	Summary       string    `json:"summary"`
	ContentHash   string    `json:"content_hash"`
	FinalStrength float64   `json:"final_strength"`
	TickArchived  uint64    `json:"tick_archived"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// RelationshipArchiveEntry is written before a relationship drops below the
// weight floor and is removed from the live set.
type RelationshipArchiveEntry struct {
	ID           string    `json:"id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Type         string    `json:"type"`
	FinalWeight  float64   `json:"final_weight"`
	Reason       string    `json:"reason"`
	OriginalData string    `json:"original_data"` // JSON snapshot
	ArchivedAt   time.Time `json:"archived_at"`
}

// AgentState is the per-project tick bookkeeping row.
type AgentState struct {
	ProjectID             string `json:"project_id"`
	CurrentTick           uint64 `json:"current_tick"`
	LastDecayTick         uint64 `json:"last_decay_tick"`
	LastConsolidationTick uint64 `json:"last_consolidation_tick"`
}

// CoherenceWarning flags an orientation/skill-map inconsistency found by
// maintenance sweeps. Purely diagnostic; nothing blocks on it.
type CoherenceWarning struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail"`
	TickRaised uint64    `json:"tick_raised"`
	CreatedAt  time.Time `json:"created_at"`
	Resolved   bool      `json:"resolved"`
}
