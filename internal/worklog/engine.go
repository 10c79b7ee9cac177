// Package worklog implements the Working-State Engine: the task,
// question, goal, and activity-log state machine that tracks what an
// agent is doing and what's blocking it.
package worklog

import (
	"fmt"
	"sync"
	"time"

	"github.com/ODSapper/agentmem/internal/events"
	"github.com/ODSapper/agentmem/internal/memory"
)

// Engine owns the task/question/goal state machine for a project, backed
// by the memory package's persistence layer. It keeps an in-memory cache
// of ready tasks per project so the prioritizer (out of scope here) can
// read it without a query round-trip, adapted from the teacher's
// read-through ready-queue cache pattern.
type Engine struct {
	db  *memory.SQLiteMemoryDB
	bus *events.Bus

	mu    sync.RWMutex
	ready map[string][]*memory.Task // project_id -> ready tasks
}

// NewEngine binds an Engine to its persistence layer and event bus.
func NewEngine(db *memory.SQLiteMemoryDB, bus *events.Bus) *Engine {
	return &Engine{
		db:    db,
		bus:   bus,
		ready: make(map[string][]*memory.Task),
	}
}

// LoadProject populates the ready-task cache for a project from storage;
// call once per project before relying on ReadyTasks.
func (e *Engine) LoadProject(projectID string) error {
	tasks, err := e.db.ListTasksByProject(projectID)
	if err != nil {
		return fmt.Errorf("worklog: failed to load project: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready[projectID] = filterReady(tasks)
	return nil
}

// ReadyTasks returns the cached set of ready tasks for a project.
func (e *Engine) ReadyTasks(projectID string) []*memory.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*memory.Task, len(e.ready[projectID]))
	copy(out, e.ready[projectID])
	return out
}

func filterReady(tasks []*memory.Task) []*memory.Task {
	var out []*memory.Task
	for _, t := range tasks {
		if t.Status == memory.TaskReady {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) refreshReadyCache(projectID string) error {
	tasks, err := e.db.ListTasksByProject(projectID)
	if err != nil {
		return fmt.Errorf("worklog: failed to refresh ready cache: %w", err)
	}
	e.mu.Lock()
	e.ready[projectID] = filterReady(tasks)
	e.mu.Unlock()
	return nil
}

// CreateTask inserts a new task, computing its initial status from its
// dependencies: blocked if any dependency isn't done, else ready.
func (e *Engine) CreateTask(projectID, title, description, skillArea string, dependsOn []string) (*memory.Task, error) {
	status := memory.TaskReady
	for _, depID := range dependsOn {
		dep, err := e.db.GetTask(depID)
		if err != nil {
			return nil, fmt.Errorf("worklog: failed to resolve dependency %s: %w", depID, err)
		}
		if dep.Status != memory.TaskDone {
			status = memory.TaskBlocked
			break
		}
	}

	now := time.Now().UTC()
	t := &memory.Task{
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		SkillArea:   skillArea,
		Status:      status,
		DependsOn:   dependsOn,
		BlockedBy:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.db.InsertTask(t); err != nil {
		return nil, fmt.Errorf("worklog: failed to create task: %w", err)
	}
	if err := e.refreshReadyCache(projectID); err != nil {
		return nil, err
	}
	e.logActivity(projectID, "task_created", fmt.Sprintf(`{"task_id":%q,"status":%q}`, t.ID, t.Status))
	e.publishTaskStateChanged(t.ID, "", string(t.Status))
	return t, nil
}

// UpdateTaskStatus transitions a task to a new status. Setting `done`
// clears failure fields, stamps completed_at, and runs an unblock sweep
// over every task depending on it.
func (e *Engine) UpdateTaskStatus(taskID string, newStatus memory.TaskStatus, outcome, failureReason, failureContext *string) (*memory.Task, error) {
	t, err := e.db.GetTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("worklog: failed to load task: %w", err)
	}
	prevStatus := t.Status
	now := time.Now().UTC()

	t.Status = newStatus
	t.UpdatedAt = now
	if outcome != nil {
		t.Outcome = outcome
	}

	switch newStatus {
	case memory.TaskInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case memory.TaskDone:
		t.CompletedAt = &now
		t.FailureReason = nil
		t.FailureContext = nil
		t.FailedAt = nil
	case memory.TaskReady:
		t.FailureReason = nil
		t.FailureContext = nil
		t.FailedAt = nil
	case memory.TaskBlocked:
		t.FailedAt = nil
	}
	if failureReason != nil {
		t.FailureReason = failureReason
		t.FailureContext = failureContext
		t.FailedAt = &now
	}

	if err := e.db.UpdateTask(t); err != nil {
		return nil, fmt.Errorf("worklog: failed to update task: %w", err)
	}

	e.logActivity(t.ProjectID, "task_status_changed",
		fmt.Sprintf(`{"task_id":%q,"from":%q,"to":%q}`, t.ID, prevStatus, t.Status))
	e.publishTaskStateChanged(t.ID, string(prevStatus), string(t.Status))

	if newStatus == memory.TaskDone {
		if err := e.unblockSweep(t.ProjectID, t.ID); err != nil {
			return nil, err
		}
	}
	if err := e.refreshReadyCache(t.ProjectID); err != nil {
		return nil, err
	}
	return t, nil
}

// unblockSweep finds every blocked task depending on the just-completed
// task and promotes it to ready if its other dependencies are also done
// and it has no unanswered blocking questions.
func (e *Engine) unblockSweep(projectID, completedTaskID string) error {
	tasks, err := e.db.ListTasksByProject(projectID)
	if err != nil {
		return fmt.Errorf("worklog: failed to sweep for unblocking: %w", err)
	}
	for _, t := range tasks {
		if t.Status != memory.TaskBlocked {
			continue
		}
		if !dependsOnTask(t, completedTaskID) {
			continue
		}
		if e.taskCanPromote(t) {
			if err := e.promoteToReady(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func dependsOnTask(t *memory.Task, taskID string) bool {
	for _, id := range t.DependsOn {
		if id == taskID {
			return true
		}
	}
	return false
}

// taskCanPromote reports whether a task's dependencies are all done and
// it has no outstanding blocked_by entries.
func (e *Engine) taskCanPromote(t *memory.Task) bool {
	if len(t.BlockedBy) > 0 {
		return false
	}
	for _, depID := range t.DependsOn {
		dep, err := e.db.GetTask(depID)
		if err != nil || dep.Status != memory.TaskDone {
			return false
		}
	}
	return true
}

func (e *Engine) promoteToReady(t *memory.Task) error {
	prev := t.Status
	t.Status = memory.TaskReady
	t.UpdatedAt = time.Now().UTC()
	t.FailureReason = nil
	t.FailureContext = nil
	t.FailedAt = nil
	if err := e.db.UpdateTask(t); err != nil {
		return fmt.Errorf("worklog: failed to promote task %s: %w", t.ID, err)
	}
	e.logActivity(t.ProjectID, "task_unblocked", fmt.Sprintf(`{"task_id":%q}`, t.ID))
	e.publishTaskStateChanged(t.ID, string(prev), string(t.Status))
	return nil
}

// CreateQuestion raises a blocking clarification against the listed
// tasks, appending its id to each task's blocked_by and marking them
// blocked.
func (e *Engine) CreateQuestion(projectID, text, context string, blocksTasks []string) (*memory.Question, error) {
	q := &memory.Question{
		ProjectID:   projectID,
		Text:        text,
		Context:     context,
		Status:      memory.QuestionOpen,
		BlocksTasks: blocksTasks,
		AskedAt:     time.Now().UTC(),
	}
	if err := e.db.InsertQuestion(q); err != nil {
		return nil, fmt.Errorf("worklog: failed to create question: %w", err)
	}

	for _, taskID := range blocksTasks {
		t, err := e.db.GetTask(taskID)
		if err != nil {
			return nil, fmt.Errorf("worklog: failed to block task %s: %w", taskID, err)
		}
		t.BlockedBy = append(t.BlockedBy, q.ID)
		t.Status = memory.TaskBlocked
		t.UpdatedAt = time.Now().UTC()
		if err := e.db.UpdateTask(t); err != nil {
			return nil, fmt.Errorf("worklog: failed to persist blocked task %s: %w", taskID, err)
		}
	}

	if err := e.refreshReadyCache(projectID); err != nil {
		return nil, err
	}
	e.logActivity(projectID, "question_asked", fmt.Sprintf(`{"question_id":%q}`, q.ID))
	if e.bus != nil {
		e.bus.Publish(events.NewEvent(events.EventQuestionAsked, "worklog", "all", events.PriorityNormal,
			events.QuestionAskedPayload(q.ID)))
	}
	return q, nil
}

// AnswerQuestion records an answer, removes the question from every
// blocked task's blocked_by, and promotes any task whose dependencies and
// blocked_by are now both satisfied.
func (e *Engine) AnswerQuestion(questionID, answer string) (*memory.Question, error) {
	q, err := e.db.GetQuestion(questionID)
	if err != nil {
		return nil, fmt.Errorf("worklog: failed to load question: %w", err)
	}
	now := time.Now().UTC()
	q.Status = memory.QuestionAnswered
	q.Answer = &answer
	q.AnsweredAt = &now
	if err := e.db.UpdateQuestion(q); err != nil {
		return nil, fmt.Errorf("worklog: failed to answer question: %w", err)
	}

	for _, taskID := range q.BlocksTasks {
		t, err := e.db.GetTask(taskID)
		if err != nil {
			return nil, fmt.Errorf("worklog: failed to load blocked task %s: %w", taskID, err)
		}
		t.BlockedBy = removeID(t.BlockedBy, q.ID)
		t.UpdatedAt = now
		if err := e.db.UpdateTask(t); err != nil {
			return nil, fmt.Errorf("worklog: failed to persist unblocked task %s: %w", taskID, err)
		}
		if e.taskCanPromote(t) {
			if err := e.promoteToReady(t); err != nil {
				return nil, err
			}
		}
	}

	if err := e.refreshReadyCache(q.ProjectID); err != nil {
		return nil, err
	}
	e.logActivity(q.ProjectID, "question_answered", fmt.Sprintf(`{"question_id":%q}`, q.ID))
	if e.bus != nil {
		e.bus.Publish(events.NewEvent(events.EventQuestionAnswered, "worklog", "all", events.PriorityNormal,
			events.QuestionAnsweredPayload(q.ID)))
	}
	return q, nil
}

func removeID(ids []string, target string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// SetGoal completes the project's current active goal (if any) and makes
// the given text the new active goal.
func (e *Engine) SetGoal(projectID, goalText string) (*memory.Goal, error) {
	g, err := e.db.SetActiveGoal(projectID, goalText)
	if err != nil {
		return nil, fmt.Errorf("worklog: failed to set goal: %w", err)
	}
	e.logActivity(projectID, "goal_set", fmt.Sprintf(`{"goal_id":%q}`, g.ID))
	if e.bus != nil {
		e.bus.Publish(events.NewEvent(events.EventGoalSet, "worklog", "all", events.PriorityNormal,
			map[string]interface{}{"goal_id": g.ID, "project_id": projectID}))
	}
	return g, nil
}

// QueueGoal enqueues a pending goal to be applied after the current cycle.
func (e *Engine) QueueGoal(projectID, goalText string) error {
	if err := e.db.EnqueuePendingGoal(projectID, goalText); err != nil {
		return fmt.Errorf("worklog: failed to queue goal: %w", err)
	}
	return nil
}

// ApplyPendingGoal pops the project's pending goal, if any, and makes it
// active. Returns (nil, nil) if there was no pending goal.
func (e *Engine) ApplyPendingGoal(projectID string) (*memory.Goal, error) {
	pg, err := e.db.TakePendingGoal(projectID)
	if err == memory.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("worklog: failed to take pending goal: %w", err)
	}
	return e.SetGoal(projectID, pg.GoalText)
}

func (e *Engine) logActivity(projectID, action, detailsJSON string) {
	if err := e.db.LogActivity(projectID, action, detailsJSON); err != nil {
		// Activity logging is diagnostic; a write failure here must not
		// unwind an otherwise-successful state transition.
		return
	}
}

func (e *Engine) publishTaskStateChanged(taskID, from, to string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewEvent(events.EventTaskStateChanged, "worklog", "all", events.PriorityNormal,
		events.TaskStateChangedPayload(taskID, from, to)))
}
