package worklog

import (
	"testing"

	"github.com/ODSapper/agentmem/internal/events"
	"github.com/ODSapper/agentmem/internal/memory"
)

func newTestEngine(t *testing.T) (*Engine, string) {
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

	bus := events.NewBus(nil)
	return NewEngine(db, bus), p.ID
}

func TestEngine_CreateTaskNoDepsIsReady(t *testing.T) {
	e, projectID := newTestEngine(t)

	task, err := e.CreateTask(projectID, "write design doc", "", "writing", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != memory.TaskReady {
		t.Fatalf("expected ready status, got %s", task.Status)
	}
}

func TestEngine_CreateTaskWithUnfinishedDepIsBlocked(t *testing.T) {
	e, projectID := newTestEngine(t)

	dep, err := e.CreateTask(projectID, "research", "", "", nil)
	if err != nil {
		t.Fatalf("CreateTask dep: %v", err)
	}

	child, err := e.CreateTask(projectID, "implement", "", "", []string{dep.ID})
	if err != nil {
		t.Fatalf("CreateTask child: %v", err)
	}
	if child.Status != memory.TaskBlocked {
		t.Fatalf("expected blocked status, got %s", child.Status)
	}
}

func TestEngine_CompletingDependencyUnblocksChild(t *testing.T) {
	e, projectID := newTestEngine(t)

	dep, err := e.CreateTask(projectID, "research", "", "", nil)
	if err != nil {
		t.Fatalf("CreateTask dep: %v", err)
	}
	child, err := e.CreateTask(projectID, "implement", "", "", []string{dep.ID})
	if err != nil {
		t.Fatalf("CreateTask child: %v", err)
	}

	if _, err := e.UpdateTaskStatus(dep.ID, memory.TaskDone, nil, nil, nil); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}

	reloaded, err := e.db.GetTask(child.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if reloaded.Status != memory.TaskReady {
		t.Fatalf("expected child promoted to ready, got %s", reloaded.Status)
	}
}

func TestEngine_QuestionBlocksAndAnswerUnblocks(t *testing.T) {
	e, projectID := newTestEngine(t)

	task, err := e.CreateTask(projectID, "decide on schema", "", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	q, err := e.CreateQuestion(projectID, "which column type?", "schema design", []string{task.ID})
	if err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}

	blocked, err := e.db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if blocked.Status != memory.TaskBlocked {
		t.Fatalf("expected task blocked by question, got %s", blocked.Status)
	}

	if _, err := e.AnswerQuestion(q.ID, "use TEXT"); err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}

	unblocked, err := e.db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if unblocked.Status != memory.TaskReady {
		t.Fatalf("expected task promoted to ready after answer, got %s", unblocked.Status)
	}
}

func TestEngine_SetGoalCompletesPriorActiveGoal(t *testing.T) {
	e, projectID := newTestEngine(t)

	first, err := e.SetGoal(projectID, "ship v1")
	if err != nil {
		t.Fatalf("SetGoal: %v", err)
	}

	second, err := e.SetGoal(projectID, "ship v2")
	if err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	if second.GoalText != "ship v2" || !second.Active {
		t.Fatalf("expected second goal active, got %+v", second)
	}

	active, err := e.db.GetActiveGoal(projectID)
	if err != nil {
		t.Fatalf("GetActiveGoal: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected active goal to be the second one, got %s", active.ID)
	}
	_ = first
}

func TestEngine_PendingGoalAppliesOnDemand(t *testing.T) {
	e, projectID := newTestEngine(t)

	if err := e.QueueGoal(projectID, "future goal"); err != nil {
		t.Fatalf("QueueGoal: %v", err)
	}

	applied, err := e.ApplyPendingGoal(projectID)
	if err != nil {
		t.Fatalf("ApplyPendingGoal: %v", err)
	}
	if applied == nil || applied.GoalText != "future goal" {
		t.Fatalf("expected pending goal applied, got %+v", applied)
	}

	again, err := e.ApplyPendingGoal(projectID)
	if err != nil {
		t.Fatalf("ApplyPendingGoal (empty): %v", err)
	}
	if again != nil {
		t.Fatalf("expected nil when no pending goal queued, got %+v", again)
	}
}

func TestEngine_ReadyTasksCacheReflectsTransitions(t *testing.T) {
	e, projectID := newTestEngine(t)

	if err := e.LoadProject(projectID); err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if len(e.ReadyTasks(projectID)) != 0 {
		t.Fatalf("expected empty ready cache for new project")
	}

	task, err := e.CreateTask(projectID, "setup", "", "", nil)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	ready := e.ReadyTasks(projectID)
	if len(ready) != 1 || ready[0].ID != task.ID {
		t.Fatalf("expected ready cache to contain the new task, got %+v", ready)
	}

	if _, err := e.UpdateTaskStatus(task.ID, memory.TaskInProgress, nil, nil, nil); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if len(e.ReadyTasks(projectID)) != 0 {
		t.Fatalf("expected ready cache empty after task left ready status")
	}
}
