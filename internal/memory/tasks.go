package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertTask persists a new task row as-is; the caller (Working-State
// Engine) has already computed its initial status.
func (m *SQLiteMemoryDB) InsertTask(t *Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := m.db.Exec(`INSERT INTO tasks (id, project_id, title, description, skill_area, status,
		depends_on, blocked_by, outcome, created_at, updated_at, started_at, completed_at, failed_at,
		failure_reason, failure_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Title, t.Description, t.SkillArea, string(t.Status),
		marshalJSON(t.DependsOn), marshalJSON(t.BlockedBy), nullStringPtr(t.Outcome),
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339),
		formatTimePtr(t.StartedAt), formatTimePtr(t.CompletedAt), formatTimePtr(t.FailedAt),
		nullStringPtr(t.FailureReason), nullStringPtr(t.FailureContext))
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// UpdateTask overwrites a task row with the caller's current in-memory state.
func (m *SQLiteMemoryDB) UpdateTask(t *Task) error {
	_, err := m.db.Exec(`UPDATE tasks SET title=?, description=?, skill_area=?, status=?, depends_on=?,
		blocked_by=?, outcome=?, updated_at=?, started_at=?, completed_at=?, failed_at=?,
		failure_reason=?, failure_context=? WHERE id = ?`,
		t.Title, t.Description, t.SkillArea, string(t.Status), marshalJSON(t.DependsOn),
		marshalJSON(t.BlockedBy), nullStringPtr(t.Outcome), t.UpdatedAt.Format(time.RFC3339),
		formatTimePtr(t.StartedAt), formatTimePtr(t.CompletedAt), formatTimePtr(t.FailedAt),
		nullStringPtr(t.FailureReason), nullStringPtr(t.FailureContext), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// GetTask fetches a single task by id.
func (m *SQLiteMemoryDB) GetTask(id string) (*Task, error) {
	row := m.db.QueryRow(taskSelectColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasksByProject returns every task belonging to a project.
func (m *SQLiteMemoryDB) ListTasksByProject(projectID string) ([]*Task, error) {
	rows, err := m.db.Query(taskSelectColumns+` FROM tasks WHERE project_id = ? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

const taskSelectColumns = `SELECT id, project_id, title, description, skill_area, status, depends_on,
	blocked_by, outcome, created_at, updated_at, started_at, completed_at, failed_at,
	failure_reason, failure_context`

type taskRowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row taskRowScanner) (*Task, error) {
	var t Task
	var status, dependsOn, blockedBy, createdAt, updatedAt string
	var outcome, startedAt, completedAt, failedAt, failureReason, failureContext sql.NullString
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.SkillArea, &status, &dependsOn,
		&blockedBy, &outcome, &createdAt, &updatedAt, &startedAt, &completedAt, &failedAt,
		&failureReason, &failureContext)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Status = TaskStatus(status)
	t.DependsOn = unmarshalStrings(dependsOn)
	t.BlockedBy = unmarshalStrings(blockedBy)
	t.Outcome = stringPtrOrNil(outcome)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	t.StartedAt = parseTimePtr(startedAt)
	t.CompletedAt = parseTimePtr(completedAt)
	t.FailedAt = parseTimePtr(failedAt)
	t.FailureReason = stringPtrOrNil(failureReason)
	t.FailureContext = stringPtrOrNil(failureContext)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
