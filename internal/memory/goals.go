package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SetActiveGoal completes the project's current active goal (if any) and
// inserts the new one as active, per the "at most one active goal" invariant.
func (m *SQLiteMemoryDB) SetActiveGoal(projectID, goalText string) (*Goal, error) {
	g := &Goal{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		GoalText:  goalText,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	err := m.withTx(func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.Exec(`UPDATE goals SET active = 0, completed_at = ? WHERE project_id = ? AND active = 1`,
			now, projectID); err != nil {
			return fmt.Errorf("failed to complete prior goal: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO goals (id, project_id, goal_text, active, created_at)
			VALUES (?, ?, ?, 1, ?)`, g.ID, g.ProjectID, g.GoalText, g.CreatedAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to insert goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetActiveGoal returns the project's active goal, or ErrNotFound if none.
func (m *SQLiteMemoryDB) GetActiveGoal(projectID string) (*Goal, error) {
	row := m.db.QueryRow(`SELECT id, project_id, goal_text, active, created_at, completed_at, outcome
		FROM goals WHERE project_id = ? AND active = 1`, projectID)

	var g Goal
	var active int
	var createdAt string
	var completedAt, outcome sql.NullString
	err := row.Scan(&g.ID, &g.ProjectID, &g.GoalText, &active, &createdAt, &completedAt, &outcome)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active goal: %w", err)
	}
	g.Active = intToBool(active)
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	g.CompletedAt = parseTimePtr(completedAt)
	g.Outcome = stringPtrOrNil(outcome)
	return &g, nil
}

// EnqueuePendingGoal sets (or replaces) the project's single-slot pending
// goal, to be applied after the current cycle ends.
func (m *SQLiteMemoryDB) EnqueuePendingGoal(projectID, goalText string) error {
	_, err := m.db.Exec(`INSERT INTO pending_goals (project_id, goal_text, queued_at) VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET goal_text = excluded.goal_text, queued_at = excluded.queued_at`,
		projectID, goalText, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to enqueue pending goal: %w", err)
	}
	return nil
}

// TakePendingGoal pops the project's pending goal, if any, clearing the slot.
func (m *SQLiteMemoryDB) TakePendingGoal(projectID string) (*PendingGoal, error) {
	var pg PendingGoal
	var queuedAt string
	err := m.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT project_id, goal_text, queued_at FROM pending_goals WHERE project_id = ?`, projectID)
		if err := row.Scan(&pg.ProjectID, &pg.GoalText, &queuedAt); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM pending_goals WHERE project_id = ?`, projectID)
		return err
	})
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take pending goal: %w", err)
	}
	pg.QueuedAt, _ = time.Parse(time.RFC3339, queuedAt)
	return &pg, nil
}
