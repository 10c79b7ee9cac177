package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateProject creates a new project and seeds its agent_state row at tick 0.
func (m *SQLiteMemoryDB) CreateProject() (*Project, error) {
	p := &Project{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	err := m.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO projects (id, created_at) VALUES (?, ?)`,
			p.ID, p.CreatedAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to insert project: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO agent_state (project_id, current_tick, last_decay_tick, last_consolidation_tick)
			VALUES (?, 0, 0, 0)`, p.ID); err != nil {
			return fmt.Errorf("failed to seed agent state: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject fetches a project by id.
func (m *SQLiteMemoryDB) GetProject(id string) (*Project, error) {
	var p Project
	var createdAt string
	err := m.db.QueryRow(`SELECT id, created_at FROM projects WHERE id = ?`, id).Scan(&p.ID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}
