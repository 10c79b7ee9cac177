package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogActivity appends an entry to the project's activity log.
func (m *SQLiteMemoryDB) LogActivity(projectID, action, detailsJSON string) error {
	_, err := m.db.Exec(`INSERT INTO activities (id, project_id, action, details_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), projectID, action, detailsJSON, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

// RecentActivity returns the last n activities for a project, newest first.
func (m *SQLiteMemoryDB) RecentActivity(projectID string, n int) ([]*Activity, error) {
	rows, err := m.db.Query(`SELECT id, project_id, action, details_json, created_at FROM activities
		WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`, projectID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		var a Activity
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Action, &a.DetailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}
