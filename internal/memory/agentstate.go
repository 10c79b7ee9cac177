package memory

import (
	"database/sql"
	"fmt"
)

// GetAgentState fetches the per-project tick bookkeeping row, creating it
// at tick 0 if the project has none yet (defensive; CreateProject already
// seeds it).
func (m *SQLiteMemoryDB) GetAgentState(projectID string) (*AgentState, error) {
	var s AgentState
	s.ProjectID = projectID
	err := m.db.QueryRow(`SELECT current_tick, last_decay_tick, last_consolidation_tick
		FROM agent_state WHERE project_id = ?`, projectID).
		Scan(&s.CurrentTick, &s.LastDecayTick, &s.LastConsolidationTick)
	if err == sql.ErrNoRows {
		if _, err := m.db.Exec(`INSERT INTO agent_state (project_id, current_tick, last_decay_tick,
			last_consolidation_tick) VALUES (?, 0, 0, 0)`, projectID); err != nil {
			return nil, fmt.Errorf("failed to seed agent state: %w", err)
		}
		return &AgentState{ProjectID: projectID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent state: %w", err)
	}
	return &s, nil
}

// SetCurrentTick persists the project's advanced tick.
func (m *SQLiteMemoryDB) SetCurrentTick(projectID string, tick uint64) error {
	_, err := m.db.Exec(`UPDATE agent_state SET current_tick = ? WHERE project_id = ?`, tick, projectID)
	if err != nil {
		return fmt.Errorf("failed to set current tick: %w", err)
	}
	return nil
}

// MarkDecayRun atomically advances last_decay_tick to the given tick.
func (m *SQLiteMemoryDB) MarkDecayRun(projectID string, tick uint64) error {
	_, err := m.db.Exec(`UPDATE agent_state SET last_decay_tick = ? WHERE project_id = ?`, tick, projectID)
	if err != nil {
		return fmt.Errorf("failed to mark decay run: %w", err)
	}
	return nil
}

// MarkConsolidationRun atomically advances last_consolidation_tick.
func (m *SQLiteMemoryDB) MarkConsolidationRun(projectID string, tick uint64) error {
	_, err := m.db.Exec(`UPDATE agent_state SET last_consolidation_tick = ? WHERE project_id = ?`, tick, projectID)
	if err != nil {
		return fmt.Errorf("failed to mark consolidation run: %w", err)
	}
	return nil
}
