package memory

import (
	"database/sql"
	"fmt"
	"time"
)

// GetOrientation returns the project's current orientation, or ErrNotFound
// if none has been written yet.
func (m *SQLiteMemoryDB) GetOrientation(projectID string) (*Orientation, error) {
	row := m.db.QueryRow(`SELECT project_id, vision_summary, success_criteria, constraints, skill_map,
		current_phase, key_decisions, active_priorities, progress_snapshot, last_rewritten, version
		FROM orientation WHERE project_id = ?`, projectID)

	var o Orientation
	var successCriteria, constraints, skillMap, keyDecisions, activePriorities, progress, lastRewritten string
	var phase string
	err := row.Scan(&o.ProjectID, &o.VisionSummary, &successCriteria, &constraints, &skillMap,
		&phase, &keyDecisions, &activePriorities, &progress, &lastRewritten, &o.Version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get orientation: %w", err)
	}

	o.CurrentPhase = Phase(phase)
	o.SuccessCriteria = unmarshalStrings(successCriteria)
	o.Constraints = unmarshalStrings(constraints)
	o.SkillMap = unmarshalSkillMap(skillMap)
	o.KeyDecisions = unmarshalStrings(keyDecisions)
	o.ActivePriorities = unmarshalStrings(activePriorities)
	o.ProgressSnapshot = unmarshalProgress(progress)
	o.LastRewritten, _ = time.Parse(time.RFC3339, lastRewritten)

	return &o, nil
}

// SaveOrientation archives the prior orientation (if any) as a `decision`
// chunk tagged `orientation_archive`/`v<old_version>`, then writes the new
// orientation with version = old + 1.
func (m *SQLiteMemoryDB) SaveOrientation(o *Orientation) error {
	return m.withTx(func(tx *sql.Tx) error {
		var exists bool
		var prevSnapshot string
		var prevVersion int
		err := tx.QueryRow(`SELECT vision_summary || '|' || current_phase, version FROM orientation WHERE project_id = ?`,
			o.ProjectID).Scan(&prevSnapshot, &prevVersion)
		if err == nil {
			exists = true
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check existing orientation: %w", err)
		}

		now := time.Now().UTC()

		if exists {
			archiveContent := fmt.Sprintf("orientation v%d archived: %s", prevVersion, prevSnapshot)
			chunkID, err := newID()
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`INSERT INTO chunks (id, project_id, content, type, tags, confidence, source,
				created_at, tick_created, learning_context, initial_strength, current_strength,
				decay_function, decay_rate, persistence_score, status)
				VALUES (?, ?, ?, 'decision', ?, 'verified', 'deduction', ?, 0, '{}', 1.0, 1.0, 'linear', 0.02, 0.5, 'active')`,
				chunkID, o.ProjectID, archiveContent,
				marshalJSON([]string{"orientation_archive", fmt.Sprintf("v%d", prevVersion)}),
				now.Format(time.RFC3339)); err != nil {
				return fmt.Errorf("failed to archive prior orientation: %w", err)
			}
			o.Version = prevVersion + 1
		} else {
			o.Version = 1
		}
		o.LastRewritten = now

		_, err = tx.Exec(`INSERT INTO orientation (project_id, vision_summary, success_criteria, constraints,
			skill_map, current_phase, key_decisions, active_priorities, progress_snapshot, last_rewritten, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id) DO UPDATE SET
				vision_summary = excluded.vision_summary,
				success_criteria = excluded.success_criteria,
				constraints = excluded.constraints,
				skill_map = excluded.skill_map,
				current_phase = excluded.current_phase,
				key_decisions = excluded.key_decisions,
				active_priorities = excluded.active_priorities,
				progress_snapshot = excluded.progress_snapshot,
				last_rewritten = excluded.last_rewritten,
				version = excluded.version`,
			o.ProjectID, o.VisionSummary, marshalJSON(o.SuccessCriteria), marshalJSON(o.Constraints),
			marshalJSON(o.SkillMap), string(o.CurrentPhase), marshalJSON(o.KeyDecisions),
			marshalJSON(o.ActivePriorities), marshalJSON(o.ProgressSnapshot),
			o.LastRewritten.Format(time.RFC3339), o.Version)
		if err != nil {
			return fmt.Errorf("failed to write orientation: %w", err)
		}
		return nil
	})
}
