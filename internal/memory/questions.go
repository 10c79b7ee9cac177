package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertQuestion persists a new question.
func (m *SQLiteMemoryDB) InsertQuestion(q *Question) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	_, err := m.db.Exec(`INSERT INTO questions (id, project_id, text, context, status, answer,
		blocks_tasks, asked_at, answered_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.ProjectID, q.Text, q.Context, string(q.Status), nullStringPtr(q.Answer),
		marshalJSON(q.BlocksTasks), q.AskedAt.Format(time.RFC3339), formatTimePtr(q.AnsweredAt))
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// UpdateQuestion overwrites a question row.
func (m *SQLiteMemoryDB) UpdateQuestion(q *Question) error {
	_, err := m.db.Exec(`UPDATE questions SET text=?, context=?, status=?, answer=?, blocks_tasks=?,
		answered_at=? WHERE id = ?`,
		q.Text, q.Context, string(q.Status), nullStringPtr(q.Answer), marshalJSON(q.BlocksTasks),
		formatTimePtr(q.AnsweredAt), q.ID)
	if err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	return nil
}

// GetQuestion fetches a single question by id.
func (m *SQLiteMemoryDB) GetQuestion(id string) (*Question, error) {
	row := m.db.QueryRow(`SELECT id, project_id, text, context, status, answer, blocks_tasks,
		asked_at, answered_at FROM questions WHERE id = ?`, id)
	return scanQuestion(row)
}

// ListOpenQuestions returns every open question for a project.
func (m *SQLiteMemoryDB) ListOpenQuestions(projectID string) ([]*Question, error) {
	rows, err := m.db.Query(`SELECT id, project_id, text, context, status, answer, blocks_tasks,
		asked_at, answered_at FROM questions WHERE project_id = ? AND status = 'open' ORDER BY asked_at ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open questions: %w", err)
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuestion(row taskRowScanner) (*Question, error) {
	var q Question
	var status, blocksTasks, askedAt string
	var answer, answeredAt sql.NullString
	err := row.Scan(&q.ID, &q.ProjectID, &q.Text, &q.Context, &status, &answer, &blocksTasks,
		&askedAt, &answeredAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}
	q.Status = QuestionStatus(status)
	q.Answer = stringPtrOrNil(answer)
	q.BlocksTasks = unmarshalStrings(blocksTasks)
	q.AskedAt, _ = time.Parse(time.RFC3339, askedAt)
	q.AnsweredAt = parseTimePtr(answeredAt)
	return &q, nil
}
