package state

import (
	"database/sql"
	"fmt"

	"github.com/ShayCichocki/vigil/pkg/models"
)

const backlogColumns = "id, bug_id, job_id, story_id, severity, state, created_at"

// AddBacklogEntry inserts a bugfix backlog entry.
func (db *DB) AddBacklogEntry(e *models.BacklogEntry) error {
	_, err := db.Exec(`
		INSERT INTO backlog (`+backlogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.BugID, e.JobID, e.StoryID, string(e.Severity), string(e.State), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("add backlog entry: %w", err)
	}
	return nil
}

// GetBacklogEntry retrieves a backlog entry by ID. Returns nil if none
// exists.
func (db *DB) GetBacklogEntry(id string) (*models.BacklogEntry, error) {
	row := db.QueryRow("SELECT "+backlogColumns+" FROM backlog WHERE id = ?", id)

	e, err := scanBacklogEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backlog entry: %w", err)
	}
	return e, nil
}

// UpdateBacklogState atomically moves a backlog entry between states.
func (db *DB) UpdateBacklogState(id string, from, to models.BacklogState) error {
	res, err := db.Exec(`
		UPDATE backlog SET state = ? WHERE id = ? AND state = ?
	`, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("update backlog state: %w", err)
	}
	return requireRow(res, "update backlog state")
}

// ListBacklog lists backlog entries, optionally filtered by state,
// most severe first.
func (db *DB) ListBacklog(state *models.BacklogState) ([]models.BacklogEntry, error) {
	var rows *sql.Rows
	var err error

	order := `ORDER BY CASE severity
		WHEN 'critical' THEN 0 WHEN 'high' THEN 1
		WHEN 'medium' THEN 2 ELSE 3 END, created_at ASC`

	if state != nil {
		rows, err = db.Query(`SELECT `+backlogColumns+` FROM backlog WHERE state = ? `+order, string(*state))
	} else {
		rows, err = db.Query(`SELECT ` + backlogColumns + ` FROM backlog ` + order)
	}
	if err != nil {
		return nil, fmt.Errorf("list backlog: %w", err)
	}
	defer rows.Close()

	var entries []models.BacklogEntry
	for rows.Next() {
		e, err := scanBacklogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backlog entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// scanBacklogEntry scans a single backlog row.
func scanBacklogEntry(row rowScanner) (*models.BacklogEntry, error) {
	var e models.BacklogEntry
	var createdAt string

	err := row.Scan(&e.ID, &e.BugID, &e.JobID, &e.StoryID, &e.Severity, &e.State, &createdAt)
	if err != nil {
		return nil, err
	}

	e.CreatedAt, _ = parseTime(createdAt)
	return &e, nil
}
