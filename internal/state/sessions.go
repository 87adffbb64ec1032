package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/vigil/pkg/models"
)

const sessionColumns = "id, job_id, status, resource_ref, assigned_at, last_heartbeat, ended_at"

// CreateSession inserts a new agent session.
func (db *DB) CreateSession(s *models.AgentSession) error {
	_, err := db.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.JobID, string(s.Status), s.ResourceRef,
		formatTime(s.AssignedAt), formatTime(s.LastHeartbeat), nil)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil if no session exists.
func (db *DB) GetSession(id string) (*models.AgentSession, error) {
	row := db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// UpdateSessionStatus sets a session's status, recording the end time
// for terminal statuses.
func (db *DB) UpdateSessionStatus(id string, status models.SessionStatus, at time.Time) error {
	var endedAt *string
	if !status.Live() {
		s := formatTime(at)
		endedAt = &s
	}

	_, err := db.Exec(`
		UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?
	`, string(status), endedAt, id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// TouchSessionHeartbeat records a heartbeat time for a session.
func (db *DB) TouchSessionHeartbeat(id string, at time.Time) error {
	_, err := db.Exec(`
		UPDATE sessions SET last_heartbeat = ? WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touch session heartbeat: %w", err)
	}
	return nil
}

// ListSessions lists all sessions, optionally filtered by status.
func (db *DB) ListSessions(status *models.SessionStatus) ([]models.AgentSession, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT `+sessionColumns+` FROM sessions WHERE status = ?
			ORDER BY assigned_at DESC
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT ` + sessionColumns + ` FROM sessions ORDER BY assigned_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.AgentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// ListLiveSessions lists sessions in idle or running state.
func (db *DB) ListLiveSessions() ([]models.AgentSession, error) {
	rows, err := db.Query(`
		SELECT ` + sessionColumns + ` FROM sessions
		WHERE status IN ('idle', 'running')
		ORDER BY assigned_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.AgentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// LiveSessionForJob returns the idle/running session holding the given
// job, or nil if none exists.
func (db *DB) LiveSessionForJob(jobID string) (*models.AgentSession, error) {
	row := db.QueryRow(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE job_id = ? AND status IN ('idle', 'running')
		LIMIT 1
	`, jobID)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("live session for job: %w", err)
	}
	return s, nil
}

// scanSession scans a single session row.
func scanSession(row rowScanner) (*models.AgentSession, error) {
	var s models.AgentSession
	var resourceRef sql.NullString
	var assignedAt, lastHeartbeat string
	var endedAt sql.NullString

	err := row.Scan(&s.ID, &s.JobID, &s.Status, &resourceRef, &assignedAt, &lastHeartbeat, &endedAt)
	if err != nil {
		return nil, err
	}

	if resourceRef.Valid {
		s.ResourceRef = resourceRef.String
	}
	s.AssignedAt, _ = parseTime(assignedAt)
	s.LastHeartbeat, _ = parseTime(lastHeartbeat)
	s.EndedAt = parseNullableTime(endedAt)
	return &s, nil
}
