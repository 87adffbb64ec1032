package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/vigil/pkg/models"
)

const bugColumns = "id, signature, story_id, job_id, report_id, severity, summary, rationale, evidence, status, created_at, resolved_at"

// CreateBug inserts a new bug record. A unique index on open bug
// signatures rejects a second open bug with the same signature; that
// case returns ErrConflict so the detector can fall back to attaching
// evidence to the existing bug.
func (db *DB) CreateBug(b *models.Bug) error {
	evidence, _ := json.Marshal(b.Evidence)

	_, err := db.Exec(`
		INSERT INTO bugs (`+bugColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Signature, b.StoryID, b.JobID, b.ReportID, string(b.Severity),
		b.Summary, b.Rationale, string(evidence), string(b.Status),
		formatTime(b.CreatedAt), nil)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrConflict
		}
		return fmt.Errorf("create bug: %w", err)
	}
	return nil
}

// GetBug retrieves a bug by ID. Returns nil if no bug exists.
func (db *DB) GetBug(id string) (*models.Bug, error) {
	row := db.QueryRow("SELECT "+bugColumns+" FROM bugs WHERE id = ?", id)

	b, err := scanBug(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bug: %w", err)
	}
	return b, nil
}

// OpenBugBySignature returns the open bug with the given signature, or
// nil if none exists.
func (db *DB) OpenBugBySignature(signature string) (*models.Bug, error) {
	row := db.QueryRow(`
		SELECT `+bugColumns+` FROM bugs
		WHERE signature = ? AND status = 'open'
		LIMIT 1
	`, signature)

	b, err := scanBug(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open bug by signature: %w", err)
	}
	return b, nil
}

// AppendBugEvidence attaches additional reproduction evidence to an
// existing bug. The read and write happen in one transaction so
// concurrent attachers cannot lose entries.
func (db *DB) AppendBugEvidence(id string, evidence []string) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var raw sql.NullString
		row := tx.QueryRow("SELECT evidence FROM bugs WHERE id = ?", id)
		if err := row.Scan(&raw); err != nil {
			return fmt.Errorf("read bug evidence: %w", err)
		}

		var existing []string
		if raw.Valid && raw.String != "" {
			json.Unmarshal([]byte(raw.String), &existing)
		}
		existing = append(existing, evidence...)

		updated, _ := json.Marshal(existing)
		if _, err := tx.Exec("UPDATE bugs SET evidence = ? WHERE id = ?", string(updated), id); err != nil {
			return fmt.Errorf("write bug evidence: %w", err)
		}
		return nil
	})
}

// ArchiveBug marks a bug resolved. Bugs are archived, never deleted.
func (db *DB) ArchiveBug(id string, at time.Time) error {
	res, err := db.Exec(`
		UPDATE bugs SET status = 'archived', resolved_at = ?
		WHERE id = ? AND status = 'open'
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("archive bug: %w", err)
	}
	return requireRow(res, "archive bug")
}

// ListBugs lists all bugs, optionally filtered by status.
func (db *DB) ListBugs(status *models.BugStatus) ([]models.Bug, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT `+bugColumns+` FROM bugs WHERE status = ?
			ORDER BY created_at DESC
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT ` + bugColumns + ` FROM bugs ORDER BY created_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	defer rows.Close()

	var bugs []models.Bug
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bug: %w", err)
		}
		bugs = append(bugs, *b)
	}
	return bugs, nil
}

// scanBug scans a single bug row.
func scanBug(row rowScanner) (*models.Bug, error) {
	var b models.Bug
	var rationale, evidence sql.NullString
	var createdAt string
	var resolvedAt sql.NullString

	err := row.Scan(&b.ID, &b.Signature, &b.StoryID, &b.JobID, &b.ReportID,
		&b.Severity, &b.Summary, &rationale, &evidence, &b.Status, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if rationale.Valid {
		b.Rationale = rationale.String
	}
	if evidence.Valid && evidence.String != "" {
		json.Unmarshal([]byte(evidence.String), &b.Evidence)
	}
	b.CreatedAt, _ = parseTime(createdAt)
	b.ResolvedAt = parseNullableTime(resolvedAt)
	return &b, nil
}
