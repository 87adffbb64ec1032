package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/vigil/pkg/models"
)

// SaveReport persists a validation report. The full report is stored as
// JSON; the columns exist for point lookups and ordering.
func (db *DB) SaveReport(r *models.ValidationReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	passed := 0
	if r.Passed {
		passed = 1
	}

	_, err = db.Exec(`
		INSERT INTO reports (id, job_id, story_id, attempt, passed, body, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.JobID, r.StoryID, r.Attempt, passed, string(body), formatTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID. Returns nil if no report exists.
func (db *DB) GetReport(id string) (*models.ValidationReport, error) {
	row := db.QueryRow("SELECT body FROM reports WHERE id = ?", id)
	return scanReportBody(row)
}

// LastReportForStory returns the most recent report for a story, or nil
// if the story has never been validated. The bug detector uses this to
// recognize regressions.
func (db *DB) LastReportForStory(storyID string) (*models.ValidationReport, error) {
	row := db.QueryRow(`
		SELECT body FROM reports WHERE story_id = ?
		ORDER BY finished_at DESC LIMIT 1
	`, storyID)
	return scanReportBody(row)
}

// RecentReports returns the n most recent reports, newest first.
func (db *DB) RecentReports(n int) ([]models.ValidationReport, error) {
	rows, err := db.Query(`
		SELECT body FROM reports ORDER BY finished_at DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("recent reports: %w", err)
	}
	defer rows.Close()

	var reports []models.ValidationReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var r models.ValidationReport
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// scanReportBody scans a report's JSON body from a single-column row.
func scanReportBody(row *sql.Row) (*models.ValidationReport, error) {
	var body string
	err := row.Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	var r models.ValidationReport
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}
