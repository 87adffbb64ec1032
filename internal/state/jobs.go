package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/vigil/pkg/models"
)

const jobColumns = "id, story_id, priority, status, attempts, max_attempts, session_id, bug_id, failure_reason, submitted_at, completed_at"

// CreateJob inserts a new validation job.
func (db *DB) CreateJob(j *models.ValidationJob) error {
	_, err := db.Exec(`
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.StoryID, j.Priority, string(j.Status), j.Attempts, j.MaxAttempts,
		j.SessionID, j.BugID, j.FailureReason, formatTime(j.SubmittedAt), nil)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns nil if no job exists.
func (db *DB) GetJob(id string) (*models.ValidationJob, error) {
	row := db.QueryRow("SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ActiveJobForStory returns the pending/assigned/running job targeting
// the given story, or nil if none exists.
func (db *DB) ActiveJobForStory(storyID string) (*models.ValidationJob, error) {
	row := db.QueryRow(`
		SELECT `+jobColumns+` FROM jobs
		WHERE story_id = ? AND status IN ('pending', 'assigned', 'running')
		LIMIT 1
	`, storyID)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job for story: %w", err)
	}
	return j, nil
}

// NextPendingJob returns the pending job that should dequeue next:
// highest priority first, then FIFO by submission time. Returns nil if
// no pending jobs exist.
func (db *DB) NextPendingJob() (*models.ValidationJob, error) {
	row := db.QueryRow(`
		SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'pending'
		ORDER BY priority DESC, submitted_at ASC, id ASC
		LIMIT 1
	`)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return j, nil
}

// ListJobs lists all jobs, optionally filtered by status.
func (db *DB) ListJobs(status *models.JobStatus) ([]models.ValidationJob, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT `+jobColumns+` FROM jobs WHERE status = ?
			ORDER BY priority DESC, submitted_at ASC
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT ` + jobColumns + ` FROM jobs
			ORDER BY priority DESC, submitted_at ASC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ValidationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs in the given statuses.
func (db *DB) CountJobs(statuses ...models.JobStatus) (int, error) {
	count := 0
	for _, s := range statuses {
		var n int
		row := db.QueryRow("SELECT COUNT(*) FROM jobs WHERE status = ?", string(s))
		if err := row.Scan(&n); err != nil {
			return 0, fmt.Errorf("count jobs: %w", err)
		}
		count += n
	}
	return count, nil
}

// AssignJob atomically transitions a job from pending to assigned and
// records the owning session. Returns ErrConflict if the job is not
// pending, which guarantees a job is never assigned to two sessions.
func (db *DB) AssignJob(jobID, sessionID string) error {
	res, err := db.Exec(`
		UPDATE jobs SET status = 'assigned', session_id = ?
		WHERE id = ? AND status = 'pending'
	`, sessionID, jobID)
	if err != nil {
		return fmt.Errorf("assign job: %w", err)
	}
	return requireRow(res, "assign job")
}

// StartJob atomically transitions a job from assigned to running.
func (db *DB) StartJob(jobID string) error {
	res, err := db.Exec(`
		UPDATE jobs SET status = 'running'
		WHERE id = ? AND status = 'assigned'
	`, jobID)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	return requireRow(res, "start job")
}

// CompleteJob atomically transitions a running job to passed.
func (db *DB) CompleteJob(jobID string, at time.Time) error {
	res, err := db.Exec(`
		UPDATE jobs SET status = 'passed', attempts = attempts + 1,
			completed_at = ?, failure_reason = ''
		WHERE id = ? AND status = 'running'
	`, formatTime(at), jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireRow(res, "complete job")
}

// RequeueJob atomically returns a running job to pending after a failed
// attempt: the attempt count increments, the priority is elevated, and
// the session is released.
func (db *DB) RequeueJob(jobID, reason string, priority int) error {
	res, err := db.Exec(`
		UPDATE jobs SET status = 'pending', attempts = attempts + 1,
			priority = MAX(priority, ?), session_id = '', failure_reason = ?
		WHERE id = ? AND status = 'running'
	`, priority, reason, jobID)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return requireRow(res, "requeue job")
}

// FailJobTerminal atomically transitions a running job to
// terminally_failed after its final attempt.
func (db *DB) FailJobTerminal(jobID, reason string, at time.Time) error {
	res, err := db.Exec(`
		UPDATE jobs SET status = 'terminally_failed', attempts = attempts + 1,
			completed_at = ?, failure_reason = ?
		WHERE id = ? AND status = 'running'
	`, formatTime(at), reason, jobID)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireRow(res, "fail job")
}

// ResetOrphanJob returns an assigned or running job to pending without
// touching its attempt count. Used by the crash-recovery sweep for jobs
// whose session died with the process.
func (db *DB) ResetOrphanJob(jobID string) error {
	res, err := db.Exec(`
		UPDATE jobs SET status = 'pending', session_id = ''
		WHERE id = ? AND status IN ('assigned', 'running')
	`, jobID)
	if err != nil {
		return fmt.Errorf("reset orphan job: %w", err)
	}
	return requireRow(res, "reset orphan job")
}

// requireRow converts a zero-row update into ErrConflict.
func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob scans a single job row.
func scanJob(row rowScanner) (*models.ValidationJob, error) {
	var j models.ValidationJob
	var sessionID, bugID, failureReason sql.NullString
	var submittedAt string
	var completedAt sql.NullString

	err := row.Scan(&j.ID, &j.StoryID, &j.Priority, &j.Status, &j.Attempts, &j.MaxAttempts,
		&sessionID, &bugID, &failureReason, &submittedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if sessionID.Valid {
		j.SessionID = sessionID.String
	}
	if bugID.Valid {
		j.BugID = bugID.String
	}
	if failureReason.Valid {
		j.FailureReason = failureReason.String
	}
	j.SubmittedAt, _ = parseTime(submittedAt)
	j.CompletedAt = parseNullableTime(completedAt)
	return &j, nil
}
