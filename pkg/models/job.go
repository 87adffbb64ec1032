package models

import "time"

// JobStatus represents the current state of a validation job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting in the queue.
	JobStatusPending JobStatus = "pending"
	// JobStatusAssigned indicates the job has been handed to a session
	// but execution has not started.
	JobStatusAssigned JobStatus = "assigned"
	// JobStatusRunning indicates the job is being validated.
	JobStatusRunning JobStatus = "running"
	// JobStatusPassed indicates validation completed and all gates passed.
	JobStatusPassed JobStatus = "passed"
	// JobStatusTerminallyFailed indicates the job failed and has no
	// attempts remaining.
	JobStatusTerminallyFailed JobStatus = "terminally_failed"
)

// Valid returns true if the status is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusAssigned, JobStatusRunning, JobStatusPassed, JobStatusTerminallyFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusPassed || s == JobStatusTerminallyFailed
}

// Active returns true if the job still occupies the queue: it is either
// waiting or currently held by a session.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusAssigned || s == JobStatusRunning
}

// Job priorities. Higher values dequeue first; jobs with equal priority
// dequeue FIFO by submission time.
const (
	// PriorityNormal is the priority for first-time validations.
	PriorityNormal = 0
	// PriorityRetry is the priority for jobs re-admitted after a failure.
	PriorityRetry = 10
	// PriorityCritical is the priority for re-validations of critical bugs.
	PriorityCritical = 100
)

// ValidationJob identifies a story to validate and tracks its progress
// through the queue.
type ValidationJob struct {
	// ID is the unique identifier for this job.
	ID string `json:"id"`
	// StoryID is the story or feature this job validates.
	StoryID string `json:"story_id"`
	// Priority orders dequeue; see the Priority constants.
	Priority int `json:"priority"`
	// Status is the current state of the job.
	Status JobStatus `json:"status"`
	// Attempts is the number of validation attempts made so far.
	Attempts int `json:"attempts"`
	// MaxAttempts is the attempt limit before the job terminally fails.
	MaxAttempts int `json:"max_attempts"`
	// SessionID is the session currently holding this job, if any.
	SessionID string `json:"session_id,omitempty"`
	// BugID links a re-validation job to the bug that scheduled it.
	BugID string `json:"bug_id,omitempty"`
	// FailureReason records why the last attempt failed, if it did.
	FailureReason string `json:"failure_reason,omitempty"`
	// SubmittedAt is when the job entered the queue.
	SubmittedAt time.Time `json:"submitted_at"`
	// CompletedAt is when the job reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AttemptsExhausted returns true if the job has no attempts remaining.
func (j *ValidationJob) AttemptsExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}
