package models

import "time"

// BacklogState represents the scheduling state of a backlog entry.
type BacklogState string

const (
	// BacklogReady indicates the entry awaits remediation scheduling.
	BacklogReady BacklogState = "ready"
	// BacklogNeedsApproval indicates autonomous scheduling was denied by
	// the permission policy and a human must approve the entry.
	BacklogNeedsApproval BacklogState = "needs_approval"
	// BacklogScheduled indicates a re-validation job has been enqueued
	// for the entry.
	BacklogScheduled BacklogState = "scheduled"
)

// Valid returns true if the state is a known value.
func (s BacklogState) Valid() bool {
	switch s {
	case BacklogReady, BacklogNeedsApproval, BacklogScheduled:
		return true
	default:
		return false
	}
}

// BacklogEntry is one item in the bugfix-creation backlog: a failed job
// whose bug awaits prioritized re-validation scheduling.
type BacklogEntry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`
	// BugID is the bug that produced this entry.
	BugID string `json:"bug_id"`
	// JobID is the failed validation job.
	JobID string `json:"job_id"`
	// StoryID is the story awaiting remediation.
	StoryID string `json:"story_id"`
	// Severity mirrors the bug's severity for prioritization.
	Severity Severity `json:"severity"`
	// State is the scheduling state of the entry.
	State BacklogState `json:"state"`
	// CreatedAt is when the entry was added.
	CreatedAt time.Time `json:"created_at"`
}
