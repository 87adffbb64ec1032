package models

import "time"

// SessionStatus represents the state of an agent session.
type SessionStatus string

const (
	// SessionIdle indicates the session exists but has not started its job.
	SessionIdle SessionStatus = "idle"
	// SessionRunning indicates the session is executing its job.
	SessionRunning SessionStatus = "running"
	// SessionCompleted indicates the session finished its job.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed indicates the session's job failed.
	SessionFailed SessionStatus = "failed"
	// SessionTimedOut indicates the session was terminated for missing
	// its heartbeat deadline.
	SessionTimedOut SessionStatus = "timed_out"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionIdle, SessionRunning, SessionCompleted, SessionFailed, SessionTimedOut:
		return true
	default:
		return false
	}
}

// Live returns true if the session is still executing.
func (s SessionStatus) Live() bool {
	return s == SessionIdle || s == SessionRunning
}

// AgentSession is one worker's execution context for exactly one job.
type AgentSession struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// JobID is the job this session is executing.
	JobID string `json:"job_id"`
	// Status is the current state of the session.
	Status SessionStatus `json:"status"`
	// ResourceRef identifies this session's resource usage snapshot in
	// the health monitor. The snapshot itself is owned by the monitor.
	ResourceRef string `json:"resource_ref,omitempty"`
	// AssignedAt is when the session received its job.
	AssignedAt time.Time `json:"assigned_at"`
	// LastHeartbeat is the most recent heartbeat reported by the worker.
	LastHeartbeat time.Time `json:"last_heartbeat"`
	// EndedAt is when the session terminated, if it has.
	EndedAt *time.Time `json:"ended_at,omitempty"`
}
