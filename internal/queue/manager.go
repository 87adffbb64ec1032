// Package queue owns the job queue: admission, atomic state
// transitions, crash recovery, and backlog scheduling.
package queue

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/vigil/internal/policy"
	"github.com/ShayCichocki/vigil/internal/state"
	"github.com/ShayCichocki/vigil/pkg/models"
)

// Store is the persistence surface the queue manager needs.
type Store interface {
	state.JobStore
	state.SessionStore
	state.BacklogStore
	state.ReportStore
}

// Manager mediates every queue mutation. All job transitions go
// through the store's atomic compare-and-set operations, so Manager
// methods are safe to call from concurrent scheduler workers.
type Manager struct {
	store       Store
	policy      policy.Engine
	maxAttempts int
	wake        chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxAttempts sets the attempt limit applied to new jobs.
func WithMaxAttempts(n int) ManagerOption {
	return func(m *Manager) {
		m.maxAttempts = n
	}
}

// WithPolicy sets the permission engine consulted before terminal
// failures auto-escalate to the backlog.
func WithPolicy(e policy.Engine) ManagerOption {
	return func(m *Manager) {
		m.policy = e
	}
}

// NewManager creates a queue manager over the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		policy:      policy.AllowAll{},
		maxAttempts: 3,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wake returns a channel that receives a signal whenever new work may
// be available. The scheduler blocks on it instead of polling.
func (m *Manager) Wake() <-chan struct{} {
	return m.wake
}

func (m *Manager) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Enqueue admits a new validation job for a story. A story can hold at
// most one active job; a second admission returns ErrDuplicateJob.
func (m *Manager) Enqueue(storyID string, priority int) (*models.ValidationJob, error) {
	return m.enqueue(storyID, priority, "")
}

func (m *Manager) enqueue(storyID string, priority int, bugID string) (*models.ValidationJob, error) {
	if storyID == "" {
		return nil, fmt.Errorf("queue: story id is required")
	}

	active, err := m.store.ActiveJobForStory(storyID)
	if err != nil {
		return nil, fmt.Errorf("check active job: %w", err)
	}
	if active != nil {
		return nil, ErrDuplicateJob
	}

	job := &models.ValidationJob{
		ID:          uuid.New().String(),
		StoryID:     storyID,
		Priority:    priority,
		Status:      models.JobStatusPending,
		MaxAttempts: m.maxAttempts,
		BugID:       bugID,
		SubmittedAt: time.Now().UTC(),
	}
	if err := m.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	m.kick()
	return job, nil
}

// DequeueNext assigns the highest-priority pending job to the given
// session. Jobs with equal priority dequeue FIFO. Returns
// ErrNoJobAvailable when the queue is empty. Safe under concurrent
// dequeuers: the assignment is a compare-and-set, and losing a race
// simply moves on to the next candidate.
func (m *Manager) DequeueNext(sessionID string) (*models.ValidationJob, error) {
	for {
		job, err := m.store.NextPendingJob()
		if err != nil {
			return nil, fmt.Errorf("next pending job: %w", err)
		}
		if job == nil {
			return nil, ErrNoJobAvailable
		}

		err = m.store.AssignJob(job.ID, sessionID)
		if errors.Is(err, state.ErrConflict) {
			// Another worker took it. Try the next candidate.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("assign job %s: %w", job.ID, err)
		}

		job.Status = models.JobStatusAssigned
		job.SessionID = sessionID
		return job, nil
	}
}

// MarkRunning transitions an assigned job to running.
func (m *Manager) MarkRunning(jobID string) error {
	if err := m.store.StartJob(jobID); err != nil {
		return m.transitionErr(jobID, "mark running", err)
	}
	return nil
}

// MarkCompleted transitions a running job to passed. This consumes the
// attempt.
func (m *Manager) MarkCompleted(jobID string) error {
	if err := m.store.CompleteJob(jobID, time.Now().UTC()); err != nil {
		return m.transitionErr(jobID, "mark completed", err)
	}
	m.kick()
	return nil
}

// MarkFailed records a failed attempt. The job returns to pending at
// elevated priority while attempts remain; otherwise it terminally
// fails and, policy permitting, escalates to the backlog for triage.
func (m *Manager) MarkFailed(jobID, reason string) error {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("get job %s: %w", jobID, err)
	}
	if job == nil {
		return &TransitionError{JobID: jobID, Op: "mark failed", Err: errors.New("job not found")}
	}

	if job.Attempts+1 >= job.MaxAttempts {
		if err := m.store.FailJobTerminal(jobID, reason, time.Now().UTC()); err != nil {
			return m.transitionErr(jobID, "mark terminally failed", err)
		}
		if err := m.escalateTerminalFailure(job, reason); err != nil {
			log.Printf("queue: escalate terminal failure for job %s: %v", jobID, err)
		}
	} else {
		if err := m.store.RequeueJob(jobID, reason, models.PriorityRetry); err != nil {
			return m.transitionErr(jobID, "requeue", err)
		}
	}

	m.kick()
	return nil
}

// escalateTerminalFailure parks a terminally failed job in the backlog
// so it surfaces distinctly from retryable failures.
func (m *Manager) escalateTerminalFailure(job *models.ValidationJob, reason string) error {
	entryState := models.BacklogReady
	if !m.policy.IsAutonomousActionAllowed(policy.ActionEscalateTerminalFailure) {
		entryState = models.BacklogNeedsApproval
	}

	entry := &models.BacklogEntry{
		ID:        uuid.New().String(),
		BugID:     job.BugID,
		JobID:     job.ID,
		StoryID:   job.StoryID,
		Severity:  models.SeverityHigh,
		State:     entryState,
		CreatedAt: time.Now().UTC(),
	}
	return m.store.AddBacklogEntry(entry)
}

// RecoverOrphans returns jobs stuck in assigned or running with no
// live session to pending. Called once at startup before the scheduler
// begins dequeuing. The reset is a compare-and-set, so concurrent
// recovery attempts move each job back exactly once.
func (m *Manager) RecoverOrphans() (int, error) {
	recovered := 0
	for _, status := range []models.JobStatus{models.JobStatusAssigned, models.JobStatusRunning} {
		status := status
		jobs, err := m.store.ListJobs(&status)
		if err != nil {
			return recovered, fmt.Errorf("list %s jobs: %w", status, err)
		}
		for _, job := range jobs {
			session, err := m.store.LiveSessionForJob(job.ID)
			if err != nil {
				return recovered, fmt.Errorf("look up session for job %s: %w", job.ID, err)
			}
			if session != nil {
				continue
			}

			err = m.store.ResetOrphanJob(job.ID)
			if errors.Is(err, state.ErrConflict) {
				continue
			}
			if err != nil {
				return recovered, fmt.Errorf("reset orphan job %s: %w", job.ID, err)
			}
			log.Printf("queue: recovered orphan job %s (was %s)", job.ID, job.Status)
			recovered++
		}
	}

	if recovered > 0 {
		m.kick()
	}
	return recovered, nil
}

// ScheduleBacklog enqueues a critical-priority re-validation job for
// every ready backlog entry whose story is not already queued. Entries
// move to scheduled once their job is admitted.
func (m *Manager) ScheduleBacklog() (int, error) {
	ready := models.BacklogReady
	entries, err := m.store.ListBacklog(&ready)
	if err != nil {
		return 0, fmt.Errorf("list ready backlog: %w", err)
	}

	scheduled := 0
	for _, entry := range entries {
		job, err := m.enqueue(entry.StoryID, models.PriorityCritical, entry.BugID)
		if errors.Is(err, ErrDuplicateJob) {
			// The story is already queued; the entry stays ready and is
			// picked up on a later sweep.
			continue
		}
		if err != nil {
			return scheduled, fmt.Errorf("schedule backlog entry %s: %w", entry.ID, err)
		}

		if err := m.store.UpdateBacklogState(entry.ID, models.BacklogReady, models.BacklogScheduled); err != nil {
			if errors.Is(err, state.ErrConflict) {
				continue
			}
			return scheduled, fmt.Errorf("mark backlog entry %s scheduled: %w", entry.ID, err)
		}
		log.Printf("queue: scheduled re-validation job %s for bug %s", job.ID, entry.BugID)
		scheduled++
	}
	return scheduled, nil
}

// ApproveBacklogEntry releases a manually approved entry for
// scheduling.
func (m *Manager) ApproveBacklogEntry(id string) error {
	err := m.store.UpdateBacklogState(id, models.BacklogNeedsApproval, models.BacklogReady)
	if errors.Is(err, state.ErrConflict) {
		return &TransitionError{JobID: id, Op: "approve backlog entry", Err: err}
	}
	if err != nil {
		return fmt.Errorf("approve backlog entry %s: %w", id, err)
	}
	m.kick()
	return nil
}

// Snapshot is the reporting surface exposed to status tooling.
type Snapshot struct {
	// PendingJobs is the current queue depth.
	PendingJobs int `json:"pending_jobs"`
	// RunningJobs is the number of jobs in assigned or running state.
	RunningJobs int `json:"running_jobs"`
	// TerminallyFailed is the number of jobs that exhausted retries.
	TerminallyFailed int `json:"terminally_failed"`
	// ActiveSessions is the number of live agent sessions.
	ActiveSessions int `json:"active_sessions"`
	// BacklogReady is the number of backlog entries awaiting scheduling.
	BacklogReady int `json:"backlog_ready"`
	// BacklogNeedsApproval is the number of entries awaiting a human.
	BacklogNeedsApproval int `json:"backlog_needs_approval"`
	// RecentReports holds the most recent validation reports.
	RecentReports []models.ValidationReport `json:"recent_reports,omitempty"`
}

// Snapshot reports current queue depth, active session count, backlog
// totals, and the n most recent reports.
func (m *Manager) Snapshot(recentReports int) (*Snapshot, error) {
	snap := &Snapshot{}

	var err error
	if snap.PendingJobs, err = m.store.CountJobs(models.JobStatusPending); err != nil {
		return nil, fmt.Errorf("count pending jobs: %w", err)
	}
	if snap.RunningJobs, err = m.store.CountJobs(models.JobStatusAssigned, models.JobStatusRunning); err != nil {
		return nil, fmt.Errorf("count running jobs: %w", err)
	}
	if snap.TerminallyFailed, err = m.store.CountJobs(models.JobStatusTerminallyFailed); err != nil {
		return nil, fmt.Errorf("count terminally failed jobs: %w", err)
	}

	live, err := m.store.ListLiveSessions()
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	snap.ActiveSessions = len(live)

	ready := models.BacklogReady
	readyEntries, err := m.store.ListBacklog(&ready)
	if err != nil {
		return nil, fmt.Errorf("list ready backlog: %w", err)
	}
	snap.BacklogReady = len(readyEntries)

	needsApproval := models.BacklogNeedsApproval
	approvalEntries, err := m.store.ListBacklog(&needsApproval)
	if err != nil {
		return nil, fmt.Errorf("list approval backlog: %w", err)
	}
	snap.BacklogNeedsApproval = len(approvalEntries)

	if recentReports > 0 {
		snap.RecentReports, err = m.store.RecentReports(recentReports)
		if err != nil {
			return nil, fmt.Errorf("recent reports: %w", err)
		}
	}
	return snap, nil
}

func (m *Manager) transitionErr(jobID, op string, err error) error {
	if errors.Is(err, state.ErrConflict) {
		return &TransitionError{JobID: jobID, Op: op, Err: err}
	}
	return fmt.Errorf("%s for job %s: %w", op, jobID, err)
}
