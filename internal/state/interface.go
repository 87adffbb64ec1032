// Package state provides SQLite-based persistence for Vigil.
package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/vigil/pkg/models"
)

// JobStore handles validation job persistence and atomic transitions.
type JobStore interface {
	CreateJob(j *models.ValidationJob) error
	GetJob(id string) (*models.ValidationJob, error)
	ActiveJobForStory(storyID string) (*models.ValidationJob, error)
	NextPendingJob() (*models.ValidationJob, error)
	ListJobs(status *models.JobStatus) ([]models.ValidationJob, error)
	CountJobs(statuses ...models.JobStatus) (int, error)
	AssignJob(jobID, sessionID string) error
	StartJob(jobID string) error
	CompleteJob(jobID string, at time.Time) error
	RequeueJob(jobID, reason string, priority int) error
	FailJobTerminal(jobID, reason string, at time.Time) error
	ResetOrphanJob(jobID string) error
}

// SessionStore handles agent session persistence.
type SessionStore interface {
	CreateSession(s *models.AgentSession) error
	GetSession(id string) (*models.AgentSession, error)
	UpdateSessionStatus(id string, status models.SessionStatus, at time.Time) error
	TouchSessionHeartbeat(id string, at time.Time) error
	ListSessions(status *models.SessionStatus) ([]models.AgentSession, error)
	ListLiveSessions() ([]models.AgentSession, error)
	LiveSessionForJob(jobID string) (*models.AgentSession, error)
}

// BugStore handles the bug history: creation, signature lookups,
// evidence attachment, and archival.
type BugStore interface {
	CreateBug(b *models.Bug) error
	GetBug(id string) (*models.Bug, error)
	OpenBugBySignature(signature string) (*models.Bug, error)
	AppendBugEvidence(id string, evidence []string) error
	ArchiveBug(id string, at time.Time) error
	ListBugs(status *models.BugStatus) ([]models.Bug, error)
}

// ReportStore handles the validation report archive.
type ReportStore interface {
	SaveReport(r *models.ValidationReport) error
	GetReport(id string) (*models.ValidationReport, error)
	LastReportForStory(storyID string) (*models.ValidationReport, error)
	RecentReports(n int) ([]models.ValidationReport, error)
}

// BacklogStore handles the bugfix-creation backlog partition.
type BacklogStore interface {
	AddBacklogEntry(e *models.BacklogEntry) error
	GetBacklogEntry(id string) (*models.BacklogEntry, error)
	UpdateBacklogState(id string, from, to models.BacklogState) error
	ListBacklog(state *models.BacklogState) ([]models.BacklogEntry, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the full persistence surface consumed by the queue
// manager, scheduler, and bug detector. It composes focused
// sub-interfaces so components can depend on only what they use.
type Store interface {
	io.Closer
	Migrator
	JobStore
	SessionStore
	BugStore
	ReportStore
	BacklogStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ JobStore     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ BugStore     = (*DB)(nil)
	_ ReportStore  = (*DB)(nil)
	_ BacklogStore = (*DB)(nil)
)
