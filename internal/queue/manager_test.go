package queue

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/vigil/internal/policy"
	"github.com/ShayCichocki/vigil/internal/state"
	"github.com/ShayCichocki/vigil/pkg/models"
)

func setupManager(t *testing.T, opts ...ManagerOption) (*Manager, *state.DB) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewManager(db, opts...), db
}

func TestEnqueueRejectsDuplicateStory(t *testing.T) {
	m, _ := setupManager(t)

	if _, err := m.Enqueue("story-1", models.PriorityNormal); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := m.Enqueue("story-1", models.PriorityCritical); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("second Enqueue error = %v, want ErrDuplicateJob", err)
	}
	if _, err := m.Enqueue("", models.PriorityNormal); err == nil {
		t.Error("Enqueue accepted empty story id")
	}
}

func TestEnqueueAllowsStoryAfterTerminalState(t *testing.T) {
	m, db := setupManager(t, WithMaxAttempts(1))

	job, err := m.Enqueue("story-1", models.PriorityNormal)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := db.AssignJob(job.ID, "s1"); err != nil {
		t.Fatalf("AssignJob failed: %v", err)
	}
	if err := db.StartJob(job.ID); err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	if err := m.MarkCompleted(job.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	if _, err := m.Enqueue("story-1", models.PriorityNormal); err != nil {
		t.Errorf("Enqueue after completion failed: %v", err)
	}
}

func TestDequeueNextOrdering(t *testing.T) {
	m, _ := setupManager(t)

	first, _ := m.Enqueue("story-normal", models.PriorityNormal)
	time.Sleep(2 * time.Millisecond)
	m.Enqueue("story-later", models.PriorityNormal)
	critical, _ := m.Enqueue("story-critical", models.PriorityCritical)

	job, err := m.DequeueNext("s1")
	if err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	if job.ID != critical.ID {
		t.Errorf("dequeued %s, want critical job %s", job.StoryID, critical.StoryID)
	}
	if job.Status != models.JobStatusAssigned || job.SessionID != "s1" {
		t.Errorf("job = %s/%s, want assigned to s1", job.Status, job.SessionID)
	}

	job, err = m.DequeueNext("s2")
	if err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	if job.ID != first.ID {
		t.Errorf("dequeued %s, want FIFO job %s", job.StoryID, first.StoryID)
	}
}

func TestDequeueNextEmpty(t *testing.T) {
	m, _ := setupManager(t)
	if _, err := m.DequeueNext("s1"); !errors.Is(err, ErrNoJobAvailable) {
		t.Errorf("DequeueNext error = %v, want ErrNoJobAvailable", err)
	}
}

func TestDequeueNextSingleAssignment(t *testing.T) {
	m, _ := setupManager(t)
	job, err := m.Enqueue("story-1", models.PriorityNormal)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	winners := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := m.DequeueNext(string(rune('a' + n)))
			if err == nil && got.ID == job.ID {
				winners <- got.SessionID
			}
		}(i)
	}
	wg.Wait()
	close(winners)

	count := 0
	for range winners {
		count++
	}
	if count != 1 {
		t.Errorf("job assigned to %d sessions, want exactly 1", count)
	}
}

func TestMarkFailedRequeuesWithAttemptsLeft(t *testing.T) {
	m, db := setupManager(t, WithMaxAttempts(3))

	job, _ := m.Enqueue("story-1", models.PriorityNormal)
	db.AssignJob(job.ID, "s1")
	db.StartJob(job.ID)

	if err := m.MarkFailed(job.ID, "functional layer failed"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	got, _ := db.GetJob(job.ID)
	if got.Status != models.JobStatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if got.Priority != models.PriorityRetry {
		t.Errorf("Priority = %d, want retry priority", got.Priority)
	}
	if got.FailureReason != "functional layer failed" {
		t.Errorf("FailureReason = %q", got.FailureReason)
	}
}

func TestMarkFailedExhaustedGoesTerminal(t *testing.T) {
	m, db := setupManager(t, WithMaxAttempts(1))

	job, _ := m.Enqueue("story-1", models.PriorityNormal)
	db.AssignJob(job.ID, "s1")
	db.StartJob(job.ID)

	if err := m.MarkFailed(job.ID, "timeout"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	got, _ := db.GetJob(job.ID)
	if got.Status != models.JobStatusTerminallyFailed {
		t.Errorf("Status = %q, want terminally_failed", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}

	ready := models.BacklogReady
	entries, err := db.ListBacklog(&ready)
	if err != nil {
		t.Fatalf("ListBacklog failed: %v", err)
	}
	if len(entries) != 1 || entries[0].JobID != job.ID {
		t.Errorf("backlog entries = %+v, want escalation for job", entries)
	}
}

func TestMarkFailedEscalationRespectsPolicy(t *testing.T) {
	m, db := setupManager(t, WithMaxAttempts(1), WithPolicy(policy.NewRuleEngine()))

	job, _ := m.Enqueue("story-1", models.PriorityNormal)
	db.AssignJob(job.ID, "s1")
	db.StartJob(job.ID)

	if err := m.MarkFailed(job.ID, "timeout"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	needsApproval := models.BacklogNeedsApproval
	entries, err := db.ListBacklog(&needsApproval)
	if err != nil {
		t.Fatalf("ListBacklog failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("needs_approval entries = %d, want 1", len(entries))
	}
}

func TestMarkRunningConflict(t *testing.T) {
	m, _ := setupManager(t)

	job, _ := m.Enqueue("story-1", models.PriorityNormal)

	// Job is pending, not assigned, so starting it is an illegal
	// transition.
	err := m.MarkRunning(job.ID)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("MarkRunning error = %v, want TransitionError", err)
	}
	if !errors.Is(err, state.ErrConflict) {
		t.Errorf("TransitionError does not wrap state.ErrConflict: %v", err)
	}
}

func TestRecoverOrphansExactlyOnce(t *testing.T) {
	m, db := setupManager(t)

	orphan, _ := m.Enqueue("story-orphan", models.PriorityNormal)
	db.AssignJob(orphan.ID, "dead-session")

	held, _ := m.Enqueue("story-held", models.PriorityNormal)
	db.AssignJob(held.ID, "live-session")
	db.CreateSession(&models.AgentSession{
		ID:            "live-session",
		JobID:         held.ID,
		Status:        models.SessionRunning,
		AssignedAt:    time.Now().UTC(),
		LastHeartbeat: time.Now().UTC(),
	})

	recovered, err := m.RecoverOrphans()
	if err != nil {
		t.Fatalf("RecoverOrphans failed: %v", err)
	}
	if recovered != 1 {
		t.Errorf("recovered = %d, want 1", recovered)
	}

	got, _ := db.GetJob(orphan.ID)
	if got.Status != models.JobStatusPending {
		t.Errorf("orphan Status = %q, want pending", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("orphan Attempts = %d, want 0 (recovery is not an attempt)", got.Attempts)
	}

	kept, _ := db.GetJob(held.ID)
	if kept.Status != models.JobStatusAssigned {
		t.Errorf("held Status = %q, want assigned (live session)", kept.Status)
	}

	recovered, err = m.RecoverOrphans()
	if err != nil {
		t.Fatalf("second RecoverOrphans failed: %v", err)
	}
	if recovered != 0 {
		t.Errorf("second sweep recovered = %d, want 0", recovered)
	}
}

func TestScheduleBacklog(t *testing.T) {
	m, db := setupManager(t)

	db.AddBacklogEntry(&models.BacklogEntry{
		ID: "entry-1", BugID: "bug-1", JobID: "old-job", StoryID: "story-1",
		Severity: models.SeverityCritical, State: models.BacklogReady,
		CreatedAt: time.Now().UTC(),
	})

	scheduled, err := m.ScheduleBacklog()
	if err != nil {
		t.Fatalf("ScheduleBacklog failed: %v", err)
	}
	if scheduled != 1 {
		t.Errorf("scheduled = %d, want 1", scheduled)
	}

	job, err := m.DequeueNext("s1")
	if err != nil {
		t.Fatalf("DequeueNext failed: %v", err)
	}
	if job.StoryID != "story-1" || job.Priority != models.PriorityCritical || job.BugID != "bug-1" {
		t.Errorf("job = %+v, want critical re-validation for bug-1", job)
	}

	entry, _ := db.GetBacklogEntry("entry-1")
	if entry.State != models.BacklogScheduled {
		t.Errorf("entry State = %q, want scheduled", entry.State)
	}
}

func TestScheduleBacklogSkipsActiveStory(t *testing.T) {
	m, db := setupManager(t)

	m.Enqueue("story-1", models.PriorityNormal)
	db.AddBacklogEntry(&models.BacklogEntry{
		ID: "entry-1", BugID: "bug-1", JobID: "old-job", StoryID: "story-1",
		Severity: models.SeverityCritical, State: models.BacklogReady,
		CreatedAt: time.Now().UTC(),
	})

	scheduled, err := m.ScheduleBacklog()
	if err != nil {
		t.Fatalf("ScheduleBacklog failed: %v", err)
	}
	if scheduled != 0 {
		t.Errorf("scheduled = %d, want 0 (story already queued)", scheduled)
	}

	entry, _ := db.GetBacklogEntry("entry-1")
	if entry.State != models.BacklogReady {
		t.Errorf("entry State = %q, want still ready", entry.State)
	}
}

func TestApproveBacklogEntry(t *testing.T) {
	m, db := setupManager(t)

	db.AddBacklogEntry(&models.BacklogEntry{
		ID: "entry-1", BugID: "bug-1", JobID: "old-job", StoryID: "story-1",
		Severity: models.SeverityHigh, State: models.BacklogNeedsApproval,
		CreatedAt: time.Now().UTC(),
	})

	if err := m.ApproveBacklogEntry("entry-1"); err != nil {
		t.Fatalf("ApproveBacklogEntry failed: %v", err)
	}
	entry, _ := db.GetBacklogEntry("entry-1")
	if entry.State != models.BacklogReady {
		t.Errorf("entry State = %q, want ready", entry.State)
	}

	err := m.ApproveBacklogEntry("entry-1")
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Errorf("second approval error = %v, want TransitionError", err)
	}
}

func TestSnapshot(t *testing.T) {
	m, db := setupManager(t)

	m.Enqueue("story-1", models.PriorityNormal)
	m.Enqueue("story-2", models.PriorityNormal)
	running, _ := m.Enqueue("story-3", models.PriorityNormal)
	db.AssignJob(running.ID, "s1")
	db.CreateSession(&models.AgentSession{
		ID: "s1", JobID: running.ID, Status: models.SessionRunning,
		AssignedAt: time.Now().UTC(), LastHeartbeat: time.Now().UTC(),
	})

	snap, err := m.Snapshot(5)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.PendingJobs != 2 {
		t.Errorf("PendingJobs = %d, want 2", snap.PendingJobs)
	}
	if snap.RunningJobs != 1 {
		t.Errorf("RunningJobs = %d, want 1", snap.RunningJobs)
	}
	if snap.ActiveSessions != 1 {
		t.Errorf("ActiveSessions = %d, want 1", snap.ActiveSessions)
	}
}

func TestWakeSignalledOnEnqueue(t *testing.T) {
	m, _ := setupManager(t)

	m.Enqueue("story-1", models.PriorityNormal)
	select {
	case <-m.Wake():
	default:
		t.Error("Wake channel empty after Enqueue")
	}
}
