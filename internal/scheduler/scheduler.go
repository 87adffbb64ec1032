// Package scheduler runs the bounded-concurrency control loop that
// drives validation sessions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/vigil/internal/health"
	"github.com/ShayCichocki/vigil/internal/pipeline"
	"github.com/ShayCichocki/vigil/internal/queue"
	"github.com/ShayCichocki/vigil/internal/state"
	"github.com/ShayCichocki/vigil/pkg/models"
)

// PipelineRunner executes the validation pipeline for one job.
type PipelineRunner interface {
	Run(ctx context.Context, jc pipeline.JobContext) (*models.ValidationReport, error)
}

// ReportProcessor turns a finished report into bug records.
type ReportProcessor interface {
	Process(report *models.ValidationReport) ([]models.Bug, error)
}

// sessionHandle tracks one in-flight session so the watchdog can
// terminate it.
type sessionHandle struct {
	jobID    string
	cancel   context.CancelFunc
	timedOut atomic.Bool
	shutdown atomic.Bool
}

// Scheduler admits jobs from the queue into a fixed-size pool of
// concurrent validation sessions. Refill is greedy: every completion
// immediately triggers another admission attempt, and the loop blocks
// on the queue's wake channel rather than polling for work.
type Scheduler struct {
	queue    *queue.Manager
	store    state.SessionStore
	reports  state.ReportStore
	pipeline PipelineRunner
	detector ReportProcessor
	monitor  health.Monitor
	signals  *SignalManager

	maxConcurrent    int
	sessionTimeout   time.Duration
	watchdogInterval time.Duration
	workDir          string

	mu       sync.Mutex
	inFlight int
	handles  map[string]*sessionHandle
	wg       sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrent sets the worker budget.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithSessionTimeout sets the heartbeat deadline after which a session
// is forcibly terminated.
func WithSessionTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.sessionTimeout = d
	}
}

// WithWatchdogInterval sets how often stalled sessions are checked.
func WithWatchdogInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.watchdogInterval = d
	}
}

// WithWorkDir sets the checkout directory layer executors run against.
func WithWorkDir(dir string) Option {
	return func(s *Scheduler) {
		s.workDir = dir
	}
}

// WithSignals attaches an operator signal manager for pause and stop
// control files.
func WithSignals(sm *SignalManager) Option {
	return func(s *Scheduler) {
		s.signals = sm
	}
}

// New creates a scheduler. The monitor decides stalls; the scheduler
// only enforces them.
func New(q *queue.Manager, sessions state.SessionStore, reports state.ReportStore, pl PipelineRunner, detector ReportProcessor, monitor health.Monitor, opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:            q,
		store:            sessions,
		reports:          reports,
		pipeline:         pl,
		detector:         detector,
		monitor:          monitor,
		maxConcurrent:    3,
		sessionTimeout:   10 * time.Minute,
		watchdogInterval: 15 * time.Second,
		handles:          make(map[string]*sessionHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the control loop until the context is cancelled or a
// stop signal arrives. On cancellation, in-flight sessions are
// terminated and their jobs left for the crash-recovery sweep; on a
// stop signal, admission stops and running sessions drain.
func (s *Scheduler) Run(ctx context.Context) error {
	recovered, err := s.queue.RecoverOrphans()
	if err != nil {
		return fmt.Errorf("recover orphans: %w", err)
	}
	if recovered > 0 {
		log.Printf("scheduler: recovered %d orphaned jobs", recovered)
	}
	if _, err := s.queue.ScheduleBacklog(); err != nil {
		log.Printf("scheduler: backlog sweep: %v", err)
	}

	ticker := time.NewTicker(s.watchdogInterval)
	defer ticker.Stop()

	s.fill(ctx)
	for {
		select {
		case <-ctx.Done():
			s.abortSessions()
			s.wg.Wait()
			return ctx.Err()
		case <-s.queue.Wake():
		case <-ticker.C:
			s.terminateStalled()
			if _, err := s.queue.ScheduleBacklog(); err != nil {
				log.Printf("scheduler: backlog sweep: %v", err)
			}
		}

		if s.signals != nil && s.signals.ShouldStop() {
			log.Printf("scheduler: stop signal received, draining")
			s.wg.Wait()
			return nil
		}
		s.fill(ctx)
	}
}

// fill admits pending jobs until the pool is full or the queue empty.
// Only the control loop calls it, so admissions are serialized.
func (s *Scheduler) fill(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.signals != nil && s.signals.ShouldPause() {
		return
	}

	for {
		s.mu.Lock()
		capacity := s.inFlight < s.maxConcurrent
		s.mu.Unlock()
		if !capacity {
			return
		}

		sessionID := uuid.New().String()[:8]
		job, err := s.queue.DequeueNext(sessionID)
		if errors.Is(err, queue.ErrNoJobAvailable) {
			return
		}
		if err != nil {
			log.Printf("scheduler: dequeue: %v", err)
			return
		}

		now := time.Now().UTC()
		sess := &models.AgentSession{
			ID:            sessionID,
			JobID:         job.ID,
			Status:        models.SessionIdle,
			AssignedAt:    now,
			LastHeartbeat: now,
		}
		if err := s.store.CreateSession(sess); err != nil {
			// The assigned job is reclaimed by the crash-recovery sweep.
			log.Printf("scheduler: create session %s: %v", sessionID, err)
			return
		}

		sctx, cancel := context.WithCancel(ctx)
		h := &sessionHandle{jobID: job.ID, cancel: cancel}

		s.mu.Lock()
		s.inFlight++
		s.handles[sessionID] = h
		s.mu.Unlock()

		s.monitor.ReportHeartbeat(sessionID, health.ResourceSnapshot{})
		log.Printf("scheduler: session %s picked up job %s (story %s, attempt %d)",
			sessionID, job.ID, job.StoryID, job.Attempts+1)

		s.wg.Add(1)
		go s.runSession(sctx, h, job, sessionID)
	}
}

// runSession drives one job through the pipeline and records the
// outcome.
func (s *Scheduler) runSession(ctx context.Context, h *sessionHandle, job *models.ValidationJob, sessionID string) {
	defer s.wg.Done()
	defer s.release(sessionID)

	if err := s.queue.MarkRunning(job.ID); err != nil {
		log.Printf("scheduler: session %s: %v", sessionID, err)
		s.endSession(sessionID, models.SessionFailed)
		return
	}
	if err := s.store.UpdateSessionStatus(sessionID, models.SessionRunning, time.Now().UTC()); err != nil {
		log.Printf("scheduler: session %s: %v", sessionID, err)
	}

	jc := pipeline.JobContext{
		JobID:   job.ID,
		StoryID: job.StoryID,
		Attempt: job.Attempts + 1,
		WorkDir: s.workDir,
		Heartbeat: func() {
			s.monitor.ReportHeartbeat(sessionID, health.ResourceSnapshot{})
			if err := s.store.TouchSessionHeartbeat(sessionID, time.Now().UTC()); err != nil {
				log.Printf("scheduler: session %s heartbeat: %v", sessionID, err)
			}
		},
	}

	report, err := s.pipeline.Run(ctx, jc)
	switch {
	case err != nil && h.shutdown.Load():
		// Shutdown: the attempt is not charged. The crash-recovery
		// sweep returns the job to pending on the next start.
		log.Printf("scheduler: session %s interrupted by shutdown", sessionID)
		s.endSession(sessionID, models.SessionFailed)
		return
	case err != nil && h.timedOut.Load():
		log.Printf("scheduler: session %s timed out on job %s", sessionID, job.ID)
		s.failJob(job.ID, sessionID, fmt.Sprintf("timeout: no heartbeat within %s", s.sessionTimeout), models.SessionTimedOut)
		return
	case err != nil:
		s.failJob(job.ID, sessionID, fmt.Sprintf("session aborted: %v", err), models.SessionFailed)
		return
	}

	if _, err := s.detector.Process(report); err != nil {
		log.Printf("scheduler: bug detection for job %s: %v", job.ID, err)
	}
	if err := s.reports.SaveReport(report); err != nil {
		log.Printf("scheduler: save report for job %s: %v", job.ID, err)
	}

	if report.Passed {
		if err := s.queue.MarkCompleted(job.ID); err != nil {
			log.Printf("scheduler: session %s: %v", sessionID, err)
		}
		s.endSession(sessionID, models.SessionCompleted)
		log.Printf("scheduler: job %s passed (story %s)", job.ID, job.StoryID)
		return
	}

	s.failJob(job.ID, sessionID, failureReason(report), models.SessionFailed)
	log.Printf("scheduler: job %s failed validation (story %s)", job.ID, job.StoryID)
}

func (s *Scheduler) failJob(jobID, sessionID, reason string, status models.SessionStatus) {
	if err := s.queue.MarkFailed(jobID, reason); err != nil {
		log.Printf("scheduler: mark job %s failed: %v", jobID, err)
	}
	s.endSession(sessionID, status)
}

func (s *Scheduler) endSession(sessionID string, status models.SessionStatus) {
	if err := s.store.UpdateSessionStatus(sessionID, status, time.Now().UTC()); err != nil {
		log.Printf("scheduler: end session %s: %v", sessionID, err)
	}
}

// release frees the session's pool slot and tracking state.
func (s *Scheduler) release(sessionID string) {
	s.mu.Lock()
	delete(s.handles, sessionID)
	s.inFlight--
	s.mu.Unlock()

	if f, ok := s.monitor.(interface{ Forget(string) }); ok {
		f.Forget(sessionID)
	}
}

// terminateStalled cancels every session the monitor reports stalled.
func (s *Scheduler) terminateStalled() {
	s.mu.Lock()
	stalled := make(map[string]*sessionHandle)
	for id, h := range s.handles {
		stalled[id] = h
	}
	s.mu.Unlock()

	for id, h := range stalled {
		if !s.monitor.IsStalled(id) {
			continue
		}
		log.Printf("scheduler: terminating stalled session %s (job %s)", id, h.jobID)
		h.timedOut.Store(true)
		h.cancel()
	}
}

// abortSessions cancels every in-flight session for shutdown.
func (s *Scheduler) abortSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		h.shutdown.Store(true)
		h.cancel()
	}
}

// failureReason summarizes why a report failed, preferring gate
// violations over a generic message.
func failureReason(report *models.ValidationReport) string {
	if len(report.Gate.Violations) > 0 {
		details := make([]string, 0, len(report.Gate.Violations))
		for _, v := range report.Gate.Violations {
			details = append(details, v.Gate)
		}
		return "gate violations: " + strings.Join(details, ", ")
	}
	return "validation failed"
}
