package queue

import (
	"errors"
	"fmt"
)

// ErrDuplicateJob is returned by Enqueue when the story already has an
// active job in the queue.
var ErrDuplicateJob = errors.New("queue: story already has an active job")

// ErrNoJobAvailable is returned by DequeueNext when no pending job
// exists.
var ErrNoJobAvailable = errors.New("queue: no job available")

// TransitionError reports an illegal job state change, usually because
// a concurrent worker already moved the job.
type TransitionError struct {
	// JobID is the job whose transition failed.
	JobID string
	// Op names the attempted transition.
	Op string
	// Err is the underlying store error.
	Err error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("queue: %s on job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
