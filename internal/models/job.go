package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of a scrape job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// validTransitions encodes the job lifecycle state machine:
//
//	pending -> running -> {completed | failed | cancelled}
//	pending -> cancelled
//
// Terminal states have no outgoing edges.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// IsTerminal reports whether the status has no outgoing transitions
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving to next
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job is one scheduled scrape run for a source, tracked through the
// status lifecycle. Counters are aggregates over the article jobs the
// run fanned out: ArticlesFound is the number enqueued by the scrape
// worker, ArticlesNew is incremented by article workers on first-time
// archives.
type Job struct {
	ID string `json:"id" badgerhold:"key"`
	// QueueID is the queue-native message identifier, recorded so a
	// cancellation request can reach the pending queue entry.
	QueueID       string    `json:"queue_id,omitempty"`
	SourceID      string    `json:"source_id"`
	Status        JobStatus `json:"status"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
	ArticlesFound int       `json:"articles_found"`
	ArticlesNew   int       `json:"articles_new"`
	// Error holds a human-readable message when the job ends in failure.
	// Article-level failures are aggregated here without failing the run.
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the job to next, enforcing the state machine.
// Attempting to leave a terminal state returns ErrInvalidTransition
// rather than being silently ignored.
func (j *Job) Transition(next JobStatus, now time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s (job %s)", ErrInvalidTransition, j.Status, next, j.ID)
	}
	j.Status = next
	j.UpdatedAt = now
	switch next {
	case JobStatusRunning:
		j.StartedAt = now
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		j.CompletedAt = now
	}
	return nil
}
