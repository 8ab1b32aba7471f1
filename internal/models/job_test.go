package models

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{"pending to running", JobStatusPending, JobStatusRunning, true},
		{"pending to cancelled", JobStatusPending, JobStatusCancelled, true},
		{"pending to completed", JobStatusPending, JobStatusCompleted, false},
		{"pending to failed", JobStatusPending, JobStatusFailed, false},
		{"running to completed", JobStatusRunning, JobStatusCompleted, true},
		{"running to failed", JobStatusRunning, JobStatusFailed, true},
		{"running to cancelled", JobStatusRunning, JobStatusCancelled, true},
		{"running to pending", JobStatusRunning, JobStatusPending, false},
		{"completed is frozen", JobStatusCompleted, JobStatusRunning, false},
		{"failed is frozen", JobStatusFailed, JobStatusRunning, false},
		{"cancelled is frozen", JobStatusCancelled, JobStatusRunning, false},
		{"cancelled to completed", JobStatusCancelled, JobStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusRunning} {
		if s.IsTerminal() {
			t.Errorf("Expected %s not to be terminal", s)
		}
	}
}

func TestJob_Transition(t *testing.T) {
	t.Run("Timestamps follow the lifecycle", func(t *testing.T) {
		job := &Job{ID: "job_1", Status: JobStatusPending}

		start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		if err := job.Transition(JobStatusRunning, start); err != nil {
			t.Fatalf("Transition to running failed: %v", err)
		}
		if !job.StartedAt.Equal(start) {
			t.Errorf("Expected StartedAt %v, got %v", start, job.StartedAt)
		}
		if !job.CompletedAt.IsZero() {
			t.Error("CompletedAt should be zero while running")
		}

		end := start.Add(time.Minute)
		if err := job.Transition(JobStatusCompleted, end); err != nil {
			t.Fatalf("Transition to completed failed: %v", err)
		}
		if !job.CompletedAt.Equal(end) {
			t.Errorf("Expected CompletedAt %v, got %v", end, job.CompletedAt)
		}
	})

	t.Run("Terminal state rejects further transitions", func(t *testing.T) {
		job := &Job{ID: "job_2", Status: JobStatusCancelled}
		err := job.Transition(JobStatusRunning, time.Now())
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("Expected ErrInvalidTransition, got %v", err)
		}
		if job.Status != JobStatusCancelled {
			t.Errorf("Status mutated on rejected transition: %s", job.Status)
		}
	})

	t.Run("Random walks never escape terminal states", func(t *testing.T) {
		statuses := []JobStatus{
			JobStatusPending, JobStatusRunning,
			JobStatusCompleted, JobStatusFailed, JobStatusCancelled,
		}
		rng := rand.New(rand.NewSource(42))

		for i := 0; i < 200; i++ {
			job := &Job{ID: "job_walk", Status: JobStatusPending}
			terminalAt := -1
			for step := 0; step < 10; step++ {
				next := statuses[rng.Intn(len(statuses))]
				wasTerminal := job.Status.IsTerminal()
				err := job.Transition(next, time.Now())
				if wasTerminal && err == nil {
					t.Fatalf("Escaped terminal state at step %d: -> %s", step, next)
				}
				if err == nil && job.Status.IsTerminal() && terminalAt == -1 {
					terminalAt = step
				}
			}
			if terminalAt >= 0 && !job.Status.IsTerminal() {
				t.Fatal("Job left a terminal state during the walk")
			}
		}
	})
}
