package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SourceStatus represents the operational state of a crawl target
type SourceStatus string

const (
	SourceStatusActive SourceStatus = "active"
	SourceStatusPaused SourceStatus = "paused"
	// SourceStatusError is set by the core after repeated job failures
	// so the scheduler stops dispatching doomed work
	SourceStatusError SourceStatus = "error"
)

// Source is a configured crawl target: a URL plus a schedule and an
// optional recipe reference. Sources are created and edited by the
// management layer; the core only reads them and advances LastRun,
// ConsecutiveFailures and Status.
type Source struct {
	ID       string `json:"id" badgerhold:"key"`
	Name     string `json:"name" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	RecipeID string `json:"recipe_id,omitempty"`
	// Schedule is a standard five-field cron expression. Empty means
	// the source is never scheduled automatically.
	Schedule string       `json:"schedule,omitempty"`
	LastRun  time.Time    `json:"last_run,omitempty"`
	Status   SourceStatus `json:"status"`
	// ConsecutiveFailures counts scrape jobs that ended in failure since
	// the last success. Crossing the escalation threshold flips Status
	// to error.
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks source fields including the cron expression
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("source URL is required")
	}
	if s.Schedule != "" {
		if _, err := cron.ParseStandard(s.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", s.Schedule, err)
		}
	}
	switch s.Status {
	case SourceStatusActive, SourceStatusPaused, SourceStatusError, "":
	default:
		return fmt.Errorf("invalid source status: %s", s.Status)
	}
	return nil
}

// IsDue reports whether the schedule has fired since the last run.
// Sources that never ran use CreatedAt as the reference point.
func (s *Source) IsDue(now time.Time) (bool, error) {
	if s.Schedule == "" {
		return false, nil
	}
	sched, err := cron.ParseStandard(s.Schedule)
	if err != nil {
		return false, NewValidationError(fmt.Errorf("schedule %q: %w", s.Schedule, err))
	}
	ref := s.LastRun
	if ref.IsZero() {
		ref = s.CreatedAt
	}
	if ref.IsZero() {
		// Never ran and no creation timestamp - treat as due now.
		return true, nil
	}
	return !sched.Next(ref).After(now), nil
}
