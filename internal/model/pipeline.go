package model

import (
	"context"
	"time"
)

// Branch is a named partition of jobs sharing an operational category
type Branch string

const (
	BranchDataIngestion    Branch = "data-ingestion"
	BranchCacheMaintenance Branch = "cache-maintenance"
	BranchMediaCleanup     Branch = "media-cleanup"
	BranchTeardown         Branch = "teardown"
)

// Branches lists all known branches in report order
func Branches() []Branch {
	return []Branch{
		BranchDataIngestion,
		BranchCacheMaintenance,
		BranchMediaCleanup,
		BranchTeardown,
	}
}

// JobState represents the lifecycle stage of a job's most recent run
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateSkipped   JobState = "skipped" // Dependency failed; handler never ran
)

// Default scheduling values applied by JobDefinition.Normalize
const (
	DefaultJobTimeout  = 5 * time.Minute
	DefaultJobPriority = 0
)

// Handler is the unit of work a job executes. The context carries the
// per-attempt timeout; cooperative handlers should observe ctx.Done().
type Handler func(ctx context.Context) error

// JobDefinition describes one schedulable unit of background work.
// Definitions are owned by the registry and replaced wholesale on
// re-registration.
type JobDefinition struct {
	ID           string        `json:"id"`
	Branch       Branch        `json:"branch"`
	Name         string        `json:"name"`
	Handler      Handler       `json:"-"`
	Schedule     string        `json:"schedule,omitempty"` // Informational cron expression; firing is external
	Dependencies []string      `json:"dependencies,omitempty"`
	Priority     int           `json:"priority"` // Higher runs first among ready jobs
	Enabled      bool          `json:"enabled"`
	Timeout      time.Duration `json:"timeout"`
	Retries      int           `json:"retries"`
}

// Normalize fills zero-valued scheduling fields with their defaults
func (j *JobDefinition) Normalize() {
	if j.Name == "" {
		j.Name = j.ID
	}
	if j.Timeout <= 0 {
		j.Timeout = DefaultJobTimeout
	}
	if j.Retries < 0 {
		j.Retries = 0
	}
}

// Validate checks that the definition can be registered
func (j *JobDefinition) Validate() []FieldError {
	var errors []FieldError

	if j.ID == "" {
		errors = append(errors, FieldError{Field: "id", Message: "id is required"})
	}
	if j.Branch == "" {
		errors = append(errors, FieldError{Field: "branch", Message: "branch is required"})
	}
	if j.Handler == nil {
		errors = append(errors, FieldError{Field: "handler", Message: "handler is required"})
	}
	for _, dep := range j.Dependencies {
		if dep == j.ID {
			errors = append(errors, FieldError{Field: "dependencies", Message: "job cannot depend on itself"})
		}
	}

	return errors
}

// ExecutionStatus is the live state of a job's most recent run attempt.
// Exactly one instance exists per job id; it is overwritten each run and
// history is retained only in the event log.
type ExecutionStatus struct {
	State      JobState       `json:"state"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	Duration   *time.Duration `json:"duration,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	RetryCount int            `json:"retry_count"`
}

// BranchStats aggregates job counts for one branch
type BranchStats struct {
	Total     int `json:"total"`
	Enabled   int `json:"enabled"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
}

// JobDetails pairs a definition with its live execution status
type JobDetails struct {
	Definition JobDefinition    `json:"definition"`
	Status     *ExecutionStatus `json:"status,omitempty"`
}
