package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/forgo/cadence/api/internal/model"
)

// ErrRunInFlight is returned by ExecuteBranch when another branch run is
// already active. The rejected call is not queued or retried.
var ErrRunInFlight = errors.New("a branch run is already in flight")

// EventSink receives pipeline lifecycle events. Implementations must never
// block the run or propagate failures; the event log satisfies this by
// swallowing write errors.
type EventSink interface {
	LogJobStart(ctx context.Context, jobID string, branch model.Branch)
	LogJobComplete(ctx context.Context, jobID string, branch model.Branch, duration time.Duration)
	LogJobFail(ctx context.Context, jobID string, branch model.Branch, jobErr error, duration time.Duration)
	LogJobRetry(ctx context.Context, jobID string, branch model.Branch, attempt int, jobErr error)
	LogPipelineStart(ctx context.Context, branch model.Branch, jobCount int)
	LogPipelineComplete(ctx context.Context, branch model.Branch, duration time.Duration, stats model.BranchStats)
}

// NopSink is an EventSink that discards all events
type NopSink struct{}

func (NopSink) LogJobStart(context.Context, string, model.Branch)                        {}
func (NopSink) LogJobComplete(context.Context, string, model.Branch, time.Duration)      {}
func (NopSink) LogJobFail(context.Context, string, model.Branch, error, time.Duration)   {}
func (NopSink) LogJobRetry(context.Context, string, model.Branch, int, error)            {}
func (NopSink) LogPipelineStart(context.Context, model.Branch, int)                      {}
func (NopSink) LogPipelineComplete(context.Context, model.Branch, time.Duration, model.BranchStats) {
}

// Config holds registry construction settings
type Config struct {
	Events         EventSink     // Defaults to NopSink
	RetryBaseDelay time.Duration // First backoff delay, doubles per attempt (default 1s)
}

// Registry is the central catalog of job definitions grouped by branch,
// plus branch-level execution orchestration.
//
// All state is guarded by a single mutex: the execution engine is the only
// writer during a run, but the monitor and HTTP surface read concurrently.
type Registry struct {
	mu            sync.Mutex
	jobs          map[string]*model.JobDefinition
	branches      map[model.Branch]map[string]struct{}
	statuses      map[string]*model.ExecutionStatus
	lastExecution map[model.Branch]time.Time
	inFlight      bool

	events    EventSink
	retryBase time.Duration
}

// New creates an empty registry
func New(cfg Config) *Registry {
	events := cfg.Events
	if events == nil {
		events = NopSink{}
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = 1 * time.Second
	}
	return &Registry{
		jobs:          make(map[string]*model.JobDefinition),
		branches:      make(map[model.Branch]map[string]struct{}),
		statuses:      make(map[string]*model.ExecutionStatus),
		lastExecution: make(map[model.Branch]time.Time),
		events:        events,
		retryBase:     retryBase,
	}
}

// Register inserts or replaces a job definition by id. Re-registration
// replaces the previous definition wholesale and logs a warning. Invalid
// definitions are rejected with a warning; Register never fails loudly.
func (r *Registry) Register(job model.JobDefinition) {
	if fieldErrors := job.Validate(); len(fieldErrors) > 0 {
		slog.Warn("rejecting invalid job definition",
			slog.String("job_id", job.ID),
			slog.String("reason", fieldErrors[0].Message),
		)
		return
	}
	job.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, exists := r.jobs[job.ID]; exists {
		slog.Warn("replacing existing job definition",
			slog.String("job_id", job.ID),
			slog.String("old_branch", string(previous.Branch)),
			slog.String("new_branch", string(job.Branch)),
		)
		delete(r.branches[previous.Branch], job.ID)
		delete(r.statuses, job.ID)
	}

	for _, dep := range job.Dependencies {
		if _, known := r.jobs[dep]; !known {
			// Unknown here is not an error: registration order is
			// resolver-driven and the dependency may arrive later, or be
			// legitimately absent in this deployment.
			slog.Warn("job depends on unregistered job",
				slog.String("job_id", job.ID),
				slog.String("dependency", dep),
			)
		}
	}

	stored := job
	stored.Dependencies = append([]string(nil), job.Dependencies...)
	r.jobs[job.ID] = &stored
	if r.branches[job.Branch] == nil {
		r.branches[job.Branch] = make(map[string]struct{})
	}
	r.branches[job.Branch][job.ID] = struct{}{}

	slog.Info("registered job",
		slog.String("job_id", job.ID),
		slog.String("branch", string(job.Branch)),
		slog.Int("priority", job.Priority),
		slog.Bool("enabled", job.Enabled),
	)
}

// Unregister removes a definition, its branch membership and cached status.
// Unknown ids warn and no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		slog.Warn("cannot unregister unknown job", slog.String("job_id", id))
		return
	}

	delete(r.jobs, id)
	delete(r.branches[job.Branch], id)
	delete(r.statuses, id)

	slog.Info("unregistered job", slog.String("job_id", id))
}

// SetJobEnabled toggles a job without removing its definition.
// Unknown ids warn and no-op.
func (r *Registry) SetJobEnabled(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		slog.Warn("cannot toggle unknown job", slog.String("job_id", id))
		return
	}
	job.Enabled = enabled
}

// GetJob returns a copy of the definition for id
func (r *Registry) GetJob(id string) (model.JobDefinition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return model.JobDefinition{}, false
	}
	return copyDefinition(job), true
}

// GetJobStatus returns a copy of the live execution status for id, or nil
// if the job has never been attempted (or is unknown).
func (r *Registry) GetJobStatus(id string) *model.ExecutionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.statuses[id]
	if !exists {
		return nil
	}
	copied := *status
	return &copied
}

// GetAllJobs returns copies of every registered definition, ordered by
// branch then descending priority.
func (r *Registry) GetAllJobs() []model.JobDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]model.JobDefinition, 0, len(r.jobs))
	for _, job := range r.jobs {
		all = append(all, copyDefinition(job))
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Branch != all[j].Branch {
			return all[i].Branch < all[j].Branch
		}
		return all[i].Priority > all[j].Priority
	})
	return all
}

// GetBranchJobs returns copies of the branch's definitions sorted by
// descending priority.
func (r *Registry) GetBranchJobs(branch model.Branch) []model.JobDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.branchJobsLocked(branch)
}

func (r *Registry) branchJobsLocked(branch model.Branch) []model.JobDefinition {
	members := r.branches[branch]
	jobs := make([]model.JobDefinition, 0, len(members))
	for id := range members {
		jobs = append(jobs, copyDefinition(r.jobs[id]))
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// GetBranchStats aggregates job counts for one branch
func (r *Registry) GetBranchStats(branch model.Branch) model.BranchStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.branchStatsLocked(branch)
}

func (r *Registry) branchStatsLocked(branch model.Branch) model.BranchStats {
	var stats model.BranchStats
	for id := range r.branches[branch] {
		stats.Total++
		if r.jobs[id].Enabled {
			stats.Enabled++
		}
		status, exists := r.statuses[id]
		if !exists {
			continue
		}
		switch status.State {
		case model.JobStateCompleted:
			stats.Completed++
		case model.JobStateFailed:
			stats.Failed++
		case model.JobStateRunning:
			stats.Running++
		}
	}
	return stats
}

// InFlight reports whether any branch run is currently active
func (r *Registry) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// LastExecution returns when the branch last finished a run
func (r *Registry) LastExecution(branch model.Branch) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.lastExecution[branch]
	return t, ok
}

func copyDefinition(job *model.JobDefinition) model.JobDefinition {
	copied := *job
	copied.Dependencies = append([]string(nil), job.Dependencies...)
	return copied
}
