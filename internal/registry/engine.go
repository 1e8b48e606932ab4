package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/forgo/cadence/api/internal/model"
)

// ExecuteBranch runs all enabled jobs of the branch, resolving declared
// dependencies before their dependents and otherwise attempting jobs in
// descending priority order.
//
// A single global in-flight flag guards execution: a second call while any
// branch run is active is rejected with ErrRunInFlight, regardless of which
// branch it targets. Job bodies share the database connection and the queue
// broker, so branch runs are deliberately serialized.
//
// Per-job failures never abort the remaining run; callers needing a
// definitive result poll job statuses or the event log after this returns.
func (r *Registry) ExecuteBranch(ctx context.Context, branch model.Branch) error {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		slog.Warn("rejecting branch run, another run is in flight",
			slog.String("branch", string(branch)),
		)
		return ErrRunInFlight
	}
	r.inFlight = true

	jobs := r.branchJobsLocked(branch)
	runnable := make([]model.JobDefinition, 0, len(jobs))
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		runnable = append(runnable, job)
		r.statuses[job.ID] = &model.ExecutionStatus{State: model.JobStatePending}
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.lastExecution[branch] = time.Now()
		r.mu.Unlock()
	}()

	start := time.Now()
	slog.Info("branch run starting",
		slog.String("branch", string(branch)),
		slog.Int("jobs", len(runnable)),
	)
	r.events.LogPipelineStart(ctx, branch, len(runnable))

	run := &branchRun{
		registry:   r,
		branch:     branch,
		defs:       make(map[string]model.JobDefinition, len(runnable)),
		outcomes:   make(map[string]model.JobState, len(runnable)),
		inProgress: make(map[string]bool),
	}
	for _, job := range runnable {
		run.defs[job.ID] = job
	}
	for _, job := range runnable {
		run.resolve(ctx, job.ID, nil)
	}

	duration := time.Since(start)
	stats := r.GetBranchStats(branch)
	slog.Info("branch run finished",
		slog.String("branch", string(branch)),
		slog.Duration("duration", duration),
		slog.Int("completed", stats.Completed),
		slog.Int("failed", stats.Failed),
	)
	r.events.LogPipelineComplete(ctx, branch, duration, stats)
	return nil
}

// branchRun is the walk state for one ExecuteBranch call: a depth-first,
// memoized traversal of the dependency graph with explicit cycle detection.
type branchRun struct {
	registry   *Registry
	branch     model.Branch
	defs       map[string]model.JobDefinition // enabled jobs of this branch
	outcomes   map[string]model.JobState      // memoized terminal states
	inProgress map[string]bool                // cycle detection
}

// resolve brings the job with the given id to a terminal state, resolving
// its dependencies first. Ids outside this run (unregistered, disabled, or
// belonging to another branch) are treated as already satisfied.
func (b *branchRun) resolve(ctx context.Context, id string, path []string) model.JobState {
	if outcome, done := b.outcomes[id]; done {
		return outcome
	}

	def, inRun := b.defs[id]
	if !inRun {
		slog.Warn("treating dependency outside this run as satisfied",
			slog.String("branch", string(b.branch)),
			slog.String("dependency", id),
		)
		return model.JobStateCompleted
	}

	if b.inProgress[id] {
		cycle := append(append([]string(nil), path...), id)
		err := fmt.Errorf("circular dependency: %s", strings.Join(cycle, " -> "))
		slog.Error("dependency cycle detected",
			slog.String("branch", string(b.branch)),
			slog.String("job_id", id),
			slog.String("cycle", strings.Join(cycle, " -> ")),
		)
		b.outcomes[id] = model.JobStateFailed
		b.registry.finalizeStatus(id, model.JobStateFailed, err)
		b.registry.events.LogJobFail(ctx, id, b.branch, err, 0)
		return model.JobStateFailed
	}

	b.inProgress[id] = true
	defer delete(b.inProgress, id)

	for _, dep := range def.Dependencies {
		// Copy the path so sibling recursions never share a backing array.
		depState := b.resolve(ctx, dep, append(append([]string(nil), path...), id))
		if outcome, done := b.outcomes[id]; done {
			// A cycle through this job already resolved it to failed.
			return outcome
		}
		if depState == model.JobStateFailed || depState == model.JobStateSkipped {
			err := fmt.Errorf("dependency %s %s", dep, depState)
			b.outcomes[id] = model.JobStateSkipped
			b.registry.finalizeStatus(id, model.JobStateSkipped, err)
			slog.Warn("skipping job, dependency did not complete",
				slog.String("job_id", id),
				slog.String("dependency", dep),
			)
			return model.JobStateSkipped
		}
	}

	outcome := b.registry.runJob(ctx, def)
	b.outcomes[id] = outcome
	return outcome
}

// runJob executes one job's handler with its timeout and retry budget,
// returning the terminal state (completed or failed).
func (r *Registry) runJob(ctx context.Context, def model.JobDefinition) model.JobState {
	start := time.Now()
	r.updateStatus(def.ID, func(s *model.ExecutionStatus) {
		s.State = model.JobStateRunning
		s.StartTime = &start
	})
	r.events.LogJobStart(ctx, def.ID, def.Branch)

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = r.invoke(ctx, def)
		if lastErr == nil {
			duration := time.Since(start)
			r.finalizeStatus(def.ID, model.JobStateCompleted, nil)
			slog.Info("job completed",
				slog.String("job_id", def.ID),
				slog.Duration("duration", duration),
			)
			r.events.LogJobComplete(ctx, def.ID, def.Branch, duration)
			return model.JobStateCompleted
		}

		if attempt >= def.Retries {
			break
		}

		retryCount := attempt + 1
		r.updateStatus(def.ID, func(s *model.ExecutionStatus) {
			s.RetryCount = retryCount
			s.LastError = lastErr.Error()
		})
		slog.Warn("job attempt failed, retrying",
			slog.String("job_id", def.ID),
			slog.Int("attempt", retryCount),
			slog.String("error", lastErr.Error()),
		)
		r.events.LogJobRetry(ctx, def.ID, def.Branch, retryCount, lastErr)

		if err := r.backoff(ctx, attempt); err != nil {
			lastErr = fmt.Errorf("retry aborted: %w", err)
			break
		}
	}

	duration := time.Since(start)
	r.finalizeStatus(def.ID, model.JobStateFailed, lastErr)
	slog.Error("job failed",
		slog.String("job_id", def.ID),
		slog.Duration("duration", duration),
		slog.String("error", lastErr.Error()),
	)
	r.events.LogJobFail(ctx, def.ID, def.Branch, lastErr, duration)
	return model.JobStateFailed
}

// invoke races one handler attempt against the job's timeout. The attempt
// context expires at the timeout so cooperative handlers can abort; a
// handler that ignores it keeps running in the background and only the
// waiter is released.
func (r *Registry) invoke(ctx context.Context, def model.JobDefinition) error {
	attemptCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("handler panicked: %v", p)
			}
		}()
		done <- def.Handler(attemptCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("run cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("timed out after %v", def.Timeout)
	}
}

// backoff waits 2^attempt times the base delay, or until the run context
// is cancelled.
func (r *Registry) backoff(ctx context.Context, attempt int) error {
	delay := r.retryBase << attempt
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) updateStatus(id string, apply func(*model.ExecutionStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, exists := r.statuses[id]
	if !exists {
		status = &model.ExecutionStatus{State: model.JobStatePending}
		r.statuses[id] = status
	}
	apply(status)
}

func (r *Registry) finalizeStatus(id string, state model.JobState, jobErr error) {
	now := time.Now()
	r.updateStatus(id, func(s *model.ExecutionStatus) {
		s.State = state
		if s.StartTime != nil {
			s.EndTime = &now
			duration := now.Sub(*s.StartTime)
			s.Duration = &duration
		}
		if jobErr != nil {
			s.LastError = jobErr.Error()
		}
	})
}
