package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgo/cadence/api/internal/database"
	"github.com/forgo/cadence/api/internal/model"
)

// DefaultWindow bounds how many recent events a read returns
const DefaultWindow = 1000

// Log is the durable, append-only record of pipeline lifecycle events.
// Appends are best-effort: write failures are logged and swallowed so
// observability never blocks the orchestrated work.
type Log struct {
	db     database.Database
	window int
}

// New creates an event log over the given database. window bounds
// GetRecentEvents reads; zero or negative selects DefaultWindow.
func New(db database.Database, window int) *Log {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Log{db: db, window: window}
}

// appendQuery assigns the next monotonic sequence number and creates the
// event in one statement batch, so concurrent orchestrator instances
// cannot allocate the same seq.
const appendQuery = `
	LET $next = (UPSERT ONLY event_seq:pipeline SET value += 1 RETURN AFTER).value;
	CREATE pipeline_event SET
		seq = $next,
		type = $type,
		job_id = $job_id,
		branch = $branch,
		status = $status,
		duration_ms = $duration_ms,
		error = $error,
		metadata = $metadata,
		timestamp = time::now()
`

// LogEvent appends one event. It never returns an error; failures are
// logged and otherwise ignored.
func (l *Log) LogEvent(ctx context.Context, event model.Event) {
	var durationMs interface{}
	if event.Duration != nil {
		durationMs = event.Duration.Milliseconds()
	}

	vars := map[string]interface{}{
		"type":        string(event.Type),
		"job_id":      event.JobID,
		"branch":      string(event.Branch),
		"status":      string(event.Status),
		"duration_ms": durationMs,
		"error":       event.Error,
		"metadata":    event.Metadata,
	}

	if err := l.db.Execute(ctx, appendQuery, vars); err != nil {
		slog.Error("failed to append pipeline event",
			slog.String("type", string(event.Type)),
			slog.String("job_id", event.JobID),
			slog.String("error", err.Error()),
		)
	}
}

// Typed convenience wrappers. Together they satisfy the registry's
// EventSink interface.

func (l *Log) LogJobStart(ctx context.Context, jobID string, branch model.Branch) {
	l.LogEvent(ctx, model.Event{
		Type:   model.EventJobStart,
		JobID:  jobID,
		Branch: branch,
		Status: model.JobStateRunning,
	})
}

func (l *Log) LogJobComplete(ctx context.Context, jobID string, branch model.Branch, duration time.Duration) {
	l.LogEvent(ctx, model.Event{
		Type:     model.EventJobComplete,
		JobID:    jobID,
		Branch:   branch,
		Status:   model.JobStateCompleted,
		Duration: &duration,
	})
}

func (l *Log) LogJobFail(ctx context.Context, jobID string, branch model.Branch, jobErr error, duration time.Duration) {
	l.LogEvent(ctx, model.Event{
		Type:     model.EventJobFail,
		JobID:    jobID,
		Branch:   branch,
		Status:   model.JobStateFailed,
		Duration: &duration,
		Error:    jobErr.Error(),
	})
}

func (l *Log) LogJobRetry(ctx context.Context, jobID string, branch model.Branch, attempt int, jobErr error) {
	l.LogEvent(ctx, model.Event{
		Type:     model.EventJobRetry,
		JobID:    jobID,
		Branch:   branch,
		Status:   model.JobStateRunning,
		Error:    jobErr.Error(),
		Metadata: map[string]interface{}{"attempt": attempt},
	})
}

func (l *Log) LogPipelineStart(ctx context.Context, branch model.Branch, jobCount int) {
	l.LogEvent(ctx, model.Event{
		Type:     model.EventPipelineStart,
		Branch:   branch,
		Metadata: map[string]interface{}{"job_count": jobCount},
	})
}

func (l *Log) LogPipelineComplete(ctx context.Context, branch model.Branch, duration time.Duration, stats model.BranchStats) {
	l.LogEvent(ctx, model.Event{
		Type:     model.EventPipelineComplete,
		Branch:   branch,
		Duration: &duration,
		Metadata: map[string]interface{}{
			"completed": stats.Completed,
			"failed":    stats.Failed,
		},
	})
}

// GetRecentEvents returns up to count events, newest first, bounded by the
// log's window. It never scans beyond the window.
func (l *Log) GetRecentEvents(ctx context.Context, count int) ([]model.Event, error) {
	if count <= 0 || count > l.window {
		count = l.window
	}

	query := `SELECT * FROM pipeline_event ORDER BY seq DESC LIMIT $limit`
	results, err := l.db.Query(ctx, query, map[string]interface{}{"limit": count})
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}

	return parseEventsResult(results), nil
}

// GetJobEvents returns up to count recent events for one job id. The
// filter runs client-side over the bounded recent window, not as an
// indexed query.
func (l *Log) GetJobEvents(ctx context.Context, jobID string, count int) ([]model.Event, error) {
	recent, err := l.GetRecentEvents(ctx, l.window)
	if err != nil {
		return nil, err
	}

	return filterEvents(recent, count, func(e model.Event) bool {
		return e.JobID == jobID
	}), nil
}

// GetBranchEvents returns up to count recent events for one branch,
// filtered client-side over the bounded recent window.
func (l *Log) GetBranchEvents(ctx context.Context, branch model.Branch, count int) ([]model.Event, error) {
	recent, err := l.GetRecentEvents(ctx, l.window)
	if err != nil {
		return nil, err
	}

	return filterEvents(recent, count, func(e model.Event) bool {
		return e.Branch == branch
	}), nil
}

// CleanupOldEvents deletes events older than now - maxAge in a single
// scan and returns how many were removed.
func (l *Log) CleanupOldEvents(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	vars := map[string]interface{}{"cutoff": cutoff.Format(time.RFC3339)}

	countQuery := `SELECT count() AS count FROM pipeline_event WHERE timestamp < <datetime>$cutoff GROUP ALL`
	result, err := l.db.QueryOne(ctx, countQuery, vars)
	removed := 0
	if err == nil {
		removed = extractCount(result)
	} else if !isNotFound(err) {
		return 0, fmt.Errorf("count old events: %w", err)
	}

	deleteQuery := `DELETE pipeline_event WHERE timestamp < <datetime>$cutoff`
	if err := l.db.Execute(ctx, deleteQuery, vars); err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}

	if removed > 0 {
		slog.Info("cleaned up old pipeline events",
			slog.Int("removed", removed),
			slog.Duration("max_age", maxAge),
		)
	}
	return removed, nil
}

func filterEvents(events []model.Event, count int, keep func(model.Event) bool) []model.Event {
	filtered := make([]model.Event, 0, count)
	for _, e := range events {
		if !keep(e) {
			continue
		}
		filtered = append(filtered, e)
		if count > 0 && len(filtered) == count {
			break
		}
	}
	return filtered
}
