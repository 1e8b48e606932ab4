package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/cadence/api/internal/model"
)

// captureSink records event emission order for assertions
type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	typ     model.EventType
	jobID   string
	attempt int
}

func (c *captureSink) record(typ model.EventType, jobID string, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, capturedEvent{typ: typ, jobID: jobID, attempt: attempt})
}

func (c *captureSink) forJob(jobID string) []capturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedEvent
	for _, e := range c.events {
		if e.jobID == jobID {
			out = append(out, e)
		}
	}
	return out
}

func (c *captureSink) LogJobStart(_ context.Context, jobID string, _ model.Branch) {
	c.record(model.EventJobStart, jobID, 0)
}

func (c *captureSink) LogJobComplete(_ context.Context, jobID string, _ model.Branch, _ time.Duration) {
	c.record(model.EventJobComplete, jobID, 0)
}

func (c *captureSink) LogJobFail(_ context.Context, jobID string, _ model.Branch, _ error, _ time.Duration) {
	c.record(model.EventJobFail, jobID, 0)
}

func (c *captureSink) LogJobRetry(_ context.Context, jobID string, _ model.Branch, attempt int, _ error) {
	c.record(model.EventJobRetry, jobID, attempt)
}

func (c *captureSink) LogPipelineStart(_ context.Context, _ model.Branch, _ int) {
	c.record(model.EventPipelineStart, "", 0)
}

func (c *captureSink) LogPipelineComplete(_ context.Context, _ model.Branch, _ time.Duration, _ model.BranchStats) {
	c.record(model.EventPipelineComplete, "", 0)
}

func TestExecuteBranch_DependencyBeforeDependent(t *testing.T) {
	r := testRegistry()

	r.Register(model.JobDefinition{
		ID: "dependent", Branch: model.BranchDataIngestion, Enabled: true,
		Dependencies: []string{"prerequisite"},
		Handler:      noopHandler,
	})
	r.Register(model.JobDefinition{
		ID: "prerequisite", Branch: model.BranchDataIngestion, Enabled: true,
		Handler: noopHandler,
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchDataIngestion))

	pre := r.GetJobStatus("prerequisite")
	dep := r.GetJobStatus("dependent")
	require.NotNil(t, pre)
	require.NotNil(t, dep)
	assert.Equal(t, model.JobStateCompleted, pre.State)
	assert.Equal(t, model.JobStateCompleted, dep.State)
	require.NotNil(t, pre.EndTime)
	require.NotNil(t, dep.StartTime)
	assert.False(t, dep.StartTime.Before(*pre.EndTime),
		"dependency must end before its dependent starts")
}

func TestExecuteBranch_FailedDependencySkipsTransitively(t *testing.T) {
	r := testRegistry()
	ran := make(map[string]bool)
	var mu sync.Mutex
	mark := func(id string, err error) model.Handler {
		return func(ctx context.Context) error {
			mu.Lock()
			ran[id] = true
			mu.Unlock()
			return err
		}
	}

	r.Register(model.JobDefinition{
		ID: "root", Branch: model.BranchDataIngestion, Enabled: true,
		Handler: mark("root", errors.New("boom")),
	})
	r.Register(model.JobDefinition{
		ID: "child", Branch: model.BranchDataIngestion, Enabled: true,
		Dependencies: []string{"root"}, Handler: mark("child", nil),
	})
	r.Register(model.JobDefinition{
		ID: "grandchild", Branch: model.BranchDataIngestion, Enabled: true,
		Dependencies: []string{"child"}, Handler: mark("grandchild", nil),
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchDataIngestion))

	assert.Equal(t, model.JobStateFailed, r.GetJobStatus("root").State)
	for _, id := range []string{"child", "grandchild"} {
		status := r.GetJobStatus(id)
		require.NotNil(t, status, id)
		assert.Equal(t, model.JobStateSkipped, status.State, id)
		assert.False(t, ran[id], "%s handler must never run", id)
	}
	assert.Contains(t, r.GetJobStatus("child").LastError, "root",
		"synthetic error names the failed dependency")
}

func TestExecuteBranch_InFlightGuardIsGlobal(t *testing.T) {
	r := testRegistry()
	started := make(chan struct{})
	release := make(chan struct{})

	r.Register(model.JobDefinition{
		ID: "slow", Branch: model.BranchDataIngestion, Enabled: true,
		Handler: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	})
	r.Register(model.JobDefinition{
		ID: "other", Branch: model.BranchTeardown, Enabled: true,
		Handler: noopHandler,
	})

	done := make(chan error, 1)
	go func() {
		done <- r.ExecuteBranch(context.Background(), model.BranchDataIngestion)
	}()
	<-started

	// Same branch and a different branch are both rejected
	assert.ErrorIs(t, r.ExecuteBranch(context.Background(), model.BranchDataIngestion), ErrRunInFlight)
	assert.ErrorIs(t, r.ExecuteBranch(context.Background(), model.BranchTeardown), ErrRunInFlight)

	close(release)
	require.NoError(t, <-done)

	// Once the run finishes, new runs are accepted again
	assert.NoError(t, r.ExecuteBranch(context.Background(), model.BranchTeardown))
}

func TestExecuteBranch_PriorityOrdering(t *testing.T) {
	r := testRegistry()
	var mu sync.Mutex
	var order []string
	track := func(id string) model.Handler {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	// Lower priority registered first; higher must still run first
	r.Register(model.JobDefinition{
		ID: "background", Branch: model.BranchCacheMaintenance, Enabled: true,
		Priority: 1, Handler: track("background"),
	})
	r.Register(model.JobDefinition{
		ID: "urgent", Branch: model.BranchCacheMaintenance, Enabled: true,
		Priority: 10, Handler: track("urgent"),
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchCacheMaintenance))
	require.Equal(t, []string{"urgent", "background"}, order)
}

func TestExecuteBranch_Scenario_PriorityDependencyDisabled(t *testing.T) {
	r := testRegistry()
	var mu sync.Mutex
	var order []string
	track := func(id string) model.Handler {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	r.Register(model.JobDefinition{
		ID: "a", Branch: model.BranchDataIngestion, Enabled: true,
		Priority: 5, Handler: track("a"),
	})
	r.Register(model.JobDefinition{
		ID: "b", Branch: model.BranchDataIngestion, Enabled: true,
		Priority: 1, Dependencies: []string{"a"}, Handler: track("b"),
	})
	r.Register(model.JobDefinition{
		ID: "c", Branch: model.BranchDataIngestion, Enabled: false,
		Priority: 10, Handler: track("c"),
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchDataIngestion))

	assert.NotContains(t, order, "c", "disabled job never runs")
	require.Equal(t, []string{"a", "b"}, order)

	aStatus := r.GetJobStatus("a")
	bStatus := r.GetJobStatus("b")
	require.NotNil(t, aStatus.EndTime)
	require.NotNil(t, bStatus.StartTime)
	assert.False(t, bStatus.StartTime.Before(*aStatus.EndTime), "a completes before b starts")

	stats := r.GetBranchStats(model.BranchDataIngestion)
	assert.Equal(t, model.BranchStats{Total: 3, Enabled: 2, Completed: 2, Failed: 0, Running: 0}, stats)
}

func TestExecuteBranch_RetryThenFail(t *testing.T) {
	sink := &captureSink{}
	r := New(Config{Events: sink, RetryBaseDelay: time.Millisecond})

	attempts := 0
	r.Register(model.JobDefinition{
		ID: "flaky", Branch: model.BranchMediaCleanup, Enabled: true,
		Retries: 1,
		Handler: func(ctx context.Context) error {
			attempts++
			return errors.New("still broken")
		},
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchMediaCleanup))

	assert.Equal(t, 2, attempts, "one retry means two attempts")

	status := r.GetJobStatus("flaky")
	require.NotNil(t, status)
	assert.Equal(t, model.JobStateFailed, status.State)
	assert.Equal(t, 1, status.RetryCount)
	assert.Contains(t, status.LastError, "still broken")

	events := sink.forJob("flaky")
	require.Len(t, events, 3)
	assert.Equal(t, model.EventJobStart, events[0].typ)
	assert.Equal(t, model.EventJobRetry, events[1].typ)
	assert.Equal(t, 1, events[1].attempt)
	assert.Equal(t, model.EventJobFail, events[2].typ)
}

func TestExecuteBranch_RetrySucceedsSecondAttempt(t *testing.T) {
	sink := &captureSink{}
	r := New(Config{Events: sink, RetryBaseDelay: time.Millisecond})

	attempts := 0
	r.Register(model.JobDefinition{
		ID: "recovering", Branch: model.BranchMediaCleanup, Enabled: true,
		Retries: 2,
		Handler: func(ctx context.Context) error {
			attempts++
			if attempts == 1 {
				return errors.New("transient")
			}
			return nil
		},
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchMediaCleanup))

	status := r.GetJobStatus("recovering")
	assert.Equal(t, model.JobStateCompleted, status.State)
	assert.Equal(t, 1, status.RetryCount)

	events := sink.forJob("recovering")
	require.Len(t, events, 3)
	assert.Equal(t, model.EventJobRetry, events[1].typ)
	assert.Equal(t, model.EventJobComplete, events[2].typ)
}

func TestExecuteBranch_Timeout(t *testing.T) {
	r := testRegistry()

	r.Register(model.JobDefinition{
		ID: "stuck", Branch: model.BranchTeardown, Enabled: true,
		Timeout: 20 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchTeardown))

	status := r.GetJobStatus("stuck")
	require.NotNil(t, status)
	assert.Equal(t, model.JobStateFailed, status.State)
	assert.Contains(t, status.LastError, "timed out")
}

func TestExecuteBranch_HandlerPanicBecomesFailure(t *testing.T) {
	r := testRegistry()

	r.Register(model.JobDefinition{
		ID: "panicky", Branch: model.BranchTeardown, Enabled: true,
		Handler: func(ctx context.Context) error { panic("unexpected") },
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchTeardown))

	status := r.GetJobStatus("panicky")
	require.NotNil(t, status)
	assert.Equal(t, model.JobStateFailed, status.State)
	assert.Contains(t, status.LastError, "panicked")
}

func TestExecuteBranch_CircularDependency(t *testing.T) {
	r := testRegistry()
	ran := false

	r.Register(model.JobDefinition{
		ID: "a", Branch: model.BranchDataIngestion, Enabled: true,
		Dependencies: []string{"b"},
		Handler:      func(ctx context.Context) error { ran = true; return nil },
	})
	r.Register(model.JobDefinition{
		ID: "b", Branch: model.BranchDataIngestion, Enabled: true,
		Dependencies: []string{"a"},
		Handler:      func(ctx context.Context) error { ran = true; return nil },
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchDataIngestion))

	assert.False(t, ran, "no handler in a cycle may run")
	states := map[string]model.JobState{
		"a": r.GetJobStatus("a").State,
		"b": r.GetJobStatus("b").State,
	}
	assert.Contains(t, []model.JobState{model.JobStateFailed, model.JobStateSkipped}, states["a"])
	assert.Contains(t, []model.JobState{model.JobStateFailed, model.JobStateSkipped}, states["b"])

	foundCycleError := false
	for _, id := range []string{"a", "b"} {
		if status := r.GetJobStatus(id); status.State == model.JobStateFailed {
			assert.Contains(t, status.LastError, "circular dependency")
			foundCycleError = true
		}
	}
	assert.True(t, foundCycleError, "one job in the cycle reports the circular dependency")
}

func TestExecuteBranch_CyclePathNamesOnlyCycleMembers(t *testing.T) {
	r := testRegistry()
	var bRan bool

	// a depends on b then c; only c loops back to a. The reported cycle
	// must not pick up b from the sibling dependency walk.
	r.Register(model.JobDefinition{
		ID: "a", Branch: model.BranchDataIngestion, Enabled: true,
		Dependencies: []string{"b", "c"},
		Handler:      func(ctx context.Context) error { return nil },
	})
	r.Register(model.JobDefinition{
		ID: "b", Branch: model.BranchDataIngestion, Enabled: true,
		Handler: func(ctx context.Context) error { bRan = true; return nil },
	})
	r.Register(model.JobDefinition{
		ID: "c", Branch: model.BranchDataIngestion, Enabled: true,
		Dependencies: []string{"a"},
		Handler:      func(ctx context.Context) error { return nil },
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchDataIngestion))

	assert.True(t, bRan, "the acyclic dependency still runs")
	assert.Equal(t, model.JobStateCompleted, r.GetJobStatus("b").State)
	assert.Equal(t, model.JobStateFailed, r.GetJobStatus("a").State)
	assert.Contains(t, r.GetJobStatus("a").LastError, "a -> c -> a")
	assert.NotContains(t, r.GetJobStatus("a").LastError, "b")
}

func TestExecuteBranch_UnregisteredDependencySatisfied(t *testing.T) {
	r := testRegistry()

	r.Register(model.JobDefinition{
		ID: "optimistic", Branch: model.BranchDataIngestion, Enabled: true,
		Dependencies: []string{"ghost"},
		Handler:      noopHandler,
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchDataIngestion))
	assert.Equal(t, model.JobStateCompleted, r.GetJobStatus("optimistic").State)
}

func TestExecuteBranch_RecordsLastExecution(t *testing.T) {
	r := testRegistry()
	r.Register(model.JobDefinition{
		ID: "only", Branch: model.BranchTeardown, Enabled: true, Handler: noopHandler,
	})

	_, ok := r.LastExecution(model.BranchTeardown)
	assert.False(t, ok, "no run recorded yet")

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchTeardown))

	last, ok := r.LastExecution(model.BranchTeardown)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), last, time.Second)
}

func TestExecuteBranch_EmitsPipelineEvents(t *testing.T) {
	sink := &captureSink{}
	r := New(Config{Events: sink, RetryBaseDelay: time.Millisecond})
	r.Register(model.JobDefinition{
		ID: "only", Branch: model.BranchTeardown, Enabled: true, Handler: noopHandler,
	})

	require.NoError(t, r.ExecuteBranch(context.Background(), model.BranchTeardown))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.events)
	assert.Equal(t, model.EventPipelineStart, sink.events[0].typ)
	assert.Equal(t, model.EventPipelineComplete, sink.events[len(sink.events)-1].typ)
}
