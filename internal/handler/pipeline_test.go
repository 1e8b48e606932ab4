package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/cadence/api/internal/model"
	"github.com/forgo/cadence/api/internal/monitor"
	"github.com/forgo/cadence/api/internal/registry"
)

type fakeMonitor struct {
	data    monitor.MonitorData
	details monitor.BranchDetails
	job     model.JobDetails
	jobOK   bool
	report  string
}

func (f *fakeMonitor) GetMonitorData(ctx context.Context) monitor.MonitorData { return f.data }

func (f *fakeMonitor) GetBranchDetails(ctx context.Context, branch model.Branch) monitor.BranchDetails {
	return f.details
}

func (f *fakeMonitor) GetJobDetails(ctx context.Context, id string) (model.JobDetails, []model.Event, bool) {
	return f.job, nil, f.jobOK
}

func (f *fakeMonitor) GenerateReport(ctx context.Context) string { return f.report }

type fakeRunner struct {
	mu       sync.Mutex
	inFlight bool
	executed []model.Branch
	err      error
	done     chan struct{}
}

func (f *fakeRunner) ExecuteBranch(ctx context.Context, branch model.Branch) error {
	f.mu.Lock()
	f.executed = append(f.executed, branch)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return f.err
}

func (f *fakeRunner) InFlight() bool { return f.inFlight }

func newMux(h *PipelineHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/pipeline", h.Overview)
	mux.HandleFunc("GET /v1/pipeline/report", h.Report)
	mux.HandleFunc("GET /v1/pipeline/branches/{branch}", h.GetBranch)
	mux.HandleFunc("POST /v1/pipeline/branches/{branch}/run", h.TriggerBranch)
	mux.HandleFunc("GET /v1/pipeline/jobs/{id}", h.GetJob)
	return mux
}

func TestOverview(t *testing.T) {
	fm := &fakeMonitor{data: monitor.MonitorData{
		Broker: map[string]int64{"queued": 3},
		Heap:   monitor.HeapStatus{Health: monitor.HealthHealthy},
	}}
	mux := newMux(NewPipelineHandler(fm, &fakeRunner{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipeline", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body DataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/v1/pipeline/report", body.Links["report"])
}

func TestGetBranch_UnknownBranch(t *testing.T) {
	mux := newMux(NewPipelineHandler(&fakeMonitor{}, &fakeRunner{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipeline/branches/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBranch(t *testing.T) {
	fm := &fakeMonitor{details: monitor.BranchDetails{Branch: model.BranchDataIngestion}}
	mux := newMux(NewPipelineHandler(fm, &fakeRunner{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipeline/branches/data-ingestion", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	mux := newMux(NewPipelineHandler(&fakeMonitor{jobOK: false}, &fakeRunner{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipeline/jobs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob(t *testing.T) {
	fm := &fakeMonitor{
		job: model.JobDetails{
			Definition: model.JobDefinition{ID: "a", Branch: model.BranchDataIngestion},
			Status:     &model.ExecutionStatus{State: model.JobStateCompleted},
		},
		jobOK: true,
	}
	mux := newMux(NewPipelineHandler(fm, &fakeRunner{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipeline/jobs/a", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed"`)
}

func TestReport(t *testing.T) {
	fm := &fakeMonitor{report: "Pipeline Report\n  all quiet\n"}
	mux := newMux(NewPipelineHandler(fm, &fakeRunner{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pipeline/report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "all quiet")
}

func TestTriggerBranch_Accepted(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{})}
	mux := newMux(NewPipelineHandler(&fakeMonitor{}, runner))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipeline/branches/teardown/run", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-runner.done:
	case <-time.After(time.Second):
		t.Fatal("branch run was never started")
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.executed, 1)
	assert.Equal(t, model.BranchTeardown, runner.executed[0])
}

func TestTriggerBranch_Conflict(t *testing.T) {
	runner := &fakeRunner{inFlight: true}
	mux := newMux(NewPipelineHandler(&fakeMonitor{}, runner))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipeline/branches/teardown/run", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, runner.executed)
}

func TestTriggerBranch_UnknownBranch(t *testing.T) {
	runner := &fakeRunner{}
	mux := newMux(NewPipelineHandler(&fakeMonitor{}, runner))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pipeline/branches/nope/run", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, runner.executed)
}

// The concrete registry satisfies the runner contract the handler needs
var _ BranchRunner = (*registry.Registry)(nil)
