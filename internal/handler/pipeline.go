package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/forgo/cadence/api/internal/model"
	"github.com/forgo/cadence/api/internal/monitor"
)

// MonitorService is the monitoring surface the handler serves
type MonitorService interface {
	GetMonitorData(ctx context.Context) monitor.MonitorData
	GetBranchDetails(ctx context.Context, branch model.Branch) monitor.BranchDetails
	GetJobDetails(ctx context.Context, id string) (model.JobDetails, []model.Event, bool)
	GenerateReport(ctx context.Context) string
}

// BranchRunner is the trigger surface the handler drives
type BranchRunner interface {
	ExecuteBranch(ctx context.Context, branch model.Branch) error
	InFlight() bool
}

// PipelineHandler serves the pipeline monitoring and trigger endpoints
type PipelineHandler struct {
	monitor MonitorService
	runner  BranchRunner
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(monitor MonitorService, runner BranchRunner) *PipelineHandler {
	return &PipelineHandler{
		monitor: monitor,
		runner:  runner,
	}
}

// Overview handles GET /v1/pipeline - full monitoring snapshot
func (h *PipelineHandler) Overview(w http.ResponseWriter, r *http.Request) {
	data := h.monitor.GetMonitorData(r.Context())

	WriteData(w, http.StatusOK, data, map[string]string{
		"self":   "/v1/pipeline",
		"report": "/v1/pipeline/report",
	})
}

// GetBranch handles GET /v1/pipeline/branches/{branch} - branch drill-down
func (h *PipelineHandler) GetBranch(w http.ResponseWriter, r *http.Request) {
	branch, ok := parseBranch(r.PathValue("branch"))
	if !ok {
		WriteError(w, model.NewNotFoundError("branch"))
		return
	}

	details := h.monitor.GetBranchDetails(r.Context(), branch)

	WriteData(w, http.StatusOK, details, map[string]string{
		"self": "/v1/pipeline/branches/" + string(branch),
		"run":  "/v1/pipeline/branches/" + string(branch) + "/run",
	})
}

// GetJob handles GET /v1/pipeline/jobs/{id} - definition, status, events
func (h *PipelineHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	details, events, ok := h.monitor.GetJobDetails(r.Context(), id)
	if !ok {
		WriteError(w, model.NewNotFoundError("job"))
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{
		"definition": details.Definition,
		"status":     details.Status,
		"events":     events,
	}, map[string]string{
		"self": "/v1/pipeline/jobs/" + id,
	})
}

// Report handles GET /v1/pipeline/report - operator plain text report
func (h *PipelineHandler) Report(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, h.monitor.GenerateReport(r.Context()))
}

// TriggerBranch handles POST /v1/pipeline/branches/{branch}/run
//
// The run is detached from the request context so a disconnecting client
// does not cancel it. The pre-check races a concurrent trigger, but the
// engine's own guard still rejects the loser.
func (h *PipelineHandler) TriggerBranch(w http.ResponseWriter, r *http.Request) {
	branch, ok := parseBranch(r.PathValue("branch"))
	if !ok {
		WriteError(w, model.NewNotFoundError("branch"))
		return
	}

	if h.runner.InFlight() {
		WriteError(w, model.NewConflictError("a branch run is already in flight"))
		return
	}

	go func() {
		if err := h.runner.ExecuteBranch(context.Background(), branch); err != nil {
			slog.Warn("triggered branch run rejected",
				slog.String("branch", string(branch)),
				slog.String("error", err.Error()),
			)
		}
	}()

	WriteData(w, http.StatusAccepted, map[string]string{
		"branch": string(branch),
		"state":  "accepted",
	}, map[string]string{
		"status": "/v1/pipeline/branches/" + string(branch),
	})
}

func parseBranch(raw string) (model.Branch, bool) {
	for _, branch := range model.Branches() {
		if string(branch) == raw {
			return branch, true
		}
	}
	return "", false
}
