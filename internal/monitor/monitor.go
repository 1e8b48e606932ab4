package monitor

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/forgo/cadence/api/internal/model"
)

// recentEventCount is how many events the overview includes
const recentEventCount = 50

// Health classifies process heap pressure
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// RegistryReader is the slice of the registry the monitor reads
type RegistryReader interface {
	GetJob(id string) (model.JobDefinition, bool)
	GetJobStatus(id string) *model.ExecutionStatus
	GetBranchJobs(branch model.Branch) []model.JobDefinition
	GetBranchStats(branch model.Branch) model.BranchStats
	LastExecution(branch model.Branch) (time.Time, bool)
}

// EventReader is the slice of the event log the monitor reads
type EventReader interface {
	GetRecentEvents(ctx context.Context, count int) ([]model.Event, error)
	GetJobEvents(ctx context.Context, jobID string, count int) ([]model.Event, error)
	GetBranchEvents(ctx context.Context, branch model.Branch, count int) ([]model.Event, error)
}

// BrokerStats is the slice of the broker the monitor reads
type BrokerStats interface {
	CountersByState(ctx context.Context) (map[string]int64, error)
	QueueDepths(ctx context.Context) (map[string]int64, error)
}

// BranchSummary is one branch's row in the overview
type BranchSummary struct {
	model.BranchStats
	LastExecution *time.Time `json:"last_execution,omitempty"`
}

// HeapStatus reports process heap usage and its classification
type HeapStatus struct {
	AllocBytes uint64  `json:"alloc_bytes"`
	SysBytes   uint64  `json:"sys_bytes"`
	UsedRatio  float64 `json:"used_ratio"`
	Health     Health  `json:"health"`
}

// MonitorData is the full overview snapshot
type MonitorData struct {
	Branches     map[model.Branch]BranchSummary `json:"branches"`
	RecentEvents []model.Event                  `json:"recent_events"`
	Broker       map[string]int64               `json:"broker"`
	Queues       map[string]int64               `json:"queues"`
	Heap         HeapStatus                     `json:"heap"`
	GeneratedAt  time.Time                      `json:"generated_at"`
}

// BranchDetails is the per-branch drill-down
type BranchDetails struct {
	Branch model.Branch       `json:"branch"`
	Stats  BranchSummary      `json:"stats"`
	Jobs   []model.JobDetails `json:"jobs"`
	Events []model.Event      `json:"events"`
}

// Config holds the monitor's collaborators
type Config struct {
	Registry RegistryReader
	Events   EventReader
	Broker   BrokerStats
}

// Monitor aggregates registry state, the event log, and broker counters
// into read-only snapshots. Event log and broker reads are best-effort:
// a failing collaborator degrades the snapshot instead of failing it,
// since both are eventually consistent anyway.
type Monitor struct {
	registry RegistryReader
	events   EventReader
	broker   BrokerStats
}

// New creates a monitor from its collaborators
func New(cfg Config) *Monitor {
	return &Monitor{
		registry: cfg.Registry,
		events:   cfg.Events,
		broker:   cfg.Broker,
	}
}

// GetMonitorData returns the overview snapshot
func (m *Monitor) GetMonitorData(ctx context.Context) MonitorData {
	branches := make(map[model.Branch]BranchSummary, len(model.Branches()))
	for _, branch := range model.Branches() {
		branches[branch] = m.branchSummary(branch)
	}

	events, err := m.events.GetRecentEvents(ctx, recentEventCount)
	if err != nil {
		slog.Warn("monitor: event log unavailable", slog.String("error", err.Error()))
		events = nil
	}

	counters, err := m.broker.CountersByState(ctx)
	if err != nil {
		slog.Warn("monitor: broker counters unavailable", slog.String("error", err.Error()))
		counters = nil
	}

	depths, err := m.broker.QueueDepths(ctx)
	if err != nil {
		slog.Warn("monitor: broker queue depths unavailable", slog.String("error", err.Error()))
		depths = nil
	}

	return MonitorData{
		Branches:     branches,
		RecentEvents: events,
		Broker:       counters,
		Queues:       depths,
		Heap:         readHeapStatus(),
		GeneratedAt:  time.Now().UTC(),
	}
}

// GetBranchDetails returns every job of the branch enriched with live
// status, plus recent branch-scoped events.
func (m *Monitor) GetBranchDetails(ctx context.Context, branch model.Branch) BranchDetails {
	defs := m.registry.GetBranchJobs(branch)
	jobs := make([]model.JobDetails, 0, len(defs))
	for _, def := range defs {
		jobs = append(jobs, model.JobDetails{
			Definition: def,
			Status:     m.registry.GetJobStatus(def.ID),
		})
	}

	events, err := m.events.GetBranchEvents(ctx, branch, recentEventCount)
	if err != nil {
		slog.Warn("monitor: branch events unavailable",
			slog.String("branch", string(branch)),
			slog.String("error", err.Error()),
		)
		events = nil
	}

	return BranchDetails{
		Branch: branch,
		Stats:  m.branchSummary(branch),
		Jobs:   jobs,
		Events: events,
	}
}

// GetJobDetails returns one job's definition, live status, and recent
// events, or false if the id is unknown.
func (m *Monitor) GetJobDetails(ctx context.Context, id string) (model.JobDetails, []model.Event, bool) {
	def, ok := m.registry.GetJob(id)
	if !ok {
		return model.JobDetails{}, nil, false
	}

	events, err := m.events.GetJobEvents(ctx, id, recentEventCount)
	if err != nil {
		slog.Warn("monitor: job events unavailable",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		events = nil
	}

	return model.JobDetails{
		Definition: def,
		Status:     m.registry.GetJobStatus(id),
	}, events, true
}

func (m *Monitor) branchSummary(branch model.Branch) BranchSummary {
	summary := BranchSummary{BranchStats: m.registry.GetBranchStats(branch)}
	if last, ok := m.registry.LastExecution(branch); ok {
		summary.LastExecution = &last
	}
	return summary
}

// readHeapStatus samples the runtime heap and classifies pressure.
// Thresholds: healthy below 75% of the heap obtained from the OS,
// degraded up to 90%, unhealthy beyond.
func readHeapStatus() HeapStatus {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	ratio := 0.0
	if stats.HeapSys > 0 {
		ratio = float64(stats.HeapAlloc) / float64(stats.HeapSys)
	}

	return HeapStatus{
		AllocBytes: stats.HeapAlloc,
		SysBytes:   stats.HeapSys,
		UsedRatio:  ratio,
		Health:     classifyHeap(ratio),
	}
}

func classifyHeap(ratio float64) Health {
	switch {
	case ratio < 0.75:
		return HealthHealthy
	case ratio <= 0.90:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}
