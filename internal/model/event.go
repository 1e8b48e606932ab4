package model

import "time"

// EventType classifies pipeline lifecycle events
type EventType string

const (
	EventJobStart         EventType = "job:start"
	EventJobComplete      EventType = "job:complete"
	EventJobFail          EventType = "job:fail"
	EventJobRetry         EventType = "job:retry"
	EventPipelineStart    EventType = "pipeline:start"
	EventPipelineComplete EventType = "pipeline:complete"
)

// Event is one immutable entry in the append-only pipeline event log.
// Seq is assigned by the log and is monotonically increasing.
type Event struct {
	ID        string                 `json:"id"`
	Seq       int64                  `json:"seq"`
	Type      EventType              `json:"type"`
	JobID     string                 `json:"job_id,omitempty"`
	Branch    Branch                 `json:"branch,omitempty"`
	Status    JobState               `json:"status,omitempty"`
	Duration  *time.Duration         `json:"duration,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
