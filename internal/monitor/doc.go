// Package monitor aggregates registry state, the event log, and broker
// counters into read-only snapshots and an operator-facing text report.
//
// The monitor never mutates anything and never blocks a pipeline run.
// Collaborator reads are best-effort; a failing event log or broker
// degrades the snapshot rather than failing it. Heap pressure is
// classified healthy, degraded, or unhealthy at 75% and 90% usage.
package monitor
