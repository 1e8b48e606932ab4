// Package model defines domain entities and data structures for the Cadence
// pipeline orchestrator.
//
// # Domain Entities
//
// Core entities:
//
//   - JobDefinition: one schedulable unit of background work, owned by the registry
//   - ExecutionStatus: the live state of a job's most recent run attempt
//   - Event: one immutable entry in the append-only pipeline event log
//   - Branch: a partition tag grouping jobs by operational category
//
// # State Machine
//
// ExecutionStatus.State only moves forward within one run:
//
//	pending -> running -> (completed | failed | skipped)
//
// A failed attempt with remaining retry budget stays in running; skipped jobs
// never invoke their handler.
//
// # JSON Serialization
//
// All models use json struct tags for API serialization. Handlers are excluded
// from serialization (`json:"-"`).
package model
