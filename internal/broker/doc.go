// Package broker wraps the shared Redis task queue used for high-volume
// parallelizable work dispatched outside the dependency graph.
//
// The orchestrator is a producer and an observer only. Enqueue stores a
// task payload and adds its id to a priority-scored queue; a separate
// worker fleet drains the queues at-least-once and maintains the state
// counters CountersByState reads. Counter snapshots are eventually
// consistent by design.
package broker
