// Package eventlog persists pipeline lifecycle events to SurrealDB.
//
// The log is append-only and survives restarts, so execution history
// outlives the in-memory statuses the registry keeps, and multiple
// orchestrator instances can share one log. Each event receives a
// monotonically increasing sequence number from a counter record
// (event_seq:pipeline) allocated in the same statement batch as the
// insert.
//
// Appends are best-effort by contract: LogEvent and the typed wrappers
// never return an error. A failed write is logged and swallowed so the
// orchestrated work is never blocked on observability.
//
// Reads operate on a bounded recent window (default 1000 events, newest
// first). Job and branch filters run client-side over that window rather
// than as indexed queries; CleanupOldEvents is the only full scan.
package eventlog
