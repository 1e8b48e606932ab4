// Package registry implements the job catalog and branch execution engine.
//
// The Registry owns every JobDefinition, partitioned into branches, and the
// live ExecutionStatus of each job's most recent run. ExecuteBranch walks
// the branch's dependency graph depth-first with memoization: every declared
// dependency reaches a terminal state before its dependents are attempted,
// failed or skipped dependencies cascade to skips, and cycles are detected
// and failed with an error naming the cycle path.
//
// Each job attempt races its handler against the configured timeout and is
// retried with exponential backoff (base delay doubling per attempt) until
// the retry budget is exhausted. Timeouts release only the waiter: handlers
// receive a context that expires at the deadline, but one that ignores it
// keeps running in the background.
//
// Branch runs are serialized by a single global in-flight flag across all
// branches. Registry misuse (unknown ids, invalid definitions) logs a
// warning and no-ops rather than failing.
package registry
