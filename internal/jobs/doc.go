// Package jobs contains the owning units whose scheduled methods the
// resolver registers into the pipeline registry.
//
// Each unit declares its jobs as a registration table (see the schedule
// package) and keeps the bodies thin: query or mutate a collaborator,
// log what happened, return the error. Heavy parallel work is not done
// inline; it is dispatched to the broker's task queues and drained by a
// separate worker fleet.
//
// Units by branch:
//
//   - DataSyncUnit: data-ingestion refreshes from upstream sources
//   - CacheMaintenanceUnit: key-value cache eviction
//   - MediaCleanupUnit: batch media purges dispatched via the broker
//   - TeardownUnit: event log retention and end-of-day housekeeping
package jobs
