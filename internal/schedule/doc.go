// Package schedule resolves declarative job registrations.
//
// Job authors do not call the registry. Each owning unit declares a
// registration table (a Set of method name, bound handler, Options) and
// the Resolver turns it into registry entries in one bootstrap pass.
// The table is plain data built with function calls, so there is no
// annotation or reflection machinery to go wrong.
//
// Cron expressions and timezones are carried as operator-facing
// metadata; the actual trigger lives outside this process.
package schedule
