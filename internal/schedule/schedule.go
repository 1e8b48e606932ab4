package schedule

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/forgo/cadence/api/internal/model"
	"github.com/forgo/cadence/api/internal/registry"
)

// DefaultTimezone annotates entries that do not declare one. It is
// informational only; triggering happens outside this process.
const DefaultTimezone = "Asia/Seoul"

// Options is the scheduling metadata attached to one method of an
// owning unit. The zero value of every optional field selects a default.
type Options struct {
	// Cron is the intended trigger cadence, recorded for operators.
	Cron string
	// Name overrides the human-readable job name; empty uses the method name.
	Name string
	// Branch defaults to the data ingestion branch.
	Branch model.Branch
	// Timezone the cron expression is written against. Informational.
	Timezone string
	// Disabled entries are recorded but never registered and never run.
	Disabled bool
	// Dependencies name job ids that must resolve before this one runs.
	Dependencies []string
	Priority     int
	Timeout      time.Duration
	Retries      int
}

// Entry binds one method of an owning unit to its scheduling metadata
type Entry struct {
	Method  string
	Handler model.Handler
	Options Options
}

// Set is the registration table an owning unit declares, built with
// ordinary function calls instead of annotations or reflection.
type Set struct {
	entries []Entry
}

// NewSet creates an empty registration table
func NewSet() *Set {
	return &Set{}
}

// Add appends one scheduled method to the table and returns the set for
// chaining. handler must be the bound method named by method.
func (s *Set) Add(method string, handler model.Handler, opts Options) *Set {
	s.entries = append(s.entries, Entry{Method: method, Handler: handler, Options: opts})
	return s
}

// Entries returns the declared entries in declaration order
func (s *Set) Entries() []Entry {
	return s.entries
}

// Unit is implemented by owning units that declare scheduled jobs
type Unit interface {
	// UnitName identifies the unit; it prefixes every job id the unit owns.
	UnitName() string
	// Schedules returns the unit's registration table.
	Schedules() *Set
}

// ResolvedJob records one resolved entry, including disabled ones that
// were never handed to the registry.
type ResolvedJob struct {
	JobID    string
	Unit     string
	Method   string
	Name     string
	Branch   model.Branch
	Cron     string
	Timezone string
	Enabled  bool
}

// Resolver turns declarative registration tables into registry entries.
// One bootstrap pass calls ResolveUnit for every owning unit; re-resolving
// a unit replaces its previous jobs.
type Resolver struct {
	mu       sync.Mutex
	registry *registry.Registry
	units    map[string][]ResolvedJob
}

// NewResolver creates a resolver that registers into reg
func NewResolver(reg *registry.Registry) *Resolver {
	return &Resolver{
		registry: reg,
		units:    make(map[string][]ResolvedJob),
	}
}

// ResolveUnit walks the unit's registration table. Every entry that is
// not disabled becomes a JobDefinition registered under its branch;
// disabled entries are recorded but never registered. Resolving the same
// unit again unregisters jobs that are no longer declared and overwrites
// the rest.
func (r *Resolver) ResolveUnit(unit Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	unitName := unit.UnitName()
	if unitName == "" {
		return fmt.Errorf("owning unit has no name")
	}

	previous := r.units[unitName]
	resolved := make([]ResolvedJob, 0, len(unit.Schedules().Entries()))
	current := make(map[string]struct{})

	for _, entry := range unit.Schedules().Entries() {
		opts := entry.Options
		id := jobID(unitName, entry.Method)
		current[id] = struct{}{}

		name := opts.Name
		if name == "" {
			name = entry.Method
		}
		branch := opts.Branch
		if branch == "" {
			branch = model.BranchDataIngestion
		}
		timezone := opts.Timezone
		if timezone == "" {
			timezone = DefaultTimezone
		}

		resolved = append(resolved, ResolvedJob{
			JobID:    id,
			Unit:     unitName,
			Method:   entry.Method,
			Name:     name,
			Branch:   branch,
			Cron:     opts.Cron,
			Timezone: timezone,
			Enabled:  !opts.Disabled,
		})

		if opts.Disabled {
			slog.Info("scheduled job declared disabled, not registering",
				slog.String("job_id", id),
				slog.String("unit", unitName),
			)
			continue
		}

		def := model.JobDefinition{
			ID:           id,
			Branch:       branch,
			Name:         name,
			Handler:      entry.Handler,
			Schedule:     opts.Cron,
			Dependencies: opts.Dependencies,
			Priority:     opts.Priority,
			Enabled:      true,
			Timeout:      opts.Timeout,
			Retries:      opts.Retries,
		}
		def.Normalize()
		if fieldErrs := def.Validate(); len(fieldErrs) > 0 {
			return fmt.Errorf("invalid schedule entry %s: %v", id, fieldErrs)
		}
		r.registry.Register(def)
	}

	// Jobs the unit no longer declares must not survive a re-resolve
	for _, prev := range previous {
		if _, still := current[prev.JobID]; !still && prev.Enabled {
			r.registry.Unregister(prev.JobID)
		}
	}

	r.units[unitName] = resolved
	return nil
}

// ResolveAll resolves every unit in order, stopping at the first error
func (r *Resolver) ResolveAll(units ...Unit) error {
	for _, unit := range units {
		if err := r.ResolveUnit(unit); err != nil {
			return err
		}
	}
	return nil
}

// ResolvedJobs returns every recorded entry, registered or not, sorted
// by job id for stable output.
func (r *Resolver) ResolvedJobs() []ResolvedJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]ResolvedJob, 0)
	for _, unitJobs := range r.units {
		jobs = append(jobs, unitJobs...)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JobID < jobs[j].JobID })
	return jobs
}

// UnitJobs returns the recorded entries for one unit, or nil if the unit
// was never resolved.
func (r *Resolver) UnitJobs(unitName string) []ResolvedJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := r.units[unitName]
	out := make([]ResolvedJob, len(jobs))
	copy(out, jobs)
	if len(out) == 0 {
		return nil
	}
	return out
}

func jobID(unitName, method string) string {
	return unitName + "." + method
}
