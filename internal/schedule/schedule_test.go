package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/cadence/api/internal/model"
	"github.com/forgo/cadence/api/internal/registry"
)

type fakeUnit struct {
	name string
	set  *Set
}

func (u *fakeUnit) UnitName() string { return u.name }
func (u *fakeUnit) Schedules() *Set  { return u.set }

func noopHandler(ctx context.Context) error { return nil }

func TestResolveUnit_AppliesDefaults(t *testing.T) {
	reg := registry.New(registry.Config{})
	resolver := NewResolver(reg)

	unit := &fakeUnit{
		name: "datasync",
		set: NewSet().
			Add("RefreshQuotes", noopHandler, Options{Cron: "0 */10 * * * *"}),
	}
	require.NoError(t, resolver.ResolveUnit(unit))

	def, ok := reg.GetJob("datasync.RefreshQuotes")
	require.True(t, ok)
	assert.Equal(t, model.BranchDataIngestion, def.Branch)
	assert.Equal(t, "RefreshQuotes", def.Name)
	assert.Equal(t, "0 */10 * * * *", def.Schedule)
	assert.True(t, def.Enabled)
	assert.Equal(t, model.DefaultJobTimeout, def.Timeout)

	recorded := resolver.UnitJobs("datasync")
	require.Len(t, recorded, 1)
	assert.Equal(t, DefaultTimezone, recorded[0].Timezone)
}

func TestResolveUnit_ExplicitOptions(t *testing.T) {
	reg := registry.New(registry.Config{})
	resolver := NewResolver(reg)

	unit := &fakeUnit{
		name: "cleanup",
		set: NewSet().
			Add("PurgeMedia", noopHandler, Options{
				Cron:     "0 0 4 * * *",
				Name:     "purge stale media",
				Branch:   model.BranchMediaCleanup,
				Timezone: "UTC",
				Priority: 7,
				Timeout:  time.Minute,
				Retries:  2,
			}),
	}
	require.NoError(t, resolver.ResolveUnit(unit))

	def, ok := reg.GetJob("cleanup.PurgeMedia")
	require.True(t, ok)
	assert.Equal(t, model.BranchMediaCleanup, def.Branch)
	assert.Equal(t, "purge stale media", def.Name)
	assert.Equal(t, 7, def.Priority)
	assert.Equal(t, time.Minute, def.Timeout)
	assert.Equal(t, 2, def.Retries)
}

func TestResolveUnit_DisabledRecordedNotRegistered(t *testing.T) {
	reg := registry.New(registry.Config{})
	resolver := NewResolver(reg)

	unit := &fakeUnit{
		name: "datasync",
		set: NewSet().
			Add("Active", noopHandler, Options{Cron: "@hourly"}).
			Add("Parked", noopHandler, Options{Cron: "@daily", Disabled: true}),
	}
	require.NoError(t, resolver.ResolveUnit(unit))

	_, ok := reg.GetJob("datasync.Parked")
	assert.False(t, ok, "disabled entry must never reach the registry")
	assert.Len(t, reg.GetAllJobs(), 1)

	recorded := resolver.UnitJobs("datasync")
	require.Len(t, recorded, 2)
	byMethod := map[string]ResolvedJob{}
	for _, j := range recorded {
		byMethod[j.Method] = j
	}
	assert.True(t, byMethod["Active"].Enabled)
	assert.False(t, byMethod["Parked"].Enabled)
}

func TestResolveUnit_ReResolveOverwrites(t *testing.T) {
	reg := registry.New(registry.Config{})
	resolver := NewResolver(reg)

	first := &fakeUnit{
		name: "datasync",
		set: NewSet().
			Add("Old", noopHandler, Options{Cron: "@hourly"}).
			Add("Kept", noopHandler, Options{Cron: "@hourly", Priority: 1}),
	}
	require.NoError(t, resolver.ResolveUnit(first))

	second := &fakeUnit{
		name: "datasync",
		set: NewSet().
			Add("Kept", noopHandler, Options{Cron: "@daily", Priority: 9}),
	}
	require.NoError(t, resolver.ResolveUnit(second))

	_, ok := reg.GetJob("datasync.Old")
	assert.False(t, ok, "undeclared job must be unregistered on re-resolve")

	kept, ok := reg.GetJob("datasync.Kept")
	require.True(t, ok)
	assert.Equal(t, "@daily", kept.Schedule)
	assert.Equal(t, 9, kept.Priority)

	assert.Len(t, resolver.UnitJobs("datasync"), 1)
}

func TestResolveUnit_InvalidEntry(t *testing.T) {
	reg := registry.New(registry.Config{})
	resolver := NewResolver(reg)

	unit := &fakeUnit{
		name: "broken",
		set:  NewSet().Add("NoHandler", nil, Options{Cron: "@hourly"}),
	}
	err := resolver.ResolveUnit(unit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.NoHandler")
}

func TestResolveAll_StopsAtFirstError(t *testing.T) {
	reg := registry.New(registry.Config{})
	resolver := NewResolver(reg)

	good := &fakeUnit{name: "a", set: NewSet().Add("Run", noopHandler, Options{})}
	bad := &fakeUnit{name: "", set: NewSet()}

	require.Error(t, resolver.ResolveAll(good, bad))
	assert.Len(t, reg.GetAllJobs(), 1)
}

func TestResolvedJobs_SortedAcrossUnits(t *testing.T) {
	reg := registry.New(registry.Config{})
	resolver := NewResolver(reg)

	require.NoError(t, resolver.ResolveAll(
		&fakeUnit{name: "zeta", set: NewSet().Add("Run", noopHandler, Options{})},
		&fakeUnit{name: "alpha", set: NewSet().Add("Run", noopHandler, Options{})},
	))

	jobs := resolver.ResolvedJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "alpha.Run", jobs[0].JobID)
	assert.Equal(t, "zeta.Run", jobs[1].JobID)
}
