package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgo/cadence/api/internal/database"
	"github.com/forgo/cadence/api/internal/model"
	"github.com/forgo/cadence/api/internal/schedule"
)

// EventPruner is the slice of the event log the teardown jobs need
type EventPruner interface {
	CleanupOldEvents(ctx context.Context, maxAge time.Duration) (int, error)
}

// TeardownUnit owns the teardown branch: end-of-day housekeeping that
// runs after the other branches are quiet.
type TeardownUnit struct {
	db        database.Database
	events    EventPruner
	retention time.Duration
}

// NewTeardownUnit creates the teardown owning unit. retention bounds how
// long pipeline events are kept.
func NewTeardownUnit(db database.Database, events EventPruner, retention time.Duration) *TeardownUnit {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &TeardownUnit{db: db, events: events, retention: retention}
}

func (u *TeardownUnit) UnitName() string { return "teardown" }

func (u *TeardownUnit) Schedules() *schedule.Set {
	return schedule.NewSet().
		Add("PruneEvents", u.PruneEvents, schedule.Options{
			Cron:     "0 0 5 * * *",
			Name:     "prune old pipeline events",
			Branch:   model.BranchTeardown,
			Priority: 10,
		}).
		Add("CloseStaleSessions", u.CloseStaleSessions, schedule.Options{
			Cron:   "0 10 5 * * *",
			Name:   "close stale ingestion sessions",
			Branch: model.BranchTeardown,
			// runs after the retention pass so the two do not contend
			// on the store during the quiet window
			Dependencies: []string{"teardown.PruneEvents"},
			Priority:     5,
		})
}

// PruneEvents removes pipeline events older than the retention window
func (u *TeardownUnit) PruneEvents(ctx context.Context) error {
	removed, err := u.events.CleanupOldEvents(ctx, u.retention)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}

	slog.Info("event retention pass complete",
		slog.Int("removed", removed),
		slog.Duration("retention", u.retention),
	)
	return nil
}

// CloseStaleSessions marks ingestion sessions abandoned mid-run as
// closed so the next day starts clean.
func (u *TeardownUnit) CloseStaleSessions(ctx context.Context) error {
	query := `UPDATE ingestion_session SET state = 'closed', closed_at = time::now() WHERE state = 'open' AND started_at < time::now() - 1d`
	if err := u.db.Execute(ctx, query, nil); err != nil {
		return fmt.Errorf("close stale sessions: %w", err)
	}
	return nil
}
