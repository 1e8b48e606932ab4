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

// DataSyncUnit owns the data-ingestion refresh jobs. Bodies stay thin:
// each one runs an idempotent upsert pass against the store and reports
// how much it touched.
type DataSyncUnit struct {
	db database.Database
}

// NewDataSyncUnit creates the data-ingestion owning unit
func NewDataSyncUnit(db database.Database) *DataSyncUnit {
	return &DataSyncUnit{db: db}
}

func (u *DataSyncUnit) UnitName() string { return "datasync" }

func (u *DataSyncUnit) Schedules() *schedule.Set {
	return schedule.NewSet().
		Add("RefreshQuotes", u.RefreshQuotes, schedule.Options{
			Cron:     "0 */10 * * * *",
			Name:     "refresh market quotes",
			Branch:   model.BranchDataIngestion,
			Priority: 10,
			Retries:  2,
		}).
		Add("SyncReferenceData", u.SyncReferenceData, schedule.Options{
			Cron:     "0 5 * * * *",
			Name:     "sync reference data",
			Branch:   model.BranchDataIngestion,
			Priority: 5,
			Retries:  1,
			Timeout:  10 * time.Minute,
		})
}

// RefreshQuotes marks stale quote records for re-fetch. The fetch itself
// is performed by the ingestion workers watching the staleness flag.
func (u *DataSyncUnit) RefreshQuotes(ctx context.Context) error {
	started := time.Now()

	query := `UPDATE quote SET stale = true WHERE updated_at < time::now() - 10m`
	if err := u.db.Execute(ctx, query, nil); err != nil {
		return fmt.Errorf("flag stale quotes: %w", err)
	}

	slog.Info("quote refresh pass complete",
		slog.Duration("took", time.Since(started)),
	)
	return nil
}

// SyncReferenceData reconciles the reference tables against the staging
// records the upstream feed writes.
func (u *DataSyncUnit) SyncReferenceData(ctx context.Context) error {
	started := time.Now()

	query := `
		UPDATE reference_data SET
			value = staging.value,
			synced_at = time::now()
		FROM (SELECT * FROM reference_staging WHERE applied = false) AS staging
		WHERE id = staging.reference
	`
	if err := u.db.Execute(ctx, query, nil); err != nil {
		return fmt.Errorf("sync reference data: %w", err)
	}
	if err := u.db.Execute(ctx, `UPDATE reference_staging SET applied = true WHERE applied = false`, nil); err != nil {
		return fmt.Errorf("mark staging applied: %w", err)
	}

	slog.Info("reference data sync complete",
		slog.Duration("took", time.Since(started)),
	)
	return nil
}
