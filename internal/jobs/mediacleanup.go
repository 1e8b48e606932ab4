package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgo/cadence/api/internal/broker"
	"github.com/forgo/cadence/api/internal/database"
	"github.com/forgo/cadence/api/internal/model"
	"github.com/forgo/cadence/api/internal/schedule"
)

// purgeBatchSize bounds how many media ids one broker task carries
const purgeBatchSize = 100

// Enqueuer is the slice of the broker the media cleanup jobs need
type Enqueuer interface {
	Enqueue(ctx context.Context, jobName string, payload interface{}, opts broker.EnqueueOptions) (string, error)
}

// MediaCleanupUnit owns the media-cleanup branch. Deleting media objects
// is high-volume and embarrassingly parallel, so the job body only finds
// candidates and dispatches purge batches to the broker; the worker
// fleet does the actual deletes at-least-once.
type MediaCleanupUnit struct {
	db    database.Database
	queue Enqueuer
}

// NewMediaCleanupUnit creates the media-cleanup owning unit
func NewMediaCleanupUnit(db database.Database, queue Enqueuer) *MediaCleanupUnit {
	return &MediaCleanupUnit{db: db, queue: queue}
}

func (u *MediaCleanupUnit) UnitName() string { return "mediacleanup" }

func (u *MediaCleanupUnit) Schedules() *schedule.Set {
	return schedule.NewSet().
		Add("DispatchPurges", u.DispatchPurges, schedule.Options{
			Cron:     "0 0 4 * * *",
			Name:     "dispatch media purge batches",
			Branch:   model.BranchMediaCleanup,
			Priority: 5,
			Timeout:  10 * time.Minute,
			Retries:  1,
		})
}

// DispatchPurges finds orphaned media records and enqueues them in
// batches for the purge workers.
func (u *MediaCleanupUnit) DispatchPurges(ctx context.Context) error {
	started := time.Now()

	query := `SELECT meta::id(id) AS id FROM media WHERE orphaned = true AND orphaned_at < time::now() - 7d`
	results, err := u.db.Query(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("find orphaned media: %w", err)
	}

	ids := extractIDs(results)
	batches := 0
	for start := 0; start < len(ids); start += purgeBatchSize {
		end := start + purgeBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		payload := map[string]interface{}{"media_ids": ids[start:end]}
		if _, err := u.queue.Enqueue(ctx, "media-purge", payload, broker.EnqueueOptions{Priority: 1}); err != nil {
			return fmt.Errorf("enqueue purge batch: %w", err)
		}
		batches++
	}

	slog.Info("media purge dispatch complete",
		slog.Int("candidates", len(ids)),
		slog.Int("batches", batches),
		slog.Duration("took", time.Since(started)),
	)
	return nil
}

// extractIDs pulls id fields out of a SurrealDB query response
func extractIDs(results []interface{}) []string {
	ids := make([]string, 0)
	for _, result := range results {
		resp, ok := result.(map[string]interface{})
		if !ok {
			continue
		}
		if status, ok := resp["status"].(string); !ok || status != "OK" {
			continue
		}
		records, ok := resp["result"].([]interface{})
		if !ok {
			continue
		}
		for _, record := range records {
			if data, ok := record.(map[string]interface{}); ok {
				if id, ok := data["id"].(string); ok && id != "" {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}
