package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forgo/cadence/api/internal/model"
	"github.com/forgo/cadence/api/internal/schedule"
)

// CacheMaintenanceUnit owns the cache-maintenance branch. It evicts
// derived-value keys from the shared key-value cache so readers fall
// through to fresh data after ingestion runs.
type CacheMaintenanceUnit struct {
	cache *redis.Client
}

// NewCacheMaintenanceUnit creates the cache-maintenance owning unit
func NewCacheMaintenanceUnit(cache *redis.Client) *CacheMaintenanceUnit {
	return &CacheMaintenanceUnit{cache: cache}
}

func (u *CacheMaintenanceUnit) UnitName() string { return "cachemaint" }

func (u *CacheMaintenanceUnit) Schedules() *schedule.Set {
	return schedule.NewSet().
		Add("EvictDerived", u.EvictDerived, schedule.Options{
			Cron:     "0 15 * * * *",
			Name:     "evict derived cache entries",
			Branch:   model.BranchCacheMaintenance,
			Priority: 5,
		}).
		Add("TrimSessionIndex", u.TrimSessionIndex, schedule.Options{
			Cron:   "0 30 3 * * *",
			Name:   "trim expired session index",
			Branch: model.BranchCacheMaintenance,
		})
}

// EvictDerived removes cached derived values so the next read recomputes
// them from the freshly ingested data.
func (u *CacheMaintenanceUnit) EvictDerived(ctx context.Context) error {
	return u.deleteByPattern(ctx, "derived:*")
}

// TrimSessionIndex drops session index entries whose backing session key
// already expired. Redis expires the sessions themselves; the index is
// ours to keep tidy.
func (u *CacheMaintenanceUnit) TrimSessionIndex(ctx context.Context) error {
	members, err := u.cache.SMembers(ctx, "sessions:index").Result()
	if err != nil {
		return fmt.Errorf("read session index: %w", err)
	}

	trimmed := 0
	for _, member := range members {
		exists, err := u.cache.Exists(ctx, "session:"+member).Result()
		if err != nil {
			return fmt.Errorf("check session %s: %w", member, err)
		}
		if exists == 0 {
			if err := u.cache.SRem(ctx, "sessions:index", member).Err(); err != nil {
				return fmt.Errorf("trim session %s: %w", member, err)
			}
			trimmed++
		}
	}

	slog.Info("session index trimmed", slog.Int("removed", trimmed))
	return nil
}

func (u *CacheMaintenanceUnit) deleteByPattern(ctx context.Context, pattern string) error {
	started := time.Now()
	deleted := 0

	iter := u.cache.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		if err := u.cache.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", pattern, err)
	}

	slog.Info("cache eviction pass complete",
		slog.String("pattern", pattern),
		slog.Int("deleted", deleted),
		slog.Duration("took", time.Since(started)),
	)
	return nil
}
