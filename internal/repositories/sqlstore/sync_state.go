package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/vinylyard/api/internal/domain"
	"github.com/vinylyard/api/internal/repositories"
)

type syncStateRepository struct {
	db *sql.DB
	d  dialect
}

func (r *syncStateRepository) Load(ctx context.Context) (domain.LastSyncInfo, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var info domain.LastSyncInfo
	err := r.db.QueryRowContext(ctx,
		"SELECT last_sync, last_sync_count, location_id, run_id, is_complete FROM sync_state WHERE id = 1").
		Scan(&info.LastSync, &info.LastSyncCount, &info.LocationID, &info.RunID, &info.IsComplete)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LastSyncInfo{}, nil
	}
	if err != nil {
		return domain.LastSyncInfo{}, repositories.NewProductError("sync_state.load", repositories.ProductErrorUnavailable, err)
	}
	info.LastSync = info.LastSync.UTC()
	return info, nil
}

// Record upserts the single state row. The count accumulates across chunks of one pass.
func (r *syncStateRepository) Record(ctx context.Context, update repositories.SyncStateUpdate) (domain.LastSyncInfo, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO sync_state (id, last_sync, last_sync_count, location_id, run_id, is_complete)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_sync = excluded.last_sync,
			last_sync_count = CASE WHEN ? THEN excluded.last_sync_count
				ELSE sync_state.last_sync_count + excluded.last_sync_count END,
			location_id = excluded.location_id,
			run_id = excluded.run_id,
			is_complete = excluded.is_complete`
	_, err := r.db.ExecContext(ctx, r.d.rebind(query),
		update.SyncedAt.UTC(), update.Processed, update.LocationID, update.RunID, update.IsComplete, update.ResetCount)
	if err != nil {
		return domain.LastSyncInfo{}, repositories.NewProductError("sync_state.record", repositories.ProductErrorUnavailable, err)
	}
	return r.Load(ctx)
}
