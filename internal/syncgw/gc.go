package syncgw

import (
	"context"
	"fmt"
	"time"
)

// GCChangeLog implements §4.7's change-log GC: rows are only eligible once
// every device cursor has passed them and they are older than the retention
// window, so no lagging device is ever starved of changes.
func (g *Gateway) GCChangeLog(ctx context.Context, workspaceID string, retention time.Duration) (int64, error) {
	minCursor, err := g.minCursor(ctx, workspaceID)
	if err != nil {
		g.logger.WithError(err).WithField("workspace_id", workspaceID).Error("syncgw: gc change log: read min cursor failed")
		return 0, fmt.Errorf("syncgw: gc change log: read min cursor: %w", err)
	}
	cutoff := time.Now().UTC().Add(-retention)

	query := `
		DELETE FROM change_log WHERE id IN (
			SELECT id FROM change_log
			WHERE workspace_id = ? AND server_version < ? AND created_at < ?
			LIMIT ?
		)
	`
	return g.gcLoop(ctx, query, workspaceID, minCursor, cutoff)
}

// GCTombstones applies the same predicate shape to the tombstones table.
func (g *Gateway) GCTombstones(ctx context.Context, workspaceID string, retention time.Duration) (int64, error) {
	minCursor, err := g.minCursor(ctx, workspaceID)
	if err != nil {
		g.logger.WithError(err).WithField("workspace_id", workspaceID).Error("syncgw: gc tombstones: read min cursor failed")
		return 0, fmt.Errorf("syncgw: gc tombstones: read min cursor: %w", err)
	}
	cutoff := time.Now().UTC().Add(-retention)

	query := `
		DELETE FROM tombstones WHERE id IN (
			SELECT id FROM tombstones
			WHERE workspace_id = ? AND server_version < ? AND created_at < ?
			LIMIT ?
		)
	`
	return g.gcLoop(ctx, query, workspaceID, minCursor, cutoff)
}

// gcLoop deletes in batches of gcBatchSize, bounding lock hold time, until a
// batch affects fewer rows than the batch size.
func (g *Gateway) gcLoop(ctx context.Context, query, workspaceID string, minCursor int64, cutoff time.Time) (int64, error) {
	var total int64
	for {
		res, err := g.db.ExecContext(ctx, query, workspaceID, minCursor, cutoff, gcBatchSize)
		if err != nil {
			g.logger.WithError(err).WithField("workspace_id", workspaceID).Error("syncgw: gc batch delete failed")
			return total, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			g.logger.WithError(err).WithField("workspace_id", workspaceID).Error("syncgw: gc rows-affected failed")
			return total, err
		}
		total += affected
		if affected < gcBatchSize {
			return total, nil
		}
	}
}

// minCursor returns the minimum last_seen_version across all device cursors
// for a workspace, or 0 if none exist.
func (g *Gateway) minCursor(ctx context.Context, workspaceID string) (int64, error) {
	var min *int64
	query := `SELECT MIN(last_seen_version) FROM device_cursors WHERE workspace_id = ?`
	if err := g.db.GetContext(ctx, &min, query, workspaceID); err != nil {
		return 0, err
	}
	if min == nil {
		return 0, nil
	}
	return *min, nil
}
