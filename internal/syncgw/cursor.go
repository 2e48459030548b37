package syncgw

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpdateCursor implements §4.6: forward-only reconciliation via
// max(existing, incoming), upserted in one conflict-safe statement so two
// concurrent updates for the same device can never regress the cursor (I6).
func (g *Gateway) UpdateCursor(ctx context.Context, workspaceID, deviceID string, version int64) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO device_cursors (id, workspace_id, device_id, last_seen_version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, device_id) DO UPDATE SET
			last_seen_version = MAX(device_cursors.last_seen_version, excluded.last_seen_version),
			updated_at = excluded.updated_at
	`
	_, err := g.db.ExecContext(ctx, query, uuid.NewString(), workspaceID, deviceID, version, now)
	if err != nil {
		return fmt.Errorf("syncgw: update cursor: %w", err)
	}
	return nil
}
