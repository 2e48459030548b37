package syncgw

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/db"
	"github.com/quckapp/syncgateway/internal/models"
)

// applyLWW implements §4.3. Comparison uses the op's (clock, hlc) against
// the existing materialized row's; HLC is compared lexicographically as a
// Go string, per the spec's stated assumption that HLC strings sort in
// ASCII order matching intended HLC order (§9 Open Questions).
func applyLWW(ctx context.Context, tx *sqlx.Tx, workspaceID string, op models.PendingOp, now time.Time) error {
	table := db.MaterializedTableName(op.TableName)

	var existing models.MaterializedRow
	query := `SELECT * FROM ` + table + ` WHERE workspace_id = ? AND id = ?`
	err := tx.GetContext(ctx, &existing, query, workspaceID, op.PK)

	dataJSON := "{}"
	if len(op.Payload) > 0 {
		dataJSON = string(op.Payload)
	}
	deleted := 0
	if op.Operation == models.OpDelete {
		deleted = 1
		dataJSON = "{}"
	}

	if err == sql.ErrNoRows {
		insert := `
			INSERT INTO ` + table + ` (workspace_id, id, data_json, clock, hlc, device_id, deleted, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.ExecContext(ctx, insert, workspaceID, op.PK, dataJSON, op.Stamp.Clock, op.Stamp.HLC, op.Stamp.DeviceID, deleted, now, now)
		return err
	}
	if err != nil {
		return err
	}

	wins := op.Stamp.Clock > existing.Clock || (op.Stamp.Clock == existing.Clock && op.Stamp.HLC > existing.HLC)
	if !wins {
		return nil
	}

	update := `
		UPDATE ` + table + ` SET data_json = ?, clock = ?, hlc = ?, device_id = ?, deleted = ?, updated_at = ?
		WHERE workspace_id = ? AND id = ?
	`
	_, err = tx.ExecContext(ctx, update, dataJSON, op.Stamp.Clock, op.Stamp.HLC, op.Stamp.DeviceID, deleted, now, workspaceID, op.PK)
	return err
}
