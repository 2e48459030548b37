package syncgw

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/models"
)

// upsertTombstone implements §4.4: on every delete op, upsert a tombstone
// keyed by (workspace_id, table_name, pk), updating only when the incoming
// op wins by (clock, server_version) lexicographic comparison.
func upsertTombstone(ctx context.Context, tx *sqlx.Tx, workspaceID, tableName, pk string, clock, serverVersion int64, now time.Time) error {
	var existing models.Tombstone
	query := `SELECT * FROM tombstones WHERE workspace_id = ? AND table_name = ? AND pk = ?`
	err := tx.GetContext(ctx, &existing, query, workspaceID, tableName, pk)

	if err == sql.ErrNoRows {
		insert := `
			INSERT INTO tombstones (id, workspace_id, table_name, pk, deleted_at, clock, server_version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := tx.ExecContext(ctx, insert, uuid.NewString(), workspaceID, tableName, pk, now, clock, serverVersion, now)
		return err
	}
	if err != nil {
		return err
	}

	wins := clock > existing.Clock || (clock == existing.Clock && serverVersion > existing.ServerVersion)
	if !wins {
		return nil
	}

	update := `
		UPDATE tombstones SET clock = ?, server_version = ?, deleted_at = ?
		WHERE workspace_id = ? AND table_name = ? AND pk = ?
	`
	_, err = tx.ExecContext(ctx, update, clock, serverVersion, now, workspaceID, tableName, pk)
	return err
}
