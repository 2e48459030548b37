package syncgw

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/models"
)

// Pull implements §4.5. It does not mutate state and may run outside any
// transaction: reads only ever observe committed change-log rows.
func (g *Gateway) Pull(ctx context.Context, req PullRequest) (*PullResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > maxPullLimit {
		limit = maxPullLimit
	}
	for _, t := range req.Tables {
		if !models.SyncTables[t] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTable, t)
		}
	}

	query := `SELECT * FROM change_log WHERE workspace_id = ? AND server_version > ?`
	args := []any{req.WorkspaceID, req.Cursor}
	if len(req.Tables) > 0 {
		inQuery, inArgs, err := sqlx.In(query+` AND table_name IN (?)`, append(args, req.Tables)...)
		if err != nil {
			return nil, err
		}
		query, args = inQuery, inArgs
	}
	query += ` ORDER BY server_version ASC LIMIT ?`
	args = append(args, limit+1)
	query = g.db.Rebind(query)

	var rows []models.ChangeLogEntry
	if err := g.db.SelectContext(ctx, &rows, query, args...); err != nil {
		g.logger.WithError(err).WithField("workspace_id", req.WorkspaceID).Error("syncgw: pull failed")
		return nil, fmt.Errorf("syncgw: pull: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	changes := make([]models.Change, 0, len(rows))
	nextCursor := req.Cursor
	for _, row := range rows {
		var payload json.RawMessage
		if row.PayloadJSON != nil {
			payload = json.RawMessage(*row.PayloadJSON)
		}
		changes = append(changes, models.Change{
			ServerVersion: row.ServerVersion,
			TableName:     row.TableName,
			PK:            row.PK,
			Op:            row.Op,
			Payload:       payload,
			Stamp: models.Stamp{
				DeviceID: row.DeviceID,
				OpID:     row.OpID,
				HLC:      row.HLC,
				Clock:    row.Clock,
			},
		})
		nextCursor = row.ServerVersion
	}

	return &PullResponse{Changes: changes, HasMore: hasMore, NextCursor: nextCursor}, nil
}
