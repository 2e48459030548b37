package syncgw

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/db"
	"github.com/quckapp/syncgateway/internal/models"
)

// idempotencyProbeChunk bounds how many op_ids are checked in a single IN(...)
// lookup, respecting per-statement parameter limits (§4.2 step 4).
const idempotencyProbeChunk = 400

// Push implements §4.2. It runs as a single immediate-mode transaction:
// validation happens before the transaction opens (an invalid batch never
// touches the writer lock), everything else commits or rolls back together.
func (g *Gateway) Push(ctx context.Context, batch PushBatch) (*PushResponse, error) {
	if len(batch.Ops) == 0 {
		current, err := g.currentVersion(ctx, g.db, batch.WorkspaceID)
		if err != nil {
			g.logger.WithError(err).WithField("workspace_id", batch.WorkspaceID).Error("syncgw: push: read counter failed")
			return nil, fmt.Errorf("syncgw: read counter: %w", err)
		}
		return &PushResponse{Results: []OpResult{}, ServerVersion: current}, nil
	}

	for _, op := range batch.Ops {
		if !models.SyncTables[op.TableName] {
			results := make([]OpResult, len(batch.Ops))
			for i, o := range batch.Ops {
				results[i] = OpResult{OpID: o.Stamp.OpID, Success: false, ErrorCode: ErrorCodeValidation, Error: fmt.Sprintf("unknown table %q", o.TableName)}
			}
			current, _ := g.currentVersion(ctx, g.db, batch.WorkspaceID)
			return &PushResponse{Results: results, ServerVersion: current}, nil
		}
	}

	tx, err := db.BeginImmediate(ctx, g.db)
	if err != nil {
		g.logger.WithError(err).WithField("workspace_id", batch.WorkspaceID).Error("syncgw: push: begin transaction failed")
		return nil, fmt.Errorf("syncgw: begin push: %w", err)
	}
	defer tx.Rollback()

	resp, err := g.pushLocked(ctx, tx, batch)
	if err != nil {
		g.logger.WithError(err).WithField("workspace_id", batch.WorkspaceID).Error("syncgw: push: apply failed")
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		g.logger.WithError(err).WithField("workspace_id", batch.WorkspaceID).Error("syncgw: push: commit failed")
		return nil, fmt.Errorf("syncgw: commit push: %w", err)
	}
	return resp, nil
}

func (g *Gateway) pushLocked(ctx context.Context, tx *sqlx.Tx, batch PushBatch) (*PushResponse, error) {
	existing, err := g.probeExisting(ctx, tx, batch.WorkspaceID, batch.Ops)
	if err != nil {
		return nil, fmt.Errorf("syncgw: idempotency probe: %w", err)
	}

	// Intra-batch dedupe: first-occurrence order determines allocation order.
	assigned := make(map[string]int64, len(batch.Ops))
	var newOpIDs []string
	for _, op := range batch.Ops {
		if _, ok := existing[op.Stamp.OpID]; ok {
			continue
		}
		if _, seen := assigned[op.Stamp.OpID]; seen {
			continue
		}
		assigned[op.Stamp.OpID] = 0 // placeholder, version filled below
		newOpIDs = append(newOpIDs, op.Stamp.OpID)
	}

	base, err := g.currentVersionTx(ctx, tx, batch.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("syncgw: read counter: %w", err)
	}
	n := int64(len(newOpIDs))
	for i, opID := range newOpIDs {
		assigned[opID] = base + int64(i+1)
	}
	if n > 0 {
		if err := g.setCounterTx(ctx, tx, batch.WorkspaceID, base+n); err != nil {
			return nil, fmt.Errorf("syncgw: allocate counter: %w", err)
		}
	}

	now := time.Now().UTC()
	results := make([]OpResult, 0, len(batch.Ops))
	applied := make(map[string]bool, len(newOpIDs))
	for _, op := range batch.Ops {
		if sv, ok := existing[op.Stamp.OpID]; ok {
			results = append(results, OpResult{OpID: op.Stamp.OpID, Success: true, ServerVersion: sv})
			continue
		}
		sv := assigned[op.Stamp.OpID]
		if applied[op.Stamp.OpID] {
			results = append(results, OpResult{OpID: op.Stamp.OpID, Success: true, ServerVersion: sv})
			continue
		}
		if err := g.applyOp(ctx, tx, batch.WorkspaceID, op, sv, now); err != nil {
			return nil, fmt.Errorf("syncgw: apply op %s: %w", op.Stamp.OpID, err)
		}
		applied[op.Stamp.OpID] = true
		results = append(results, OpResult{OpID: op.Stamp.OpID, Success: true, ServerVersion: sv})
	}

	return &PushResponse{Results: results, ServerVersion: base + n}, nil
}

// probeExisting looks up which op_ids in the batch already have a change-log
// row, in bounded chunks.
func (g *Gateway) probeExisting(ctx context.Context, tx *sqlx.Tx, workspaceID string, ops []models.PendingOp) (map[string]int64, error) {
	existing := make(map[string]int64)
	seen := make(map[string]bool)
	var opIDs []string
	for _, op := range ops {
		if seen[op.Stamp.OpID] {
			continue
		}
		seen[op.Stamp.OpID] = true
		opIDs = append(opIDs, op.Stamp.OpID)
	}

	for start := 0; start < len(opIDs); start += idempotencyProbeChunk {
		end := start + idempotencyProbeChunk
		if end > len(opIDs) {
			end = len(opIDs)
		}
		chunk := opIDs[start:end]

		query, args, err := sqlx.In(`SELECT op_id, server_version FROM change_log WHERE workspace_id = ? AND op_id IN (?)`, workspaceID, chunk)
		if err != nil {
			return nil, err
		}
		query = tx.Rebind(query)

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var opID string
			var sv int64
			if err := rows.Scan(&opID, &sv); err != nil {
				rows.Close()
				return nil, err
			}
			existing[opID] = sv
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

func (g *Gateway) currentVersion(ctx context.Context, q sqlx.QueryerContext, workspaceID string) (int64, error) {
	var value int64
	err := sqlx.GetContext(ctx, q, &value, `SELECT value FROM server_version_counters WHERE workspace_id = ?`, workspaceID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return value, err
}

func (g *Gateway) currentVersionTx(ctx context.Context, tx *sqlx.Tx, workspaceID string) (int64, error) {
	var value int64
	err := tx.GetContext(ctx, &value, `SELECT value FROM server_version_counters WHERE workspace_id = ?`, workspaceID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return value, err
}

func (g *Gateway) setCounterTx(ctx context.Context, tx *sqlx.Tx, workspaceID string, value int64) error {
	query := `
		INSERT INTO server_version_counters (workspace_id, value) VALUES (?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET value = excluded.value
	`
	_, err := tx.ExecContext(ctx, query, workspaceID, value)
	return err
}

// applyOp writes one change-log row, applies LWW to the materialized table,
// and upserts a tombstone on delete (§4.2 step 7).
func (g *Gateway) applyOp(ctx context.Context, tx *sqlx.Tx, workspaceID string, op models.PendingOp, serverVersion int64, now time.Time) error {
	var payloadJSON *string
	if len(op.Payload) > 0 {
		s := string(op.Payload)
		payloadJSON = &s
	}

	insert := `
		INSERT INTO change_log (id, workspace_id, server_version, table_name, pk, op, payload_json, clock, hlc, device_id, op_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, insert, uuid.NewString(), workspaceID, serverVersion, op.TableName, op.PK, op.Operation, payloadJSON, op.Stamp.Clock, op.Stamp.HLC, op.Stamp.DeviceID, op.Stamp.OpID, now)
	if err != nil {
		return err
	}

	if err := applyLWW(ctx, tx, workspaceID, op, now); err != nil {
		return err
	}

	if op.Operation == models.OpDelete {
		if err := upsertTombstone(ctx, tx, workspaceID, op.TableName, op.PK, op.Stamp.Clock, serverVersion, now); err != nil {
			return err
		}
	}
	return nil
}
