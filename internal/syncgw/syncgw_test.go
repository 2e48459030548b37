package syncgw

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/db"
	"github.com/quckapp/syncgateway/internal/models"
	"github.com/sirupsen/logrus"
)

func setupGateway(t *testing.T) (*sqlx.DB, *Gateway) {
	t.Helper()
	conn, err := db.NewSQLite(":memory:", db.PragmaConfig{JournalMode: "WAL", Synchronous: "NORMAL"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.RunMigrations(context.Background(), conn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(discardWriter{})
	return conn, NewGateway(conn, logger)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func op(table, pk string, operation models.Op, clock int64, hlc string, payload string) models.PendingOp {
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}
	return models.PendingOp{
		TableName: table,
		Operation: operation,
		PK:        pk,
		Payload:   raw,
		Stamp: models.Stamp{
			DeviceID: "device-a",
			OpID:     uuid.NewString(),
			HLC:      hlc,
			Clock:    clock,
		},
	}
}

// P1: server_version is contiguous and monotonic per workspace.
func TestPush_MonotonicAllocation(t *testing.T) {
	_, gw := setupGateway(t)
	ctx := context.Background()

	batch := PushBatch{
		WorkspaceID: "ws-1",
		Ops: []models.PendingOp{
			op("threads", "t1", models.OpPut, 1, "h1", `{"a":1}`),
			op("threads", "t2", models.OpPut, 2, "h2", `{"a":2}`),
			op("threads", "t3", models.OpPut, 3, "h3", `{"a":3}`),
		},
	}
	resp, err := gw.Push(ctx, batch)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if resp.ServerVersion != 3 {
		t.Fatalf("expected server_version 3, got %d", resp.ServerVersion)
	}
	for i, r := range resp.Results {
		if !r.Success {
			t.Fatalf("op %d: expected success, got error %s", i, r.Error)
		}
		if r.ServerVersion != int64(i+1) {
			t.Fatalf("op %d: expected version %d, got %d", i, i+1, r.ServerVersion)
		}
	}
}

// P2 / L1: re-submitting the same op_id is a no-op that replays the original
// server_version rather than allocating a new one.
func TestPush_IdempotentReplay(t *testing.T) {
	conn, gw := setupGateway(t)
	ctx := context.Background()

	o := op("threads", "t1", models.OpPut, 1, "h1", `{"a":1}`)
	batch := PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{o}}

	first, err := gw.Push(ctx, batch)
	if err != nil {
		t.Fatalf("first push: %v", err)
	}
	second, err := gw.Push(ctx, batch)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if first.Results[0].ServerVersion != second.Results[0].ServerVersion {
		t.Fatalf("replay should reuse server_version: %d vs %d", first.Results[0].ServerVersion, second.Results[0].ServerVersion)
	}

	var count int
	if err := conn.Get(&count, `SELECT COUNT(*) FROM change_log WHERE op_id = ?`, o.Stamp.OpID); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one change_log row, got %d", count)
	}
}

// L2: a batch mixing new and already-seen op_ids only allocates versions for
// the new ones.
func TestPush_MixedBatchOnlyAllocatesNewOps(t *testing.T) {
	_, gw := setupGateway(t)
	ctx := context.Background()

	existing := op("threads", "t1", models.OpPut, 1, "h1", `{}`)
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{existing}}); err != nil {
		t.Fatalf("seed push: %v", err)
	}

	fresh := op("threads", "t2", models.OpPut, 2, "h2", `{}`)
	resp, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{existing, fresh}})
	if err != nil {
		t.Fatalf("mixed push: %v", err)
	}
	if resp.Results[0].ServerVersion != 1 {
		t.Fatalf("replayed op should keep version 1, got %d", resp.Results[0].ServerVersion)
	}
	if resp.Results[1].ServerVersion != 2 {
		t.Fatalf("new op should get version 2, got %d", resp.Results[1].ServerVersion)
	}
}

// Boundary: an empty batch is a valid no-op that reports the current counter.
func TestPush_EmptyBatch(t *testing.T) {
	_, gw := setupGateway(t)
	ctx := context.Background()

	resp, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: nil})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if resp.ServerVersion != 0 || len(resp.Results) != 0 {
		t.Fatalf("expected zero-version empty response, got %+v", resp)
	}
}

// Boundary: a batch referencing an unknown table is rejected whole, and the
// counter is left untouched.
func TestPush_UnknownTableRejectsWholeBatch(t *testing.T) {
	_, gw := setupGateway(t)
	ctx := context.Background()

	good := op("threads", "t1", models.OpPut, 1, "h1", `{}`)
	bad := op("not_a_real_table", "x1", models.OpPut, 1, "h1", `{}`)

	resp, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{good, bad}})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	for _, r := range resp.Results {
		if r.Success {
			t.Fatalf("expected every op to fail validation, got success for %s", r.OpID)
		}
		if r.ErrorCode != ErrorCodeValidation {
			t.Fatalf("expected validation error code, got %s", r.ErrorCode)
		}
	}
	if resp.ServerVersion != 0 {
		t.Fatalf("rejected batch must not allocate a counter, got %d", resp.ServerVersion)
	}
}

// P3: last-writer-wins by (clock, hlc); a higher clock always wins.
func TestLWW_HigherClockWins(t *testing.T) {
	conn, gw := setupGateway(t)
	ctx := context.Background()

	first := op("threads", "t1", models.OpPut, 1, "h1", `{"v":1}`)
	second := op("threads", "t1", models.OpPut, 5, "h1", `{"v":2}`)
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{first, second}}); err != nil {
		t.Fatalf("push: %v", err)
	}

	var dataJSON string
	if err := conn.Get(&dataJSON, `SELECT data_json FROM sync_threads WHERE workspace_id = ? AND id = ?`, "ws-1", "t1"); err != nil {
		t.Fatalf("read materialized row: %v", err)
	}
	if dataJSON != `{"v":2}` {
		t.Fatalf("expected the higher-clock write to win, got %s", dataJSON)
	}
}

// P3 continued: when clocks tie, the lexicographically greater HLC wins.
func TestLWW_TieBreaksOnHLC(t *testing.T) {
	conn, gw := setupGateway(t)
	ctx := context.Background()

	lower := op("threads", "t1", models.OpPut, 3, "2026-01-01T00:00:00.000Z-a", `{"v":"lower"}`)
	higher := op("threads", "t1", models.OpPut, 3, "2026-01-01T00:00:00.000Z-b", `{"v":"higher"}`)
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{lower, higher}}); err != nil {
		t.Fatalf("push: %v", err)
	}

	var dataJSON string
	if err := conn.Get(&dataJSON, `SELECT data_json FROM sync_threads WHERE workspace_id = ? AND id = ?`, "ws-1", "t1"); err != nil {
		t.Fatalf("read materialized row: %v", err)
	}
	if dataJSON != `{"v":"higher"}` {
		t.Fatalf("expected the lexicographically greater HLC to win, got %s", dataJSON)
	}
}

// P3 continued: a losing write never overwrites the winner, even when it
// arrives in a later push.
func TestLWW_LosingWriteIsDropped(t *testing.T) {
	conn, gw := setupGateway(t)
	ctx := context.Background()

	winner := op("threads", "t1", models.OpPut, 10, "h1", `{"v":"winner"}`)
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{winner}}); err != nil {
		t.Fatalf("push winner: %v", err)
	}
	loser := op("threads", "t1", models.OpPut, 2, "h9", `{"v":"loser"}`)
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{loser}}); err != nil {
		t.Fatalf("push loser: %v", err)
	}

	var dataJSON string
	if err := conn.Get(&dataJSON, `SELECT data_json FROM sync_threads WHERE workspace_id = ? AND id = ?`, "ws-1", "t1"); err != nil {
		t.Fatalf("read materialized row: %v", err)
	}
	if dataJSON != `{"v":"winner"}` {
		t.Fatalf("a later, lower-clock write must not overwrite the winner, got %s", dataJSON)
	}
}

// P4: a delete wins/loses by the same (clock, hlc) rule as a put, and
// produces exactly one tombstone per (workspace, table, pk).
func TestTombstone_WinnerOnly(t *testing.T) {
	conn, gw := setupGateway(t)
	ctx := context.Background()

	del := op("threads", "t1", models.OpDelete, 5, "h5", "")
	stalePut := op("threads", "t1", models.OpPut, 1, "h1", `{"v":"late but stale"}`)
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{del, stalePut}}); err != nil {
		t.Fatalf("push: %v", err)
	}

	var tombstoneCount int
	if err := conn.Get(&tombstoneCount, `SELECT COUNT(*) FROM tombstones WHERE workspace_id = ? AND table_name = ? AND pk = ?`, "ws-1", "threads", "t1"); err != nil {
		t.Fatalf("count tombstones: %v", err)
	}
	if tombstoneCount != 1 {
		t.Fatalf("expected exactly one tombstone, got %d", tombstoneCount)
	}

	var deleted bool
	if err := conn.Get(&deleted, `SELECT deleted FROM sync_threads WHERE workspace_id = ? AND id = ?`, "ws-1", "t1"); err != nil {
		t.Fatalf("read materialized row: %v", err)
	}
	if !deleted {
		t.Fatalf("expected the materialized row to remain deleted after a stale, lower-clock put")
	}
}

// P5 / I6: updateCursor never regresses a device's high-water mark.
func TestUpdateCursor_ForwardOnly(t *testing.T) {
	conn, gw := setupGateway(t)
	ctx := context.Background()

	if err := gw.UpdateCursor(ctx, "ws-1", "device-a", 5); err != nil {
		t.Fatalf("update cursor: %v", err)
	}
	if err := gw.UpdateCursor(ctx, "ws-1", "device-a", 2); err != nil {
		t.Fatalf("update cursor (regression attempt): %v", err)
	}

	var version int64
	if err := conn.Get(&version, `SELECT last_seen_version FROM device_cursors WHERE workspace_id = ? AND device_id = ?`, "ws-1", "device-a"); err != nil {
		t.Fatalf("read cursor: %v", err)
	}
	if version != 5 {
		t.Fatalf("expected cursor to stay at high-water mark 5, got %d", version)
	}
}

// P6: pull returns changes in ascending server_version order and advances
// the cursor to the last returned version.
func TestPull_OrderingAndCursor(t *testing.T) {
	_, gw := setupGateway(t)
	ctx := context.Background()

	ops := []models.PendingOp{
		op("threads", "t1", models.OpPut, 1, "h1", `{}`),
		op("messages", "m1", models.OpPut, 2, "h2", `{}`),
		op("threads", "t2", models.OpPut, 3, "h3", `{}`),
	}
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: ops}); err != nil {
		t.Fatalf("push: %v", err)
	}

	resp, err := gw.Pull(ctx, PullRequest{WorkspaceID: "ws-1", Cursor: 0, Limit: 100})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(resp.Changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(resp.Changes))
	}
	for i, c := range resp.Changes {
		if c.ServerVersion != int64(i+1) {
			t.Fatalf("expected ascending server_version, got %d at index %d", c.ServerVersion, i)
		}
	}
	if resp.NextCursor != 3 {
		t.Fatalf("expected next_cursor 3, got %d", resp.NextCursor)
	}
	if resp.HasMore {
		t.Fatalf("expected has_more=false when everything fit")
	}
}

// Boundary: pull paginates when more rows exist than the requested limit.
func TestPull_HasMore(t *testing.T) {
	_, gw := setupGateway(t)
	ctx := context.Background()

	var ops []models.PendingOp
	for i := 0; i < 5; i++ {
		ops = append(ops, op("threads", uuid.NewString(), models.OpPut, int64(i+1), "h", `{}`))
	}
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: ops}); err != nil {
		t.Fatalf("push: %v", err)
	}

	resp, err := gw.Pull(ctx, PullRequest{WorkspaceID: "ws-1", Cursor: 0, Limit: 2})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(resp.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(resp.Changes))
	}
	if !resp.HasMore {
		t.Fatalf("expected has_more=true")
	}
	if resp.NextCursor != 2 {
		t.Fatalf("expected next_cursor 2, got %d", resp.NextCursor)
	}
}

// Boundary: pull rejects an unknown table filter.
func TestPull_UnknownTableFilter(t *testing.T) {
	_, gw := setupGateway(t)
	ctx := context.Background()

	_, err := gw.Pull(ctx, PullRequest{WorkspaceID: "ws-1", Tables: []string{"bogus"}})
	if err == nil {
		t.Fatalf("expected an error for an unknown table filter")
	}
}

// P7: GC never removes change-log rows that a lagging device hasn't
// consumed yet, even when they are past the retention window.
func TestGC_RespectsSlowestCursor(t *testing.T) {
	conn, gw := setupGateway(t)
	ctx := context.Background()

	var ops []models.PendingOp
	for i := 0; i < 3; i++ {
		ops = append(ops, op("threads", uuid.NewString(), models.OpPut, int64(i+1), "h", `{}`))
	}
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: ops}); err != nil {
		t.Fatalf("push: %v", err)
	}
	// One device has only consumed the first two changes; GC must not
	// reclaim anything at or after its cursor.
	if err := gw.UpdateCursor(ctx, "ws-1", "device-a", 2); err != nil {
		t.Fatalf("update cursor: %v", err)
	}

	deleted, err := gw.GCChangeLog(ctx, "ws-1", -1*time.Hour)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected exactly 1 row reclaimed (version < 2), got %d", deleted)
	}

	var remaining int64
	if err := conn.Get(&remaining, `SELECT COUNT(*) FROM change_log WHERE workspace_id = ?`, "ws-1"); err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 rows remaining at/after the slowest cursor, got %d", remaining)
	}
}

// Boundary: with no device cursors recorded, GC treats the minimum cursor as
// zero and reclaims nothing, since every row has server_version >= 1.
func TestGC_NoCursorsReclaimsNothing(t *testing.T) {
	_, gw := setupGateway(t)
	ctx := context.Background()

	o := op("threads", "t1", models.OpPut, 1, "h1", `{}`)
	if _, err := gw.Push(ctx, PushBatch{WorkspaceID: "ws-1", Ops: []models.PendingOp{o}}); err != nil {
		t.Fatalf("push: %v", err)
	}

	deleted, err := gw.GCChangeLog(ctx, "ws-1", -1*time.Hour)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected no rows reclaimed with no cursors recorded, got %d", deleted)
	}
}
