package models

import (
	"encoding/json"
	"time"
)

// SyncTables is the static allowlist of tables that may appear in a push or
// pull request. Anything outside this set is a validation error (§4.2).
var SyncTables = map[string]bool{
	"threads":       true,
	"messages":      true,
	"projects":      true,
	"posts":         true,
	"kv":            true,
	"file_meta":     true,
	"notifications": true,
}

// Op is the mutation kind carried by a PendingOp / ChangeLogEntry.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Stamp is the client-generated provenance attached to every pending op.
type Stamp struct {
	DeviceID string `json:"device_id"`
	OpID     string `json:"op_id"`
	HLC      string `json:"hlc"`
	Clock    int64  `json:"clock"`
}

// PendingOp is a single mutation submitted in a push batch.
type PendingOp struct {
	TableName string          `json:"table_name"`
	Operation Op              `json:"operation"`
	PK        string          `json:"pk"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Stamp     Stamp           `json:"stamp"`
}

// ServerVersionCounter holds the monotonic per-workspace version cursor.
// Exactly one row per workspace that has ever received a push (I1, I2).
type ServerVersionCounter struct {
	WorkspaceID string `db:"workspace_id"`
	Value       int64  `db:"value"`
}

// ChangeLogEntry is one durable row in the append-only change log.
// Unique globally on OpID (I3); unique per workspace on ServerVersion (I1).
type ChangeLogEntry struct {
	ID            string    `db:"id" json:"-"`
	WorkspaceID   string    `db:"workspace_id" json:"-"`
	ServerVersion int64     `db:"server_version" json:"server_version"`
	TableName     string    `db:"table_name" json:"table_name"`
	PK            string    `db:"pk" json:"pk"`
	Op            Op        `db:"op" json:"op"`
	PayloadJSON   *string   `db:"payload_json" json:"-"`
	Clock         int64     `db:"clock" json:"-"`
	HLC           string    `db:"hlc" json:"-"`
	DeviceID      string    `db:"device_id" json:"-"`
	OpID          string    `db:"op_id" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"-"`
}

// DeviceCursor is the forward-only per-(workspace, device) high-water mark.
type DeviceCursor struct {
	ID               string    `db:"id"`
	WorkspaceID      string    `db:"workspace_id"`
	DeviceID         string    `db:"device_id"`
	LastSeenVersion  int64     `db:"last_seen_version"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Tombstone is the durable marker that a logical key was deleted. Unique on
// (workspace_id, table_name, pk) — I5.
type Tombstone struct {
	ID            string    `db:"id"`
	WorkspaceID   string    `db:"workspace_id"`
	TableName     string    `db:"table_name"`
	PK            string    `db:"pk"`
	DeletedAt     time.Time `db:"deleted_at"`
	Clock         int64     `db:"clock"`
	ServerVersion int64     `db:"server_version"`
	CreatedAt     time.Time `db:"created_at"`
}

// MaterializedRow is the LWW-winning row for a (workspace, table, pk) key.
type MaterializedRow struct {
	WorkspaceID string    `db:"workspace_id"`
	ID          string    `db:"id"`
	DataJSON    string    `db:"data_json"`
	Clock       int64     `db:"clock"`
	HLC         string    `db:"hlc"`
	DeviceID    string    `db:"device_id"`
	Deleted     bool      `db:"deleted"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Change is the pull-response projection of a ChangeLogEntry.
type Change struct {
	ServerVersion int64           `json:"server_version"`
	TableName     string          `json:"table_name"`
	PK            string          `json:"pk"`
	Op            Op              `json:"op"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Stamp         Stamp           `json:"stamp"`
}
