// Package syncgw implements the sync gateway: push, pull, updateCursor and
// garbage collection over the change log, tombstones and per-table
// materialized rows (§4.2-4.7). Push runs one transaction grounded on the
// teacher's BeginTxx/defer-Rollback/Commit idiom, generalized to an
// immediate-mode begin so counter allocation cannot race (§5). Pull reads
// outside any transaction, UpdateCursor is a single upsert statement, and
// each GC batch is its own autocommit DELETE.
package syncgw

import (
	"errors"

	"github.com/quckapp/syncgateway/internal/models"
)

// ErrUnknownTable is returned by Pull when its table filter names a table
// outside the static allowlist. Push reports the same condition per op with
// ErrorCodeValidation instead of returning this error (§4.2 step 2).
var ErrUnknownTable = errors.New("syncgw: unknown table")

// PushBatch is the push request (§4.2).
type PushBatch struct {
	WorkspaceID string
	Ops         []models.PendingOp
}

// OpResult is one entry of the push response's results array.
type OpResult struct {
	OpID          string `json:"op_id"`
	Success       bool   `json:"success"`
	ServerVersion int64  `json:"server_version,omitempty"`
	Error         string `json:"error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
}

// PushResponse is the push response (§4.2).
type PushResponse struct {
	Results       []OpResult `json:"results"`
	ServerVersion int64      `json:"server_version"`
}

// PullRequest is the pull request (§4.5).
type PullRequest struct {
	WorkspaceID string
	Cursor      int64
	Limit       int
	Tables      []string
}

// PullResponse is the pull response (§4.5).
type PullResponse struct {
	Changes    []models.Change `json:"changes"`
	HasMore    bool            `json:"has_more"`
	NextCursor int64           `json:"next_cursor"`
}

const maxPullLimit = 1000

// ErrorCodeValidation is the op-level error code for an unknown table.
const ErrorCodeValidation = "VALIDATION_ERROR"

// ErrorCodeInternal is the op-level error code for an unexpected storage
// failure surfaced from step 8 of push.
const ErrorCodeInternal = "INTERNAL"

// gcBatchSize bounds each GC delete so a single GC call never holds the
// writer lock for an unbounded span (§4.7).
const gcBatchSize = 1000
