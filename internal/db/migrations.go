package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RunMigrations applies the durable schema in order. Every statement is
// written to be safely re-run against an already-migrated database.
func RunMigrations(ctx context.Context, conn *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT,
			display_name TEXT,
			active_workspace_id TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
		`CREATE TABLE IF NOT EXISTS auth_accounts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			provider TEXT NOT NULL,
			provider_user_id TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(provider, provider_user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS workspaces (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			owner_user_id TEXT NOT NULL REFERENCES users(id),
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS workspace_members (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id),
			user_id TEXT NOT NULL REFERENCES users(id),
			role TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(workspace_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS invites (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id),
			email TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			invited_by TEXT NOT NULL REFERENCES users(id),
			token_hash TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			accepted_at TEXT,
			accepted_user_id TEXT,
			revoked_at TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_invites_ws_email_status ON invites(workspace_id, email, status);`,
		`CREATE TABLE IF NOT EXISTS admin_users (
			user_id TEXT PRIMARY KEY REFERENCES users(id),
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			created_by TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS server_version_counters (
			workspace_id TEXT PRIMARY KEY,
			value INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS change_log (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			server_version INTEGER NOT NULL,
			table_name TEXT NOT NULL,
			pk TEXT NOT NULL,
			op TEXT NOT NULL,
			payload_json TEXT,
			clock INTEGER NOT NULL,
			hlc TEXT NOT NULL,
			device_id TEXT NOT NULL,
			op_id TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(workspace_id, server_version)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_change_log_ws_version ON change_log(workspace_id, server_version);`,
		`CREATE INDEX IF NOT EXISTS idx_change_log_ws_created ON change_log(workspace_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS device_cursors (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			last_seen_version INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(workspace_id, device_id)
		);`,
		`CREATE TABLE IF NOT EXISTS tombstones (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			table_name TEXT NOT NULL,
			pk TEXT NOT NULL,
			deleted_at TEXT NOT NULL,
			clock INTEGER NOT NULL,
			server_version INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(workspace_id, table_name, pk)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tombstones_ws_created ON tombstones(workspace_id, created_at);`,
	}

	for _, table := range materializedTables {
		statements = append(statements, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_%s (
			workspace_id TEXT NOT NULL,
			id TEXT NOT NULL,
			data_json TEXT NOT NULL DEFAULT '{}',
			clock INTEGER NOT NULL,
			hlc TEXT NOT NULL,
			device_id TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (workspace_id, id)
		);`, table))
	}

	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

// materializedTables names the sync tables that each get their own
// materialized-entity table, mirroring the allowlist in models.SyncTables.
var materializedTables = []string{
	"threads", "messages", "projects", "posts", "kv", "file_meta", "notifications",
}

// MaterializedTableName maps a sync table name to its backing storage table.
func MaterializedTableName(table string) string {
	return "sync_" + table
}
