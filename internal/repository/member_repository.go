package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/models"
)

type MemberRepository struct {
	db *sqlx.DB
}

func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, m *models.WorkspaceMember) error {
	query := `INSERT INTO workspace_members (id, workspace_id, user_id, role, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, m.ID, m.WorkspaceID, m.UserID, m.Role, m.CreatedAt)
	return err
}

func (r *MemberRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, m *models.WorkspaceMember) error {
	query := `INSERT INTO workspace_members (id, workspace_id, user_id, role, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query, m.ID, m.WorkspaceID, m.UserID, m.Role, m.CreatedAt)
	return err
}

// UpsertTx inserts a membership or, if the (workspace, user) unique index
// already has a row, overwrites its role — the conflict-safe upsert
// consumeInvite relies on (§4.1, §5).
func (r *MemberRepository) UpsertTx(ctx context.Context, tx *sqlx.Tx, m *models.WorkspaceMember) error {
	query := `
		INSERT INTO workspace_members (id, workspace_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, user_id) DO UPDATE SET role = excluded.role
	`
	_, err := tx.ExecContext(ctx, query, m.ID, m.WorkspaceID, m.UserID, m.Role, m.CreatedAt)
	return err
}

func (r *MemberRepository) GetByWorkspaceAndUser(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	var m models.WorkspaceMember
	query := `SELECT * FROM workspace_members WHERE workspace_id = ? AND user_id = ?`
	err := r.db.GetContext(ctx, &m, query, workspaceID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &m, err
}

func (r *MemberRepository) GetByWorkspaceAndUserTx(ctx context.Context, tx *sqlx.Tx, workspaceID, userID string) (*models.WorkspaceMember, error) {
	var m models.WorkspaceMember
	query := `SELECT * FROM workspace_members WHERE workspace_id = ? AND user_id = ?`
	err := tx.GetContext(ctx, &m, query, workspaceID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &m, err
}

func (r *MemberRepository) ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]*models.WorkspaceMember, int64, error) {
	var members []*models.WorkspaceMember
	var total int64

	countQuery := `SELECT COUNT(*) FROM workspace_members WHERE workspace_id = ?`
	if err := r.db.GetContext(ctx, &total, countQuery, workspaceID); err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM workspace_members WHERE workspace_id = ? ORDER BY created_at ASC LIMIT ? OFFSET ?`
	err := r.db.SelectContext(ctx, &members, query, workspaceID, limit, offset)
	return members, total, err
}

func (r *MemberRepository) UpdateRole(ctx context.Context, workspaceID, userID string, role models.Role) error {
	query := `UPDATE workspace_members SET role = ? WHERE workspace_id = ? AND user_id = ?`
	_, err := r.db.ExecContext(ctx, query, role, workspaceID, userID)
	return err
}

func (r *MemberRepository) Remove(ctx context.Context, workspaceID, userID string) error {
	query := `DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ?`
	_, err := r.db.ExecContext(ctx, query, workspaceID, userID)
	return err
}

func (r *MemberRepository) GetRole(ctx context.Context, workspaceID, userID string) (models.Role, error) {
	var role models.Role
	query := `SELECT role FROM workspace_members WHERE workspace_id = ? AND user_id = ?`
	err := r.db.GetContext(ctx, &role, query, workspaceID, userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}
