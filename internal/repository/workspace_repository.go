package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/models"
)

type WorkspaceRepository struct {
	db *sqlx.DB
}

func NewWorkspaceRepository(db *sqlx.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

func (r *WorkspaceRepository) Create(ctx context.Context, w *models.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, description, owner_user_id, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, 0)
	`
	_, err := r.db.ExecContext(ctx, query, w.ID, w.Name, w.Description, w.OwnerUserID, w.CreatedAt)
	return err
}

// CreateTx is the same insert run against an open transaction, used by
// createWorkspace's atomic workspace+membership write.
func (r *WorkspaceRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, w *models.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, description, owner_user_id, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, 0)
	`
	_, err := tx.ExecContext(ctx, query, w.ID, w.Name, w.Description, w.OwnerUserID, w.CreatedAt)
	return err
}

func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	var w models.Workspace
	query := `SELECT * FROM workspaces WHERE id = ?`
	err := r.db.GetContext(ctx, &w, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &w, err
}

func (r *WorkspaceRepository) Update(ctx context.Context, id, name string, description *string) error {
	query := `UPDATE workspaces SET name = ?, description = ? WHERE id = ? AND deleted = 0`
	_, err := r.db.ExecContext(ctx, query, name, description, id)
	return err
}

// SoftDeleteTx marks a workspace deleted inside an open transaction; the
// caller is responsible for re-homing affected users' active_workspace_id
// in the same transaction (§3 Lifecycle, §4.1 removeWorkspace).
func (r *WorkspaceRepository) SoftDeleteTx(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
	query := `UPDATE workspaces SET deleted = 1, deleted_at = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, query, now, id)
	return err
}

func (r *WorkspaceRepository) Restore(ctx context.Context, id string) error {
	query := `UPDATE workspaces SET deleted = 0, deleted_at = NULL WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// ListByUserID returns the non-deleted workspaces a user belongs to, joined
// with the caller's role — backing listUserWorkspaces (§4.1).
func (r *WorkspaceRepository) ListByUserID(ctx context.Context, userID string) ([]*models.WorkspaceSummary, error) {
	var rows []*models.WorkspaceSummary
	query := `
		SELECT w.id, w.name, w.description, m.role, w.created_at,
		       (u.active_workspace_id = w.id) AS is_active
		FROM workspaces w
		INNER JOIN workspace_members m ON m.workspace_id = w.id
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.user_id = ? AND w.deleted = 0
		ORDER BY w.created_at ASC
	`
	err := r.db.SelectContext(ctx, &rows, query, userID)
	return rows, err
}

// ListAdmin is the admin/ops paginated listing (§2.E, §6), optionally
// filtered by name/description search and including soft-deleted rows.
func (r *WorkspaceRepository) ListAdmin(ctx context.Context, search string, includeDeleted bool, limit, offset int) ([]*models.Workspace, int64, error) {
	var workspaces []*models.Workspace
	var total int64

	where := "1=1"
	args := []any{}
	if !includeDeleted {
		where += " AND deleted = 0"
	}
	if search != "" {
		where += " AND (name LIKE ? OR description LIKE ?)"
		term := "%" + search + "%"
		args = append(args, term, term)
	}

	countQuery := "SELECT COUNT(*) FROM workspaces WHERE " + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	listQuery := "SELECT * FROM workspaces WHERE " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	err := r.db.SelectContext(ctx, &workspaces, listQuery, listArgs...)
	return workspaces, total, err
}

// ActiveMembersWithPointerTo finds every user whose active_workspace_id
// points at the given workspace, for the re-homing step of removeWorkspace.
func (r *WorkspaceRepository) ActiveMembersWithPointerTo(ctx context.Context, tx *sqlx.Tx, workspaceID string) ([]string, error) {
	var userIDs []string
	query := `SELECT id FROM users WHERE active_workspace_id = ?`
	err := tx.SelectContext(ctx, &userIDs, query, workspaceID)
	return userIDs, err
}

// OtherMembershipTx finds the oldest non-deleted workspace (other than
// excludeWorkspaceID) a user still belongs to, for re-homing.
func (r *WorkspaceRepository) OtherMembershipTx(ctx context.Context, tx *sqlx.Tx, userID, excludeWorkspaceID string) (string, bool, error) {
	var workspaceID string
	query := `
		SELECT w.id FROM workspaces w
		INNER JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = ? AND w.id != ? AND w.deleted = 0
		ORDER BY m.created_at ASC LIMIT 1
	`
	err := tx.GetContext(ctx, &workspaceID, query, userID, excludeWorkspaceID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return workspaceID, true, nil
}
