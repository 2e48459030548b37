package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/models"
)

type InviteRepository struct {
	db *sqlx.DB
}

func NewInviteRepository(db *sqlx.DB) *InviteRepository {
	return &InviteRepository{db: db}
}

func (r *InviteRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, inv *models.Invite) error {
	query := `
		INSERT INTO invites (id, workspace_id, email, role, status, invited_by, token_hash, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, query, inv.ID, inv.WorkspaceID, inv.Email, inv.Role, inv.Status, inv.InvitedBy, inv.TokenHash, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt)
	return err
}

// ExpirePendingTx lazily transitions any pending invites past expires_at to
// expired, scoped to a workspace. ListInvites calls it before its read
// (§4.1, §4.8); consumeInvite uses the narrower ExpirePendingForEmailTx, and
// the GetByID reads do not expire anything.
func (r *InviteRepository) ExpirePendingTx(ctx context.Context, tx *sqlx.Tx, workspaceID string, now time.Time) error {
	query := `UPDATE invites SET status = 'expired', updated_at = ? WHERE workspace_id = ? AND status = 'pending' AND expires_at <= ?`
	_, err := tx.ExecContext(ctx, query, now, workspaceID, now)
	return err
}

// ExpirePendingForEmailTx is the narrower form used by consumeInvite, which
// only needs to expire candidates for one (workspace, email) pair.
func (r *InviteRepository) ExpirePendingForEmailTx(ctx context.Context, tx *sqlx.Tx, workspaceID, email string, now time.Time) error {
	query := `UPDATE invites SET status = 'expired', updated_at = ? WHERE workspace_id = ? AND email = ? AND status = 'pending' AND expires_at <= ?`
	_, err := tx.ExecContext(ctx, query, now, workspaceID, email, now)
	return err
}

func (r *InviteRepository) ListByWorkspaceTx(ctx context.Context, tx *sqlx.Tx, workspaceID string) ([]*models.Invite, error) {
	var invites []*models.Invite
	query := `SELECT * FROM invites WHERE workspace_id = ? ORDER BY created_at DESC`
	err := tx.SelectContext(ctx, &invites, query, workspaceID)
	return invites, err
}

func (r *InviteRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Invite, error) {
	var invites []*models.Invite
	query := `SELECT * FROM invites WHERE workspace_id = ? ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &invites, query, workspaceID)
	return invites, err
}

func (r *InviteRepository) GetByID(ctx context.Context, id string) (*models.Invite, error) {
	var inv models.Invite
	query := `SELECT * FROM invites WHERE id = ?`
	err := r.db.GetContext(ctx, &inv, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &inv, err
}

func (r *InviteRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Invite, error) {
	var inv models.Invite
	query := `SELECT * FROM invites WHERE id = ?`
	err := tx.GetContext(ctx, &inv, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &inv, err
}

// LatestForEmailTx fetches the most recent invite for (workspace,
// lowercased email), regardless of status, so consumeInvite's caller can
// distinguish expired/revoked/already-accepted from never-invited rather
// than collapsing every non-pending state into "not found".
func (r *InviteRepository) LatestForEmailTx(ctx context.Context, tx *sqlx.Tx, workspaceID, email string) (*models.Invite, error) {
	var inv models.Invite
	query := `
		SELECT * FROM invites WHERE workspace_id = ? AND email = ?
		ORDER BY created_at DESC LIMIT 1
	`
	err := tx.GetContext(ctx, &inv, query, workspaceID, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &inv, err
}

func (r *InviteRepository) Revoke(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE invites SET status = 'revoked', revoked_at = ?, updated_at = ? WHERE id = ? AND status = 'pending'`
	_, err := r.db.ExecContext(ctx, query, now, now, id)
	return err
}

// MarkAcceptedTx records successful consumption.
func (r *InviteRepository) MarkAcceptedTx(ctx context.Context, tx *sqlx.Tx, id, acceptedUserID string, now time.Time) error {
	query := `UPDATE invites SET status = 'accepted', accepted_at = ?, accepted_user_id = ?, updated_at = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, query, now, acceptedUserID, now, id)
	return err
}
