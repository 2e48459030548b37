package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/models"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, u *models.User) error {
	query := `INSERT INTO users (id, email, display_name, active_workspace_id, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query, u.ID, u.Email, u.DisplayName, u.ActiveWorkspaceID, u.CreatedAt)
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	query := `SELECT * FROM users WHERE id = ?`
	err := r.db.GetContext(ctx, &u, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &u, err
}

func (r *UserRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.User, error) {
	var u models.User
	query := `SELECT * FROM users WHERE id = ?`
	err := tx.GetContext(ctx, &u, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &u, err
}

func (r *UserRepository) SetActiveWorkspaceTx(ctx context.Context, tx *sqlx.Tx, userID string, workspaceID *string) error {
	query := `UPDATE users SET active_workspace_id = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, query, workspaceID, userID)
	return err
}

func (r *UserRepository) SetActiveWorkspace(ctx context.Context, userID, workspaceID string) error {
	query := `UPDATE users SET active_workspace_id = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, workspaceID, userID)
	return err
}

// SearchByEmailOrName backs the admin searchUsers operation.
func (r *UserRepository) SearchByEmailOrName(ctx context.Context, term string, limit int) ([]*models.User, error) {
	var users []*models.User
	query := `SELECT * FROM users WHERE email LIKE ? OR display_name LIKE ? ORDER BY created_at DESC LIMIT ?`
	like := "%" + term + "%"
	err := r.db.SelectContext(ctx, &users, query, like, like, limit)
	return users, err
}
