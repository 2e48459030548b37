package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/models"
)

type AdminRepository struct {
	db *sqlx.DB
}

func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) List(ctx context.Context) ([]*models.AdminUser, error) {
	var admins []*models.AdminUser
	query := `SELECT * FROM admin_users ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &admins, query)
	return admins, err
}

func (r *AdminRepository) Grant(ctx context.Context, userID string, createdBy *string) error {
	query := `INSERT INTO admin_users (user_id, created_by) VALUES (?, ?) ON CONFLICT(user_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, userID, createdBy)
	return err
}

func (r *AdminRepository) Revoke(ctx context.Context, userID string) error {
	query := `DELETE FROM admin_users WHERE user_id = ?`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

func (r *AdminRepository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM admin_users WHERE user_id = ?`
	err := r.db.GetContext(ctx, &count, query, userID)
	return count > 0, err
}
