package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/models"
)

type AuthAccountRepository struct {
	db *sqlx.DB
}

func NewAuthAccountRepository(db *sqlx.DB) *AuthAccountRepository {
	return &AuthAccountRepository{db: db}
}

// UpsertTx resolves (provider, provider_user_id) to a user_id via a
// conflict-safe insert against the unique index, never read-then-insert
// (§9). When the account already exists, the row keeps its user_id; the
// caller learns the winning user_id with a separate GetByProviderTx read in
// the same transaction.
func (r *AuthAccountRepository) UpsertTx(ctx context.Context, tx *sqlx.Tx, acc *models.AuthAccount) error {
	query := `
		INSERT INTO auth_accounts (id, user_id, provider, provider_user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider, provider_user_id) DO UPDATE SET provider = excluded.provider
	`
	_, err := tx.ExecContext(ctx, query, acc.ID, acc.UserID, acc.Provider, acc.ProviderUserID, acc.CreatedAt)
	return err
}

func (r *AuthAccountRepository) GetByProviderTx(ctx context.Context, tx *sqlx.Tx, provider, providerUserID string) (*models.AuthAccount, error) {
	var acc models.AuthAccount
	query := `SELECT * FROM auth_accounts WHERE provider = ? AND provider_user_id = ?`
	err := tx.GetContext(ctx, &acc, query, provider, providerUserID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &acc, err
}

func (r *AuthAccountRepository) GetByProvider(ctx context.Context, provider, providerUserID string) (*models.AuthAccount, error) {
	var acc models.AuthAccount
	query := `SELECT * FROM auth_accounts WHERE provider = ? AND provider_user_id = ?`
	err := r.db.GetContext(ctx, &acc, query, provider, providerUserID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &acc, err
}
