package models

import "time"

// User is created on first successful identity resolution and is never
// hard-deleted.
type User struct {
	ID               string    `db:"id" json:"id"`
	Email            *string   `db:"email" json:"email,omitempty"`
	DisplayName      *string   `db:"display_name" json:"display_name,omitempty"`
	ActiveWorkspaceID *string  `db:"active_workspace_id" json:"active_workspace_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// AuthAccount maps an external (provider, provider_user_id) identity to a
// User. Unique on (provider, provider_user_id).
type AuthAccount struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	Provider        string    `db:"provider" json:"provider"`
	ProviderUserID  string    `db:"provider_user_id" json:"provider_user_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// AdminUser marks a deployment-wide operator.
type AdminUser struct {
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
}
