package models

import "time"

// Role is a workspace membership role. Ordered owner > editor > viewer.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Rank returns a role's precedence; higher outranks lower.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

type Workspace struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	OwnerUserID string     `db:"owner_user_id" json:"owner_user_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	Deleted     bool       `db:"deleted" json:"deleted"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

type WorkspaceMember struct {
	ID          string    `db:"id" json:"id"`
	WorkspaceID string    `db:"workspace_id" json:"workspace_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Role        Role      `db:"role" json:"role"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// WorkspaceSummary is the listUserWorkspaces projection.
type WorkspaceSummary struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Role        Role      `db:"role" json:"role"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	IsActive    bool      `db:"is_active" json:"is_active"`
}

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusRevoked  InviteStatus = "revoked"
	InviteStatusExpired  InviteStatus = "expired"
)

type Invite struct {
	ID             string       `db:"id" json:"id"`
	WorkspaceID    string       `db:"workspace_id" json:"workspace_id"`
	Email          string       `db:"email" json:"email"`
	Role           Role         `db:"role" json:"role"`
	Status         InviteStatus `db:"status" json:"status"`
	InvitedBy      string       `db:"invited_by" json:"invited_by"`
	TokenHash      string       `db:"token_hash" json:"-"`
	ExpiresAt      time.Time    `db:"expires_at" json:"expires_at"`
	AcceptedAt     *time.Time   `db:"accepted_at" json:"accepted_at,omitempty"`
	AcceptedUserID *string      `db:"accepted_user_id" json:"accepted_user_id,omitempty"`
	RevokedAt      *time.Time   `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// DTOs consumed by internal/api handlers after request binding.

type CreateWorkspaceRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=200"`
	Description *string `json:"description"`
}

type UpdateWorkspaceRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=200"`
	Description *string `json:"description"`
}

type InviteMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=owner editor viewer"`
}
