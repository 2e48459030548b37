package service

import "errors"

// Sentinel errors grouped by the error kinds of §7. internal/api's handler
// switch maps each to an HTTP status, mirroring the teacher's
// handleError(c, err) idiom.
var (
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrInviteNotFound    = errors.New("invite not found")
	ErrUserNotFound      = errors.New("user not found")

	ErrForbiddenRole  = errors.New("role does not permit this action")
	ErrForbiddenOwner = errors.New("only the workspace owner may perform this action")
	ErrNotMember      = errors.New("user is not an active member of this workspace")

	ErrInviteExpired      = errors.New("invite has expired")
	ErrInviteRevoked      = errors.New("invite has been revoked")
	ErrInviteAlreadyUsed  = errors.New("invite has already been accepted")
	ErrInviteTokenMismatch = errors.New("invite token does not match")
)
