package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/db"
	"github.com/quckapp/syncgateway/internal/models"
	"github.com/quckapp/syncgateway/internal/repository"
	"github.com/sirupsen/logrus"
)

const defaultWorkspaceName = "My Workspace"
const inviteTTL = 7 * 24 * time.Hour

// IdentityService implements every §4.1 operation: identity resolution,
// workspace lifecycle, role checks and invites. Grounded on the teacher's
// WorkspaceService (constructor-injected repositories, sentinel errors,
// one method per operation) with MySQL-specific SQL replaced by SQLite
// conflict-safe upserts throughout, per §9's "never read-then-insert" rule.
type IdentityService struct {
	db          *sqlx.DB
	users       *repository.UserRepository
	accounts    *repository.AuthAccountRepository
	workspaces  *repository.WorkspaceRepository
	members     *repository.MemberRepository
	invites     *repository.InviteRepository
	logger      *logrus.Logger
}

func NewIdentityService(
	sqlDB *sqlx.DB,
	users *repository.UserRepository,
	accounts *repository.AuthAccountRepository,
	workspaces *repository.WorkspaceRepository,
	members *repository.MemberRepository,
	invites *repository.InviteRepository,
	logger *logrus.Logger,
) *IdentityService {
	return &IdentityService{
		db: sqlDB, users: users, accounts: accounts,
		workspaces: workspaces, members: members, invites: invites, logger: logger,
	}
}

// ResolveOrCreateUser implements §4.1 resolveOrCreateUser inside one
// immediate-mode transaction: an existing account is returned directly;
// otherwise the user is inserted, the account is written with a
// conflict-safe upsert on (provider, provider_user_id), and the winning row
// is re-read, so correctness does not rest on the initial read.
func (s *IdentityService) ResolveOrCreateUser(ctx context.Context, provider, providerUserID string, email, displayName *string) (string, error) {
	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return "", fmt.Errorf("resolveOrCreateUser: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.accounts.GetByProviderTx(ctx, tx, provider, providerUserID)
	if err != nil {
		return "", fmt.Errorf("resolveOrCreateUser: %w", err)
	}
	if existing != nil {
		return existing.UserID, tx.Commit()
	}

	now := time.Now().UTC()
	user := &models.User{ID: uuid.NewString(), Email: email, DisplayName: displayName, CreatedAt: now}
	if err := s.users.CreateTx(ctx, tx, user); err != nil {
		return "", fmt.Errorf("resolveOrCreateUser: create user: %w", err)
	}

	acc := &models.AuthAccount{ID: uuid.NewString(), UserID: user.ID, Provider: provider, ProviderUserID: providerUserID, CreatedAt: now}
	if err := s.accounts.UpsertTx(ctx, tx, acc); err != nil {
		return "", fmt.Errorf("resolveOrCreateUser: upsert account: %w", err)
	}

	// Re-read the winner: under a concurrent racer, our insert may have lost
	// the conflict and the account now points at a different user.
	winner, err := s.accounts.GetByProviderTx(ctx, tx, provider, providerUserID)
	if err != nil {
		return "", fmt.Errorf("resolveOrCreateUser: re-read: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("resolveOrCreateUser: commit: %w", err)
	}
	return winner.UserID, nil
}

func (s *IdentityService) GetUser(ctx context.Context, provider, providerUserID string) (*models.User, error) {
	acc, err := s.accounts.GetByProvider(ctx, provider, providerUserID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, nil
	}
	return s.users.GetByID(ctx, acc.UserID)
}

// GetOrCreateDefaultWorkspace implements §4.1's three-case preference order.
func (s *IdentityService) GetOrCreateDefaultWorkspace(ctx context.Context, userID string) (string, string, error) {
	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: %w", err)
	}
	defer tx.Rollback()

	user, err := s.users.GetByIDTx(ctx, tx, userID)
	if err != nil {
		return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: %w", err)
	}
	if user == nil {
		return "", "", ErrUserNotFound
	}

	// Case (a): current active pointer names a non-deleted workspace the
	// user still belongs to.
	if user.ActiveWorkspaceID != nil {
		m, err := s.members.GetByWorkspaceAndUserTx(ctx, tx, *user.ActiveWorkspaceID, userID)
		if err != nil {
			return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: %w", err)
		}
		if m != nil {
			var ws models.Workspace
			err := tx.GetContext(ctx, &ws, `SELECT * FROM workspaces WHERE id = ? AND deleted = 0`, *user.ActiveWorkspaceID)
			if err == nil {
				return ws.ID, ws.Name, tx.Commit()
			}
		}
	}

	// Case (b): oldest non-deleted membership, repairing the stale pointer.
	if wsID, found, err := s.workspaces.OtherMembershipTx(ctx, tx, userID, ""); err != nil {
		return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: %w", err)
	} else if found {
		var ws models.Workspace
		if err := tx.GetContext(ctx, &ws, `SELECT * FROM workspaces WHERE id = ?`, wsID); err != nil {
			return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: %w", err)
		}
		if err := s.users.SetActiveWorkspaceTx(ctx, tx, userID, &ws.ID); err != nil {
			return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: repair pointer: %w", err)
		}
		return ws.ID, ws.Name, tx.Commit()
	}

	// Case (c): create "My Workspace" with this user as sole owner.
	now := time.Now().UTC()
	ws := &models.Workspace{ID: uuid.NewString(), Name: defaultWorkspaceName, OwnerUserID: userID, CreatedAt: now}
	if err := s.workspaces.CreateTx(ctx, tx, ws); err != nil {
		return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: create workspace: %w", err)
	}
	member := &models.WorkspaceMember{ID: uuid.NewString(), WorkspaceID: ws.ID, UserID: userID, Role: models.RoleOwner, CreatedAt: now}
	if err := s.members.CreateTx(ctx, tx, member); err != nil {
		return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: create membership: %w", err)
	}
	if err := s.users.SetActiveWorkspaceTx(ctx, tx, userID, &ws.ID); err != nil {
		return "", "", fmt.Errorf("getOrCreateDefaultWorkspace: set active: %w", err)
	}
	return ws.ID, ws.Name, tx.Commit()
}

// GetWorkspaceRole returns the caller's role or "" for non-members. It
// deliberately ignores soft-delete state; callers filter as needed (§9 Open
// Question, resolved per spec's stated default).
func (s *IdentityService) GetWorkspaceRole(ctx context.Context, userID, workspaceID string) (models.Role, error) {
	return s.members.GetRole(ctx, workspaceID, userID)
}

func (s *IdentityService) ListUserWorkspaces(ctx context.Context, userID string) ([]*models.WorkspaceSummary, error) {
	return s.workspaces.ListByUserID(ctx, userID)
}

func (s *IdentityService) CreateWorkspace(ctx context.Context, userID, name string, description *string) (string, error) {
	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return "", fmt.Errorf("createWorkspace: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	ws := &models.Workspace{ID: uuid.NewString(), Name: name, Description: description, OwnerUserID: userID, CreatedAt: now}
	if err := s.workspaces.CreateTx(ctx, tx, ws); err != nil {
		return "", fmt.Errorf("createWorkspace: %w", err)
	}
	member := &models.WorkspaceMember{ID: uuid.NewString(), WorkspaceID: ws.ID, UserID: userID, Role: models.RoleOwner, CreatedAt: now}
	if err := s.members.CreateTx(ctx, tx, member); err != nil {
		return "", fmt.Errorf("createWorkspace: %w", err)
	}
	return ws.ID, tx.Commit()
}

// UpdateWorkspace requires role ∈ {owner, editor} per spec's stated default
// (§9 Open Question). No-op on soft-deleted workspaces.
func (s *IdentityService) UpdateWorkspace(ctx context.Context, userID, workspaceID, name string, description *string) error {
	role, err := s.members.GetRole(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if role.Rank() < models.RoleEditor.Rank() {
		return ErrForbiddenRole
	}
	return s.workspaces.Update(ctx, workspaceID, name, description)
}

// RemoveWorkspace requires role = owner. Soft-deletes the workspace and
// re-homes every affected user's active_workspace_id in the same
// transaction (§3 Lifecycle, §4.1).
func (s *IdentityService) RemoveWorkspace(ctx context.Context, userID, workspaceID string) error {
	role, err := s.members.GetRole(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return ErrForbiddenOwner
	}

	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return fmt.Errorf("removeWorkspace: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.workspaces.SoftDeleteTx(ctx, tx, workspaceID, now); err != nil {
		return fmt.Errorf("removeWorkspace: %w", err)
	}

	affected, err := s.workspaces.ActiveMembersWithPointerTo(ctx, tx, workspaceID)
	if err != nil {
		return fmt.Errorf("removeWorkspace: %w", err)
	}
	for _, uid := range affected {
		nextWs, found, err := s.workspaces.OtherMembershipTx(ctx, tx, uid, workspaceID)
		if err != nil {
			return fmt.Errorf("removeWorkspace: re-home %s: %w", uid, err)
		}
		if found {
			if err := s.users.SetActiveWorkspaceTx(ctx, tx, uid, &nextWs); err != nil {
				return fmt.Errorf("removeWorkspace: re-home %s: %w", uid, err)
			}
		} else {
			if err := s.users.SetActiveWorkspaceTx(ctx, tx, uid, nil); err != nil {
				return fmt.Errorf("removeWorkspace: clear %s: %w", uid, err)
			}
		}
	}
	return tx.Commit()
}

// SetActiveWorkspace requires an active (non-soft-deleted) membership.
func (s *IdentityService) SetActiveWorkspace(ctx context.Context, userID, workspaceID string) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws == nil || ws.Deleted {
		return ErrNotMember
	}
	m, err := s.members.GetByWorkspaceAndUser(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotMember
	}
	return s.users.SetActiveWorkspace(ctx, userID, workspaceID)
}

// CreateInvite issues an opaque token to the caller and stores only its
// hash, mirroring the teacher's crypto/rand + sha256 token-generation idiom
// in workspace_service.go.
func (s *IdentityService) CreateInvite(ctx context.Context, workspaceID, invitedBy, email string, role models.Role) (inviteID, token string, err error) {
	token, err = generateToken()
	if err != nil {
		return "", "", fmt.Errorf("createInvite: %w", err)
	}
	now := time.Now().UTC()
	inv := &models.Invite{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		Role:        role,
		Status:      models.InviteStatusPending,
		InvitedBy:   invitedBy,
		TokenHash:   hashToken(token),
		ExpiresAt:   now.Add(inviteTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return "", "", fmt.Errorf("createInvite: %w", err)
	}
	defer tx.Rollback()
	if err := s.invites.CreateTx(ctx, tx, inv); err != nil {
		return "", "", fmt.Errorf("createInvite: %w", err)
	}
	return inv.ID, token, tx.Commit()
}

// ListInvites first lazily transitions expired pending invites, in the same
// transaction as the read (§4.1, §4.8).
func (s *IdentityService) ListInvites(ctx context.Context, workspaceID string) ([]*models.Invite, error) {
	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("listInvites: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.invites.ExpirePendingTx(ctx, tx, workspaceID, now); err != nil {
		return nil, fmt.Errorf("listInvites: %w", err)
	}
	invites, err := s.invites.ListByWorkspaceTx(ctx, tx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listInvites: %w", err)
	}
	return invites, tx.Commit()
}

func (s *IdentityService) RevokeInvite(ctx context.Context, inviteID string) error {
	return s.invites.Revoke(ctx, inviteID, time.Now().UTC())
}

// ConsumeInvite implements §4.1's transactional consume: lazily expire, fetch
// the most recent invite for (workspace, lowercased email) whatever its
// status, verify status and token (constant-time compare), mark accepted,
// upsert membership
// (overwriting an existing member's role), and set the user's active
// workspace.
func (s *IdentityService) ConsumeInvite(ctx context.Context, workspaceID, email, token, userID string) (*models.Invite, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("consumeInvite: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.invites.ExpirePendingForEmailTx(ctx, tx, workspaceID, email, now); err != nil {
		return nil, fmt.Errorf("consumeInvite: %w", err)
	}

	inv, err := s.invites.LatestForEmailTx(ctx, tx, workspaceID, email)
	if err != nil {
		return nil, fmt.Errorf("consumeInvite: %w", err)
	}
	if inv == nil {
		return nil, ErrInviteNotFound
	}
	if inv.Status == models.InviteStatusExpired {
		return nil, ErrInviteExpired
	}
	if inv.Status == models.InviteStatusRevoked {
		return nil, ErrInviteRevoked
	}
	if inv.Status == models.InviteStatusAccepted {
		return nil, ErrInviteAlreadyUsed
	}
	if subtle.ConstantTimeCompare([]byte(hashToken(token)), []byte(inv.TokenHash)) != 1 {
		return nil, ErrInviteTokenMismatch
	}

	if err := s.invites.MarkAcceptedTx(ctx, tx, inv.ID, userID, now); err != nil {
		return nil, fmt.Errorf("consumeInvite: %w", err)
	}
	member := &models.WorkspaceMember{ID: uuid.NewString(), WorkspaceID: workspaceID, UserID: userID, Role: inv.Role, CreatedAt: now}
	if err := s.members.UpsertTx(ctx, tx, member); err != nil {
		return nil, fmt.Errorf("consumeInvite: upsert membership: %w", err)
	}
	if err := s.users.SetActiveWorkspaceTx(ctx, tx, userID, &workspaceID); err != nil {
		return nil, fmt.Errorf("consumeInvite: set active: %w", err)
	}

	inv.Status = models.InviteStatusAccepted
	return inv, tx.Commit()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
