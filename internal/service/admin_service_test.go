package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/db"
	"github.com/quckapp/syncgateway/internal/models"
	"github.com/quckapp/syncgateway/internal/repository"
	"github.com/sirupsen/logrus"
)

func setupAdminService(t *testing.T) (*sqlx.DB, *AdminService, *IdentityService) {
	t.Helper()
	conn, err := db.NewSQLite(":memory:", db.PragmaConfig{JournalMode: "WAL", Synchronous: "NORMAL"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.RunMigrations(context.Background(), conn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(discardWriter{})

	users := repository.NewUserRepository(conn)
	accounts := repository.NewAuthAccountRepository(conn)
	workspaces := repository.NewWorkspaceRepository(conn)
	members := repository.NewMemberRepository(conn)
	invites := repository.NewInviteRepository(conn)
	admins := repository.NewAdminRepository(conn)

	identity := NewIdentityService(conn, users, accounts, workspaces, members, invites, logger)
	admin := NewAdminService(conn, admins, members, workspaces, users, nil, logger)
	return conn, admin, identity
}

func TestGrantAndRevokeAdmin(t *testing.T) {
	_, admin, identity := setupAdminService(t)
	ctx := context.Background()

	userID, err := identity.ResolveOrCreateUser(ctx, "slack", "U1", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if ok, _ := admin.IsAdmin(ctx, userID); ok {
		t.Fatalf("expected not-yet-admin")
	}
	if err := admin.GrantAdmin(ctx, userID, nil); err != nil {
		t.Fatalf("grantAdmin: %v", err)
	}
	if ok, err := admin.IsAdmin(ctx, userID); err != nil || !ok {
		t.Fatalf("expected admin after grant, ok=%v err=%v", ok, err)
	}
	if err := admin.RevokeAdmin(ctx, userID); err != nil {
		t.Fatalf("revokeAdmin: %v", err)
	}
	if ok, _ := admin.IsAdmin(ctx, userID); ok {
		t.Fatalf("expected not-admin after revoke")
	}
}

// Granting admin twice for the same user must not error (conflict-safe
// upsert on the primary key).
func TestGrantAdmin_Idempotent(t *testing.T) {
	_, admin, identity := setupAdminService(t)
	ctx := context.Background()

	userID, err := identity.ResolveOrCreateUser(ctx, "slack", "U1", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := admin.GrantAdmin(ctx, userID, nil); err != nil {
		t.Fatalf("grant 1: %v", err)
	}
	if err := admin.GrantAdmin(ctx, userID, nil); err != nil {
		t.Fatalf("grant 2: %v", err)
	}

	admins, err := admin.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("listAdmins: %v", err)
	}
	if len(admins) != 1 {
		t.Fatalf("expected exactly one admin row, got %d", len(admins))
	}
}

// SoftDeleteWorkspace bypasses the owner-role check an end-user path would
// enforce, but still re-homes affected members.
func TestSoftDeleteWorkspace_RehomesMembers(t *testing.T) {
	_, admin, identity := setupAdminService(t)
	ctx := context.Background()

	owner, err := identity.ResolveOrCreateUser(ctx, "slack", "owner", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wsA, err := identity.CreateWorkspace(ctx, owner, "A", nil)
	if err != nil {
		t.Fatalf("createWorkspace A: %v", err)
	}
	wsB, err := identity.CreateWorkspace(ctx, owner, "B", nil)
	if err != nil {
		t.Fatalf("createWorkspace B: %v", err)
	}
	if err := identity.SetActiveWorkspace(ctx, owner, wsA); err != nil {
		t.Fatalf("setActiveWorkspace: %v", err)
	}

	if err := admin.SoftDeleteWorkspace(ctx, wsA); err != nil {
		t.Fatalf("softDeleteWorkspace: %v", err)
	}

	defaultWs, _, err := identity.GetOrCreateDefaultWorkspace(ctx, owner)
	if err != nil {
		t.Fatalf("getOrCreateDefaultWorkspace: %v", err)
	}
	if defaultWs != wsB {
		t.Fatalf("expected re-home to workspace B, got %s", defaultWs)
	}

	ws, err := admin.GetWorkspace(ctx, wsA)
	if err != nil {
		t.Fatalf("getWorkspace: %v", err)
	}
	if !ws.Deleted {
		t.Fatalf("expected workspace A to be marked deleted")
	}
}

func TestSetAndGetSetting(t *testing.T) {
	_, admin, identity := setupAdminService(t)
	ctx := context.Background()

	owner, err := identity.ResolveOrCreateUser(ctx, "slack", "owner", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wsID, err := identity.CreateWorkspace(ctx, owner, "Team", nil)
	if err != nil {
		t.Fatalf("createWorkspace: %v", err)
	}

	if _, found, err := admin.GetSetting(ctx, wsID, "theme"); err != nil || found {
		t.Fatalf("expected not-found before set, found=%v err=%v", found, err)
	}
	if err := admin.SetSetting(ctx, wsID, "theme", `"dark"`); err != nil {
		t.Fatalf("setSetting: %v", err)
	}
	value, found, err := admin.GetSetting(ctx, wsID, "theme")
	if err != nil || !found {
		t.Fatalf("expected found after set, found=%v err=%v", found, err)
	}
	if value != `"dark"` {
		t.Fatalf("expected stored value %q, got %q", `"dark"`, value)
	}
}

// UpsertMember must overwrite an existing member's role rather than raise a
// UNIQUE-constraint error, since it backs the conflict-safe semantics §5
// requires of every member upsert.
func TestUpsertMember_OverwritesExistingRole(t *testing.T) {
	_, admin, identity := setupAdminService(t)
	ctx := context.Background()

	owner, err := identity.ResolveOrCreateUser(ctx, "slack", "owner", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wsID, err := identity.CreateWorkspace(ctx, owner, "Team", nil)
	if err != nil {
		t.Fatalf("createWorkspace: %v", err)
	}
	other, err := identity.ResolveOrCreateUser(ctx, "slack", "other", nil, nil)
	if err != nil {
		t.Fatalf("resolve other: %v", err)
	}

	newMember := func(role models.Role) *models.WorkspaceMember {
		return &models.WorkspaceMember{ID: uuid.NewString(), WorkspaceID: wsID, UserID: other, Role: role, CreatedAt: time.Now().UTC()}
	}

	if err := admin.UpsertMember(ctx, newMember(models.RoleViewer)); err != nil {
		t.Fatalf("upsertMember (insert): %v", err)
	}
	if err := admin.UpsertMember(ctx, newMember(models.RoleEditor)); err != nil {
		t.Fatalf("upsertMember (conflict overwrite): %v", err)
	}

	members, total, err := admin.ListMembers(ctx, wsID, 50, 0)
	if err != nil {
		t.Fatalf("listMembers: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected owner + one upserted member, got total=%d", total)
	}
	var found bool
	for _, m := range members {
		if m.UserID == other {
			found = true
			if m.Role != models.RoleEditor {
				t.Fatalf("expected upsert to overwrite role to editor, got %s", m.Role)
			}
		}
	}
	if !found {
		t.Fatalf("expected upserted member to be present")
	}
}

func TestListMembers_ReturnsCreatedMembership(t *testing.T) {
	_, admin, identity := setupAdminService(t)
	ctx := context.Background()

	owner, err := identity.ResolveOrCreateUser(ctx, "slack", "owner", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	wsID, err := identity.CreateWorkspace(ctx, owner, "Team", nil)
	if err != nil {
		t.Fatalf("createWorkspace: %v", err)
	}

	members, total, err := admin.ListMembers(ctx, wsID, 50, 0)
	if err != nil {
		t.Fatalf("listMembers: %v", err)
	}
	if total != 1 || len(members) != 1 {
		t.Fatalf("expected exactly one founding member, got total=%d len=%d", total, len(members))
	}
	if members[0].Role != models.RoleOwner {
		t.Fatalf("expected the founder to be owner, got %s", members[0].Role)
	}
}
