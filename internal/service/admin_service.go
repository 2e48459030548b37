package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/quckapp/syncgateway/internal/db"
	"github.com/quckapp/syncgateway/internal/models"
	"github.com/quckapp/syncgateway/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	cacheTTL            = 15 * time.Minute
	cacheKeyWorkspaceList = "admin:workspaces:%s:%d:%d:%t"
)

// AdminService implements the §2.E / §6 admin/ops surface: admin
// management, membership management, workspace listing/lifecycle, user
// search, and workspace settings. Redis is optional and purely a read
// cache, mirroring the teacher's cacheTTL/cacheKeyX pattern and nil-client
// graceful degradation in workspace_service.go.
type AdminService struct {
	db         *sqlx.DB
	admins     *repository.AdminRepository
	members    *repository.MemberRepository
	workspaces *repository.WorkspaceRepository
	users      *repository.UserRepository
	redis      *redis.Client
	logger     *logrus.Logger
}

func NewAdminService(
	sqlDB *sqlx.DB,
	admins *repository.AdminRepository,
	members *repository.MemberRepository,
	workspaces *repository.WorkspaceRepository,
	users *repository.UserRepository,
	redisClient *redis.Client,
	logger *logrus.Logger,
) *AdminService {
	return &AdminService{db: sqlDB, admins: admins, members: members, workspaces: workspaces, users: users, redis: redisClient, logger: logger}
}

func (s *AdminService) ListAdmins(ctx context.Context) ([]*models.AdminUser, error) {
	return s.admins.List(ctx)
}

func (s *AdminService) GrantAdmin(ctx context.Context, userID string, createdBy *string) error {
	return s.admins.Grant(ctx, userID, createdBy)
}

func (s *AdminService) RevokeAdmin(ctx context.Context, userID string) error {
	return s.admins.Revoke(ctx, userID)
}

func (s *AdminService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return s.admins.IsAdmin(ctx, userID)
}

func (s *AdminService) ListMembers(ctx context.Context, workspaceID string, limit, offset int) ([]*models.WorkspaceMember, int64, error) {
	return s.members.ListByWorkspace(ctx, workspaceID, limit, offset)
}

// UpsertMember implements §6's upsertMember: a conflict-safe insert-or-
// update on (workspace_id, user_id), so granting membership to an existing
// member overwrites their role instead of raising a UNIQUE-constraint error.
func (s *AdminService) UpsertMember(ctx context.Context, member *models.WorkspaceMember) error {
	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return fmt.Errorf("upsertMember: %w", err)
	}
	defer tx.Rollback()
	if err := s.members.UpsertTx(ctx, tx, member); err != nil {
		return fmt.Errorf("upsertMember: %w", err)
	}
	return tx.Commit()
}

func (s *AdminService) SetMemberRole(ctx context.Context, workspaceID, userID string, role models.Role) error {
	return s.members.UpdateRole(ctx, workspaceID, userID, role)
}

func (s *AdminService) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	return s.members.Remove(ctx, workspaceID, userID)
}

// ListWorkspaces is the admin paginated listing with optional search and
// include_deleted, read through Redis when available.
func (s *AdminService) ListWorkspaces(ctx context.Context, search string, includeDeleted bool, limit, offset int) ([]*models.Workspace, int64, error) {
	if s.redis == nil {
		return s.workspaces.ListAdmin(ctx, search, includeDeleted, limit, offset)
	}

	key := fmt.Sprintf(cacheKeyWorkspaceList, search, limit, offset, includeDeleted)
	if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
		var out struct {
			Workspaces []*models.Workspace `json:"workspaces"`
			Total      int64                `json:"total"`
		}
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			return out.Workspaces, out.Total, nil
		}
	}

	workspaces, total, err := s.workspaces.ListAdmin(ctx, search, includeDeleted, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if encoded, err := json.Marshal(struct {
		Workspaces []*models.Workspace `json:"workspaces"`
		Total      int64                `json:"total"`
	}{workspaces, total}); err == nil {
		if err := s.redis.Set(ctx, key, encoded, cacheTTL).Err(); err != nil {
			s.logger.WithError(err).Warn("admin: failed to populate workspace-list cache")
		}
	}
	return workspaces, total, nil
}

func (s *AdminService) GetWorkspace(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, ErrWorkspaceNotFound
	}
	return ws, nil
}

// SoftDeleteWorkspace is the admin-triggered soft-delete: unlike
// removeWorkspace it bypasses the owner-role check, but performs the same
// re-homing of affected users' active_workspace_id in one transaction.
func (s *AdminService) SoftDeleteWorkspace(ctx context.Context, workspaceID string) error {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws == nil {
		return ErrWorkspaceNotFound
	}

	tx, err := db.BeginImmediate(ctx, s.db)
	if err != nil {
		return fmt.Errorf("softDeleteWorkspace: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.workspaces.SoftDeleteTx(ctx, tx, workspaceID, now); err != nil {
		return fmt.Errorf("softDeleteWorkspace: %w", err)
	}
	affected, err := s.workspaces.ActiveMembersWithPointerTo(ctx, tx, workspaceID)
	if err != nil {
		return fmt.Errorf("softDeleteWorkspace: %w", err)
	}
	for _, uid := range affected {
		nextWs, found, err := s.workspaces.OtherMembershipTx(ctx, tx, uid, workspaceID)
		if err != nil {
			return fmt.Errorf("softDeleteWorkspace: re-home %s: %w", uid, err)
		}
		if found {
			if err := s.users.SetActiveWorkspaceTx(ctx, tx, uid, &nextWs); err != nil {
				return fmt.Errorf("softDeleteWorkspace: re-home %s: %w", uid, err)
			}
		} else if err := s.users.SetActiveWorkspaceTx(ctx, tx, uid, nil); err != nil {
			return fmt.Errorf("softDeleteWorkspace: clear %s: %w", uid, err)
		}
	}
	return tx.Commit()
}

func (s *AdminService) RestoreWorkspace(ctx context.Context, workspaceID string) error {
	return s.workspaces.Restore(ctx, workspaceID)
}

func (s *AdminService) SearchUsers(ctx context.Context, term string, limit int) ([]*models.User, error) {
	return s.users.SearchByEmailOrName(ctx, term, limit)
}

// GetSetting/SetSetting back the workspace settings key/value surface (§6).
// Rather than a parallel settings table, operator-set values are stored as
// rows in the sync_kv materialized table under a reserved pk prefix.
// SetSetting writes only that materialized row: it appends no change_log
// entry and allocates no server_version, so Pull does not deliver settings
// to devices.
const settingsPKPrefix = "_settings:"

func (s *AdminService) GetSetting(ctx context.Context, workspaceID, key string) (string, bool, error) {
	var dataJSON string
	query := `SELECT data_json FROM sync_kv WHERE workspace_id = ? AND id = ? AND deleted = 0`
	err := s.db.GetContext(ctx, &dataJSON, query, workspaceID, settingsPKPrefix+key)
	if err != nil {
		return "", false, nil
	}
	return dataJSON, true, nil
}

// StatusReport aggregates per-workspace counters for operator dashboards.
type StatusReport struct {
	WorkspaceID      string `json:"workspace_id"`
	ServerVersion    int64  `json:"server_version"`
	ChangeLogRows    int64  `json:"change_log_rows"`
	TombstoneRows    int64  `json:"tombstone_rows"`
	DeviceCursors    int64  `json:"device_cursors"`
}

func (s *AdminService) GetStatusReport(ctx context.Context, workspaceID string) (*StatusReport, error) {
	report := &StatusReport{WorkspaceID: workspaceID}
	if err := s.db.GetContext(ctx, &report.ServerVersion, `SELECT COALESCE((SELECT value FROM server_version_counters WHERE workspace_id = ?), 0)`, workspaceID); err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &report.ChangeLogRows, `SELECT COUNT(*) FROM change_log WHERE workspace_id = ?`, workspaceID); err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &report.TombstoneRows, `SELECT COUNT(*) FROM tombstones WHERE workspace_id = ?`, workspaceID); err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &report.DeviceCursors, `SELECT COUNT(*) FROM device_cursors WHERE workspace_id = ?`, workspaceID); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *AdminService) SetSetting(ctx context.Context, workspaceID, key, valueJSON string) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO sync_kv (workspace_id, id, data_json, clock, hlc, device_id, deleted, created_at, updated_at)
		VALUES (?, ?, ?, 0, '', 'admin', 0, ?, ?)
		ON CONFLICT(workspace_id, id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, workspaceID, settingsPKPrefix+key, valueJSON, now, now)
	return err
}
