package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/repository"
	"github.com/remus-chat/remus-node/ws"
)

// RoleService is the role management business logic. Hierarchy rules:
// an actor may only create, edit, delete, or assign roles strictly
// below their own highest role, and may never grant permission bits
// they do not hold themselves (administrators excepted).
type RoleService interface {
	GetAll(ctx context.Context) ([]models.Role, error)
	Create(ctx context.Context, actorID string, req *models.CreateRoleRequest) (*models.Role, error)
	Update(ctx context.Context, actorID, roleID string, req *models.UpdateRoleRequest) (*models.Role, error)
	Delete(ctx context.Context, actorID, roleID string) error
	SetIconURL(ctx context.Context, actorID, roleID string, iconURL *string) (*models.Role, error)
}

type roleService struct {
	guildID  string
	roleRepo repository.RoleRepository
	perms    PermissionService
	audit    AuditService
	hub      ws.EventPublisher
}

// NewRoleService creates the role service.
func NewRoleService(
	guildID string,
	roleRepo repository.RoleRepository,
	perms PermissionService,
	audit AuditService,
	hub ws.EventPublisher,
) RoleService {
	return &roleService{guildID: guildID, roleRepo: roleRepo, perms: perms, audit: audit, hub: hub}
}

func (s *roleService) GetAll(ctx context.Context) ([]models.Role, error) {
	roles, err := s.roleRepo.GetAll(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	if roles == nil {
		roles = []models.Role{}
	}
	return roles, nil
}

// requireGrantable rejects permission sets that exceed the actor's own.
func (s *roleService) requireGrantable(ctx context.Context, actorID string, perm models.Permission) error {
	actorPerms, err := s.perms.GuildPermissions(ctx, actorID)
	if err != nil {
		return err
	}
	if actorPerms.Has(models.PermAdministrator) {
		return nil
	}
	if perm&^actorPerms != 0 {
		return fmt.Errorf("%w: cannot grant permissions you do not hold", pkg.ErrForbidden)
	}
	return nil
}

func (s *roleService) Create(ctx context.Context, actorID string, req *models.CreateRoleRequest) (*models.Role, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageRoles); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireGrantable(ctx, actorID, req.Permissions); err != nil {
		return nil, err
	}

	// New roles slot directly below the actor's top role.
	actorTop, err := s.perms.TopPosition(ctx, actorID)
	if err != nil {
		return nil, err
	}
	position := actorTop - 1
	if position < 1 {
		position = 1
	}

	role := &models.Role{
		ID:          uuid.NewString(),
		GuildID:     s.guildID,
		Name:        req.Name,
		Color:       req.Color,
		Permissions: req.Permissions,
		Hoist:       req.Hoist,
		Position:    position,
	}
	if err := s.roleRepo.Create(ctx, role); err != nil {
		return nil, err
	}

	s.perms.InvalidateAll()
	s.audit.Record(ctx, actorID, models.AuditRoleCreate, role.ID, map[string]string{"name": role.Name})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpRoleCreate, Data: role})
	return role, nil
}

func (s *roleService) Update(ctx context.Context, actorID, roleID string, req *models.UpdateRoleRequest) (*models.Role, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageRoles); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	role, err := s.roleRepo.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	// @everyone can have its permissions edited but never its name,
	// position, or hoist. Changing its permissions touches every member
	// at once, so it takes MANAGE_SERVER on top of MANAGE_ROLES.
	if role.IsEveryone() {
		if req.Name != nil || req.Position != nil || req.Hoist != nil {
			return nil, fmt.Errorf("%w: the @everyone role only accepts permission changes", pkg.ErrBadRequest)
		}
		if req.Permissions != nil {
			if err := s.perms.Require(ctx, actorID, models.PermManageServer); err != nil {
				return nil, err
			}
		}
	} else if err := s.perms.CanManageRole(ctx, actorID, role.Position); err != nil {
		return nil, err
	}

	if req.Permissions != nil {
		if err := s.requireGrantable(ctx, actorID, *req.Permissions); err != nil {
			return nil, err
		}
		role.Permissions = *req.Permissions
	}
	if req.Name != nil {
		role.Name = *req.Name
	}
	if req.Color != nil {
		role.Color = *req.Color
	}
	if req.Hoist != nil {
		role.Hoist = *req.Hoist
	}
	if req.Position != nil && !role.IsEveryone() {
		actorTop, err := s.perms.TopPosition(ctx, actorID)
		if err != nil {
			return nil, err
		}
		actorPerms, err := s.perms.GuildPermissions(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !actorPerms.Has(models.PermAdministrator) && *req.Position >= actorTop {
			return nil, fmt.Errorf("%w: cannot move a role to or above your highest role", pkg.ErrForbidden)
		}
		role.Position = *req.Position
	}

	if err := s.roleRepo.Update(ctx, role); err != nil {
		return nil, err
	}

	s.perms.InvalidateAll()
	s.audit.Record(ctx, actorID, models.AuditRoleUpdate, role.ID, map[string]string{"name": role.Name})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpRoleUpdate, Data: role})
	return role, nil
}

func (s *roleService) Delete(ctx context.Context, actorID, roleID string) error {
	if err := s.perms.Require(ctx, actorID, models.PermManageRoles); err != nil {
		return err
	}

	role, err := s.roleRepo.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsEveryone() {
		return fmt.Errorf("%w: the @everyone role cannot be deleted", pkg.ErrBadRequest)
	}
	if err := s.perms.CanManageRole(ctx, actorID, role.Position); err != nil {
		return err
	}

	if err := s.roleRepo.Delete(ctx, roleID); err != nil {
		return err
	}

	s.perms.InvalidateAll()
	s.audit.Record(ctx, actorID, models.AuditRoleDelete, roleID, map[string]string{"name": role.Name})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpRoleDelete, Data: map[string]string{"id": roleID}})
	return nil
}

func (s *roleService) SetIconURL(ctx context.Context, actorID, roleID string, iconURL *string) (*models.Role, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageRoles); err != nil {
		return nil, err
	}

	role, err := s.roleRepo.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if !role.IsEveryone() {
		if err := s.perms.CanManageRole(ctx, actorID, role.Position); err != nil {
			return nil, err
		}
	}

	if err := s.roleRepo.UpdateIconURL(ctx, roleID, iconURL); err != nil {
		return nil, err
	}
	role.IconURL = iconURL

	s.audit.Record(ctx, actorID, models.AuditRoleUpdate, roleID, map[string]string{"icon": "updated"})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpRoleUpdate, Data: role})
	return role, nil
}
