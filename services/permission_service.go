// Package services holds the business logic between handlers and
// repositories. Every service is an interface with one constructor, so
// handlers and tests depend on behavior, not structs.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/pkg/cache"
	"github.com/remus-chat/remus-node/repository"
)

// permissionCacheTTL bounds staleness for resolved permissions between
// explicit invalidations.
const permissionCacheTTL = 60 * time.Second

// PermissionService resolves effective permissions.
//
// Resolution order: OR of role bitmasks, ADMINISTRATOR short-circuit,
// category overrides, channel overrides. Within each override layer the
// @everyone entry applies first, then the union of role allow/deny
// pairs, then the member entry last. An active timeout strips the
// expression bits unless the user is an administrator. Non-members
// resolve to zero permissions rather than an error.
type PermissionService interface {
	GuildPermissions(ctx context.Context, userID string) (models.Permission, error)
	ChannelPermissions(ctx context.Context, userID, channelID string) (models.Permission, error)
	// Require returns pkg.ErrForbidden when the user lacks perm guild-wide.
	Require(ctx context.Context, userID string, perm models.Permission) error
	// RequireInChannel returns pkg.ErrForbidden when the user lacks perm
	// in the channel.
	RequireInChannel(ctx context.Context, userID, channelID string, perm models.Permission) error
	// TopPosition is the user's highest role position, used for
	// hierarchy gating.
	TopPosition(ctx context.Context, userID string) (int, error)
	// CanManageRole rejects actors trying to touch a role at or above
	// their own top position.
	CanManageRole(ctx context.Context, actorID string, rolePosition int) error
	// CanManageMember rejects moderation against an equal or higher
	// ranked member. Actors may always act on themselves is NOT implied
	// here; callers decide self-action rules.
	CanManageMember(ctx context.Context, actorID, targetID string) error
	// Invalidate drops cached resolutions for one user; InvalidateAll
	// drops everything (role or channel-wide changes).
	Invalidate(userID string)
	InvalidateAll()
}

type permissionService struct {
	guildID     string
	roleRepo    repository.RoleRepository
	memberRepo  repository.MemberRepository
	channelRepo repository.ChannelRepository
	cache       *cache.TTLCache[string, models.Permission]
}

// NewPermissionService creates the permission engine.
func NewPermissionService(
	guildID string,
	roleRepo repository.RoleRepository,
	memberRepo repository.MemberRepository,
	channelRepo repository.ChannelRepository,
) PermissionService {
	return &permissionService{
		guildID:     guildID,
		roleRepo:    roleRepo,
		memberRepo:  memberRepo,
		channelRepo: channelRepo,
		cache:       cache.New[string, models.Permission](permissionCacheTTL, permissionCacheTTL),
	}
}

func (s *permissionService) GuildPermissions(ctx context.Context, userID string) (models.Permission, error) {
	if perms, ok := s.cache.Get(userID); ok {
		return perms, nil
	}

	member, err := s.memberRepo.GetByID(ctx, s.guildID, userID)
	if err != nil {
		// A non-member holds no permissions. Not cached: the user may
		// join at any moment.
		if errors.Is(err, pkg.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	roles, err := s.roleRepo.GetForMember(ctx, s.guildID, userID)
	if err != nil {
		return 0, err
	}

	perms := basePermissions(roles)
	perms = applyTimeout(perms, member, time.Now())

	s.cache.Set(userID, perms)
	return perms, nil
}

func (s *permissionService) ChannelPermissions(ctx context.Context, userID, channelID string) (models.Permission, error) {
	key := userID + ":" + channelID
	if perms, ok := s.cache.Get(key); ok {
		return perms, nil
	}

	member, err := s.memberRepo.GetByID(ctx, s.guildID, userID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	roles, err := s.roleRepo.GetForMember(ctx, s.guildID, userID)
	if err != nil {
		return 0, err
	}
	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return 0, err
	}

	perms := basePermissions(roles)

	// An administrator bypasses overrides entirely.
	if !perms.Has(models.PermAdministrator) {
		roleIDs := make(map[string]bool, len(member.RoleIDs))
		for _, id := range member.RoleIDs {
			roleIDs[id] = true
		}

		// Category layer first, channel layer second, so channel
		// overrides win.
		if channel.CategoryID != nil {
			category, err := s.channelRepo.GetByID(ctx, *channel.CategoryID)
			if err == nil && category.Overrides != nil {
				perms = applyOverrides(perms, category.Overrides, s.guildID, userID, roleIDs)
			}
		}
		if channel.Overrides != nil {
			perms = applyOverrides(perms, channel.Overrides, s.guildID, userID, roleIDs)
		}
	}

	perms = applyTimeout(perms, member, time.Now())

	s.cache.Set(key, perms)
	return perms, nil
}

func (s *permissionService) Require(ctx context.Context, userID string, perm models.Permission) error {
	perms, err := s.GuildPermissions(ctx, userID)
	if err != nil {
		return err
	}
	if !perms.Has(perm) {
		return fmt.Errorf("%w: missing permission", pkg.ErrForbidden)
	}
	return nil
}

func (s *permissionService) RequireInChannel(ctx context.Context, userID, channelID string, perm models.Permission) error {
	perms, err := s.ChannelPermissions(ctx, userID, channelID)
	if err != nil {
		return err
	}
	if !perms.Has(perm) {
		return fmt.Errorf("%w: missing permission in channel", pkg.ErrForbidden)
	}
	return nil
}

func (s *permissionService) TopPosition(ctx context.Context, userID string) (int, error) {
	roles, err := s.roleRepo.GetForMember(ctx, s.guildID, userID)
	if err != nil {
		return 0, err
	}
	return models.HighestPosition(roles), nil
}

func (s *permissionService) CanManageRole(ctx context.Context, actorID string, rolePosition int) error {
	perms, err := s.GuildPermissions(ctx, actorID)
	if err != nil {
		return err
	}
	if perms.Has(models.PermAdministrator) {
		return nil
	}
	top, err := s.TopPosition(ctx, actorID)
	if err != nil {
		return err
	}
	if rolePosition >= top {
		return fmt.Errorf("%w: role is not below your highest role", pkg.ErrForbidden)
	}
	return nil
}

func (s *permissionService) CanManageMember(ctx context.Context, actorID, targetID string) error {
	perms, err := s.GuildPermissions(ctx, actorID)
	if err != nil {
		return err
	}
	if perms.Has(models.PermAdministrator) {
		return nil
	}
	actorTop, err := s.TopPosition(ctx, actorID)
	if err != nil {
		return err
	}
	targetTop, err := s.TopPosition(ctx, targetID)
	if err != nil {
		return err
	}
	if targetTop >= actorTop {
		return fmt.Errorf("%w: target outranks or equals you", pkg.ErrForbidden)
	}
	return nil
}

func (s *permissionService) Invalidate(userID string) {
	s.cache.DeleteFunc(func(key string) bool {
		return key == userID || strings.HasPrefix(key, userID+":")
	})
}

func (s *permissionService) InvalidateAll() {
	s.cache.Clear()
}

// basePermissions ORs the member's role bitmasks.
func basePermissions(roles []models.Role) models.Permission {
	var perms models.Permission
	for _, role := range roles {
		perms |= role.Permissions
	}
	if perms.Has(models.PermAdministrator) {
		return models.PermAdministrator | models.PermAll
	}
	return perms
}

// applyOverrides folds one override layer into perms.
func applyOverrides(perms models.Permission, po *models.PermissionOverrides, guildID, userID string, roleIDs map[string]bool) models.Permission {
	// @everyone entry applies before named roles.
	if ov, ok := po.Roles[guildID]; ok {
		perms = perms&^ov.Deny | ov.Allow
	}

	// Named role entries union their allows and denies.
	var allow, deny models.Permission
	for roleID, ov := range po.Roles {
		if roleID == guildID || !roleIDs[roleID] {
			continue
		}
		allow |= ov.Allow
		deny |= ov.Deny
	}
	perms = perms&^deny | allow

	// The member entry always wins.
	if ov, ok := po.Members[userID]; ok {
		perms = perms&^ov.Deny | ov.Allow
	}
	return perms
}

// applyTimeout strips expression bits while a timeout is active.
// Administrators are exempt.
func applyTimeout(perms models.Permission, member *models.Member, now time.Time) models.Permission {
	if member.InTimeout(now) && !perms.Has(models.PermAdministrator) {
		perms &^= models.PermTimeoutBlocked
	}
	return perms
}
