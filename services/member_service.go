package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/repository"
	"github.com/remus-chat/remus-node/ws"
)

// VoiceModerator is the slice of the voice coordinator that member
// moderation needs: pushing server mute state, moving peers, and
// disconnecting them.
type VoiceModerator interface {
	ForceMuteUser(userID string, muted, deafened bool)
	MoveUser(ctx context.Context, userID, channelID string) error
	DisconnectUser(userID string)
}

// MemberService is membership and moderation business logic.
type MemberService interface {
	GetAll(ctx context.Context) ([]models.Member, error)
	Get(ctx context.Context, userID string) (*models.Member, error)
	// EnsureJoined creates the membership row on first touch. Banned
	// users are refused.
	EnsureJoined(ctx context.Context, userID, username string) error
	// Leave removes the member and purges all their data from the node.
	Leave(ctx context.Context, userID string) error
	UpdateNickname(ctx context.Context, actorID, targetID string, req *models.UpdateNicknameRequest) (*models.Member, error)
	UpdateRoles(ctx context.Context, actorID, targetID string, req *models.UpdateMemberRolesRequest) (*models.Member, error)
	UpdateTimeout(ctx context.Context, actorID, targetID string, req *models.UpdateTimeoutRequest) (*models.Member, error)
	UpdateVoiceState(ctx context.Context, actorID, targetID string, req *models.UpdateVoiceStateRequest) (*models.Member, error)
	Move(ctx context.Context, actorID, targetID string, req *models.MoveMemberRequest) error
	Kick(ctx context.Context, actorID, targetID string, req *models.KickRequest) error
	Ban(ctx context.Context, actorID, targetID string, req *models.BanRequest) error
	Unban(ctx context.Context, actorID, targetID string) error
	ListBans(ctx context.Context, actorID string) ([]models.Ban, error)
	IsBanned(ctx context.Context, userID string) (bool, error)
}

type memberService struct {
	guildID     string
	uploadsDir  string
	memberRepo  repository.MemberRepository
	profileRepo repository.ProfileRepository
	roleRepo    repository.RoleRepository
	channelRepo repository.ChannelRepository
	banRepo     repository.BanRepository
	metaRepo    repository.MetaRepository
	purgeRepo   repository.PurgeRepository
	perms       PermissionService
	audit       AuditService
	hub         ws.EventPublisher
	voice       VoiceModerator
}

// NewMemberService creates the member service.
func NewMemberService(
	guildID, uploadsDir string,
	memberRepo repository.MemberRepository,
	profileRepo repository.ProfileRepository,
	roleRepo repository.RoleRepository,
	channelRepo repository.ChannelRepository,
	banRepo repository.BanRepository,
	metaRepo repository.MetaRepository,
	purgeRepo repository.PurgeRepository,
	perms PermissionService,
	audit AuditService,
	hub ws.EventPublisher,
	voice VoiceModerator,
) MemberService {
	return &memberService{
		guildID:     guildID,
		uploadsDir:  uploadsDir,
		memberRepo:  memberRepo,
		profileRepo: profileRepo,
		roleRepo:    roleRepo,
		channelRepo: channelRepo,
		banRepo:     banRepo,
		metaRepo:    metaRepo,
		purgeRepo:   purgeRepo,
		perms:       perms,
		audit:       audit,
		hub:         hub,
		voice:       voice,
	}
}

func (s *memberService) GetAll(ctx context.Context) ([]models.Member, error) {
	members, err := s.memberRepo.GetAll(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	if members == nil {
		members = []models.Member{}
	}
	return members, nil
}

func (s *memberService) Get(ctx context.Context, userID string) (*models.Member, error) {
	return s.memberRepo.GetByID(ctx, s.guildID, userID)
}

func (s *memberService) EnsureJoined(ctx context.Context, userID, username string) error {
	banned, err := s.banRepo.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("%w: user is banned from this node", pkg.ErrForbidden)
	}

	exists, err := s.memberRepo.Exists(ctx, s.guildID, userID)
	if err != nil {
		return err
	}
	if exists {
		if err := s.profileRepo.TouchLastSeen(ctx, userID); err != nil {
			log.Printf("[member] failed to touch last seen for %s: %v", userID, err)
		}
		return nil
	}

	member := &models.Member{GuildID: s.guildID, UserID: userID}
	if err := s.memberRepo.Create(ctx, member); err != nil {
		if err == pkg.ErrAlreadyExists {
			return nil
		}
		return err
	}

	member.Username = username
	member.RoleIDs = []string{s.guildID}
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpMemberJoin, Data: member})
	log.Printf("[member] %s joined", userID)
	return nil
}

func (s *memberService) Leave(ctx context.Context, userID string) error {
	if _, err := s.memberRepo.GetByID(ctx, s.guildID, userID); err != nil {
		return err
	}

	s.voice.DisconnectUser(userID)

	uploads, err := s.purgeRepo.PurgeUser(ctx, userID)
	if err != nil {
		return err
	}
	removeUploadFiles(s.uploadsDir, uploads)

	s.perms.Invalidate(userID)
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpMemberLeave, Data: map[string]string{"user_id": userID}})
	log.Printf("[member] %s left, data purged", userID)
	return nil
}

func (s *memberService) UpdateNickname(ctx context.Context, actorID, targetID string, req *models.UpdateNicknameRequest) (*models.Member, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if actorID != targetID {
		if err := s.perms.Require(ctx, actorID, models.PermManageServer); err != nil {
			return nil, err
		}
		if err := s.perms.CanManageMember(ctx, actorID, targetID); err != nil {
			return nil, err
		}
	}

	if err := s.memberRepo.UpdateNickname(ctx, s.guildID, targetID, req.Nickname); err != nil {
		return nil, err
	}
	return s.broadcastMemberUpdate(ctx, actorID, targetID, models.AuditMemberNickname, map[string]string{"nickname": req.Nickname})
}

func (s *memberService) UpdateRoles(ctx context.Context, actorID, targetID string, req *models.UpdateMemberRolesRequest) (*models.Member, error) {
	if err := s.perms.Require(ctx, actorID, models.PermManageRoles); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.memberRepo.GetByID(ctx, s.guildID, targetID)
	if err != nil {
		return nil, err
	}

	// Every role being added or removed must sit below the actor.
	requested := make(map[string]bool, len(req.RoleIDs))
	for _, id := range req.RoleIDs {
		if id == s.guildID {
			continue
		}
		requested[id] = true
	}
	existing := make(map[string]bool, len(current.RoleIDs))
	for _, id := range current.RoleIDs {
		if id == s.guildID {
			continue
		}
		existing[id] = true
	}
	var changed []string
	for id := range requested {
		if !existing[id] {
			changed = append(changed, id)
		}
	}
	for id := range existing {
		if !requested[id] {
			changed = append(changed, id)
		}
	}
	for _, id := range changed {
		role, err := s.roleRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: role %s not found", pkg.ErrBadRequest, id)
		}
		if err := s.perms.CanManageRole(ctx, actorID, role.Position); err != nil {
			return nil, err
		}
	}

	if err := s.memberRepo.SetRoles(ctx, s.guildID, targetID, req.RoleIDs); err != nil {
		return nil, err
	}
	s.perms.Invalidate(targetID)
	return s.broadcastMemberUpdate(ctx, actorID, targetID, models.AuditMemberRoles, map[string]any{"role_ids": req.RoleIDs})
}

func (s *memberService) UpdateTimeout(ctx context.Context, actorID, targetID string, req *models.UpdateTimeoutRequest) (*models.Member, error) {
	if err := s.perms.Require(ctx, actorID, models.PermTimeoutMembers); err != nil {
		return nil, err
	}
	if err := s.perms.CanManageMember(ctx, actorID, targetID); err != nil {
		return nil, err
	}

	settings, err := s.metaRepo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(settings.TimeoutMaxMinutes); err != nil {
		return nil, err
	}

	var until *time.Time
	if req.Minutes > 0 {
		t := time.Now().UTC().Add(time.Duration(req.Minutes) * time.Minute)
		until = &t
	}
	if err := s.memberRepo.SetTimeout(ctx, s.guildID, targetID, until); err != nil {
		return nil, err
	}
	s.perms.Invalidate(targetID)
	return s.broadcastMemberUpdate(ctx, actorID, targetID, models.AuditMemberTimeout, map[string]int{"minutes": req.Minutes})
}

func (s *memberService) UpdateVoiceState(ctx context.Context, actorID, targetID string, req *models.UpdateVoiceStateRequest) (*models.Member, error) {
	if req.Muted != nil {
		if err := s.perms.Require(ctx, actorID, models.PermVoiceMuteMembers); err != nil {
			return nil, err
		}
	}
	if req.Deafened != nil {
		if err := s.perms.Require(ctx, actorID, models.PermVoiceDeafenMembers); err != nil {
			return nil, err
		}
	}
	if req.Muted == nil && req.Deafened == nil {
		return nil, fmt.Errorf("%w: nothing to update", pkg.ErrBadRequest)
	}
	if err := s.perms.CanManageMember(ctx, actorID, targetID); err != nil {
		return nil, err
	}

	if err := s.memberRepo.SetVoiceState(ctx, s.guildID, targetID, req.Muted, req.Deafened); err != nil {
		return nil, err
	}

	member, err := s.memberRepo.GetByID(ctx, s.guildID, targetID)
	if err != nil {
		return nil, err
	}
	s.voice.ForceMuteUser(targetID, member.VoiceMuted, member.VoiceDeafened)

	s.audit.Record(ctx, actorID, models.AuditMemberVoice, targetID, map[string]bool{
		"muted": member.VoiceMuted, "deafened": member.VoiceDeafened,
	})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpMemberUpdate, Data: member})
	return member, nil
}

func (s *memberService) Move(ctx context.Context, actorID, targetID string, req *models.MoveMemberRequest) error {
	if err := s.perms.Require(ctx, actorID, models.PermVoiceMoveMembers); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if err := s.perms.CanManageMember(ctx, actorID, targetID); err != nil {
		return err
	}

	channel, err := s.channelRepo.GetByID(ctx, req.ChannelID)
	if err != nil {
		return err
	}
	if channel.Type != models.ChannelVoice {
		return fmt.Errorf("%w: target is not a voice channel", pkg.ErrBadRequest)
	}

	if err := s.voice.MoveUser(ctx, targetID, req.ChannelID); err != nil {
		return err
	}
	s.audit.Record(ctx, actorID, models.AuditMemberMove, targetID, map[string]string{"channel_id": req.ChannelID})
	return nil
}

func (s *memberService) Kick(ctx context.Context, actorID, targetID string, req *models.KickRequest) error {
	if err := s.perms.Require(ctx, actorID, models.PermKickMembers); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if actorID == targetID {
		return fmt.Errorf("%w: cannot kick yourself", pkg.ErrBadRequest)
	}
	if err := s.perms.CanManageMember(ctx, actorID, targetID); err != nil {
		return err
	}

	s.voice.DisconnectUser(targetID)
	if err := s.memberRepo.Delete(ctx, s.guildID, targetID); err != nil {
		return err
	}
	s.perms.Invalidate(targetID)

	s.audit.Record(ctx, actorID, models.AuditMemberKick, targetID, map[string]string{"reason": req.Reason})
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpMemberLeave, Data: map[string]string{"user_id": targetID}})
	s.hub.DisconnectUser(targetID, "kicked")
	return nil
}

func (s *memberService) Ban(ctx context.Context, actorID, targetID string, req *models.BanRequest) error {
	if err := s.perms.Require(ctx, actorID, models.PermBanMembers); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if actorID == targetID {
		return fmt.Errorf("%w: cannot ban yourself", pkg.ErrBadRequest)
	}
	if err := s.perms.CanManageMember(ctx, actorID, targetID); err != nil {
		return err
	}

	// Snapshot the username before the purge erases the profile.
	username := ""
	if profile, err := s.profileRepo.GetByID(ctx, targetID); err == nil {
		username = profile.Username
	}

	ban := &models.Ban{UserID: targetID, Username: username, Reason: req.Reason, BannedBy: actorID}
	if err := s.banRepo.Create(ctx, ban); err != nil {
		return err
	}

	// Audit before the purge so the entry survives it (purge scrubs the
	// target's own entries, not entries about them).
	s.audit.Record(ctx, actorID, models.AuditMemberBan, targetID, map[string]string{"reason": req.Reason})

	s.voice.DisconnectUser(targetID)
	s.hub.BroadcastToUser(targetID, ws.Event{Op: ws.OpAuthBanned, Data: ws.AuthBannedData{Reason: req.Reason}})

	uploads, err := s.purgeRepo.PurgeUser(ctx, targetID)
	if err != nil {
		return err
	}
	removeUploadFiles(s.uploadsDir, uploads)

	s.perms.Invalidate(targetID)
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpMemberLeave, Data: map[string]string{"user_id": targetID}})
	s.hub.DisconnectUser(targetID, "banned")
	log.Printf("[member] %s banned by %s", targetID, actorID)
	return nil
}

func (s *memberService) Unban(ctx context.Context, actorID, targetID string) error {
	if err := s.perms.Require(ctx, actorID, models.PermBanMembers); err != nil {
		return err
	}
	if err := s.banRepo.Delete(ctx, targetID); err != nil {
		return err
	}
	s.audit.Record(ctx, actorID, models.AuditMemberUnban, targetID, nil)
	return nil
}

func (s *memberService) ListBans(ctx context.Context, actorID string) ([]models.Ban, error) {
	if err := s.perms.Require(ctx, actorID, models.PermBanMembers); err != nil {
		return nil, err
	}
	bans, err := s.banRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if bans == nil {
		bans = []models.Ban{}
	}
	return bans, nil
}

func (s *memberService) IsBanned(ctx context.Context, userID string) (bool, error) {
	return s.banRepo.Exists(ctx, userID)
}

func (s *memberService) broadcastMemberUpdate(ctx context.Context, actorID, targetID, action string, detail any) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(ctx, s.guildID, targetID)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actorID, action, targetID, detail)
	s.hub.BroadcastToRoom(ws.GuildRoom(s.guildID), ws.Event{Op: ws.OpMemberUpdate, Data: member})
	return member, nil
}
