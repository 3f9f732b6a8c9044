package models

import "time"

// Audit action names. The log records who did what to whom; the store
// evicts oldest entries past the configured cap.
const (
	AuditChannelCreate  = "channel.create"
	AuditChannelUpdate  = "channel.update"
	AuditChannelDelete  = "channel.delete"
	AuditChannelReorder = "channel.reorder"
	AuditRoleCreate     = "role.create"
	AuditRoleUpdate     = "role.update"
	AuditRoleDelete     = "role.delete"
	AuditMemberRoles    = "member.roles"
	AuditMemberNickname = "member.nickname"
	AuditMemberTimeout  = "member.timeout"
	AuditMemberVoice    = "member.voice"
	AuditMemberMove     = "member.move"
	AuditMemberKick     = "member.kick"
	AuditMemberBan      = "member.ban"
	AuditMemberUnban    = "member.unban"
	AuditMessageDelete  = "message.delete"
	AuditSettingsUpdate = "settings.update"
	AuditGuildUpdate    = "guild.update"
)

// AuditEntry is one moderation event. Detail is freeform JSON set by the
// service that logged it.
type AuditEntry struct {
	ID        string    `json:"id"`
	GuildID   string    `json:"guild_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	TargetID  string    `json:"target_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Actor snapshot joined in for listings.
	ActorUsername string `json:"actor_username,omitempty"`
}
