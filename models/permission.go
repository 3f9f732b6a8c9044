// Package models defines the domain types owned by the node: the guild,
// roles and their permission bitmasks, members, channels with permission
// overrides, messages, uploads, bans, audit entries and settings, plus the
// request types the HTTP layer validates at the boundary.
package models

// Permission is a role permission bitmask.
//
// Check: perms.Has(PermSendMessages)
// Grant: perms | PermSendMessages
// Strip: perms &^ PermSendMessages
type Permission int64

const (
	PermAdministrator Permission = 1 << iota
	PermViewChannels
	PermManageChannels
	PermManageRoles
	PermManageServer
	PermViewAuditLog
	PermSendMessages
	PermReadHistory
	PermManageMessages
	PermAttachFiles
	PermVoiceConnect
	PermVoiceSpeak
	PermVoiceMuteMembers
	PermVoiceDeafenMembers
	PermVoiceMoveMembers
	PermScreenshare
	PermKickMembers
	PermBanMembers
	PermTimeoutMembers

	permCount = iota
)

// PermAll is the full mask. Administrators resolve to this everywhere.
const PermAll Permission = (1 << permCount) - 1

// PermTimeoutBlocked are the bits stripped from a member while their
// timeout is active. Administrators are exempt.
const PermTimeoutBlocked Permission = PermSendMessages | PermAttachFiles |
	PermVoiceSpeak | PermScreenshare

// PermDefaultEveryone is the baseline mask seeded onto the @everyone role.
const PermDefaultEveryone Permission = PermViewChannels | PermSendMessages |
	PermReadHistory | PermAttachFiles | PermVoiceConnect | PermVoiceSpeak |
	PermScreenshare

// Has reports whether the permission bit is set. Administrator implies
// every bit.
func (p Permission) Has(perm Permission) bool {
	if p&PermAdministrator != 0 {
		return true
	}
	return p&perm == perm
}
