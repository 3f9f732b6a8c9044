package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Member is a user's presence in the guild. Primary key (guild_id, user_id).
// RoleIDs always effectively includes the guild id (@everyone); storage
// normalizes that on read.
type Member struct {
	GuildID       string     `json:"guild_id"`
	UserID        string     `json:"user_id"`
	Nickname      string     `json:"nickname"`
	RoleIDs       []string   `json:"role_ids"`
	JoinedAt      time.Time  `json:"joined_at"`
	TimeoutUntil  *time.Time `json:"timeout_until,omitempty"`
	VoiceMuted    bool       `json:"voice_muted"`
	VoiceDeafened bool       `json:"voice_deafened"`

	// Profile fields joined in for member listings.
	Username   string     `json:"username"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// HasRole reports whether the member carries the role, @everyone included.
func (m *Member) HasRole(roleID string) bool {
	if roleID == m.GuildID {
		return true
	}
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// InTimeout reports whether the member's timeout is still active.
func (m *Member) InTimeout(now time.Time) bool {
	return m.TimeoutUntil != nil && m.TimeoutUntil.After(now)
}

// UpdateNicknameRequest sets or clears a member's nickname.
type UpdateNicknameRequest struct {
	Nickname string `json:"nickname"`
}

// Validate trims and bounds the nickname. Empty clears it.
func (r *UpdateNicknameRequest) Validate() error {
	r.Nickname = strings.TrimSpace(r.Nickname)
	if utf8.RuneCountInString(r.Nickname) > 32 {
		return errBad("nickname must be at most 32 characters")
	}
	return nil
}

// UpdateMemberRolesRequest replaces the member's role set (declarative,
// not add/remove). The guild id is implied and need not be listed.
type UpdateMemberRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

// Validate rejects duplicate ids.
func (r *UpdateMemberRolesRequest) Validate() error {
	seen := make(map[string]bool, len(r.RoleIDs))
	for _, id := range r.RoleIDs {
		if id == "" {
			return errBad("role id cannot be empty")
		}
		if seen[id] {
			return errBad("duplicate role id: %s", id)
		}
		seen[id] = true
	}
	return nil
}

// UpdateTimeoutRequest sets or clears a member timeout.
// Minutes == 0 clears; the per-guild settings cap the maximum.
type UpdateTimeoutRequest struct {
	Minutes int `json:"minutes"`
}

// Validate bounds the timeout against the guild's configured cap.
func (r *UpdateTimeoutRequest) Validate(maxMinutes int) error {
	if r.Minutes < 0 {
		return errBad("timeout minutes cannot be negative")
	}
	if r.Minutes > maxMinutes {
		return errBad("timeout exceeds the maximum of %d minutes", maxMinutes)
	}
	return nil
}

// UpdateVoiceStateRequest server-mutes or server-deafens a member.
// Nil fields are untouched.
type UpdateVoiceStateRequest struct {
	Muted    *bool `json:"muted"`
	Deafened *bool `json:"deafened"`
}

// MoveMemberRequest moves a member to another voice channel.
type MoveMemberRequest struct {
	ChannelID string `json:"channel_id"`
}

// Validate requires a target channel.
func (r *MoveMemberRequest) Validate() error {
	if r.ChannelID == "" {
		return errBad("channel_id is required")
	}
	return nil
}

// KickRequest and BanRequest carry an optional reason for the audit log.
type KickRequest struct {
	Reason string `json:"reason"`
}

// Validate bounds the reason.
func (r *KickRequest) Validate() error {
	if utf8.RuneCountInString(r.Reason) > 512 {
		return errBad("reason must be at most 512 characters")
	}
	return nil
}

// BanRequest bans a member, which also purges them from this node.
type BanRequest struct {
	Reason string `json:"reason"`
}

// Validate bounds the reason.
func (r *BanRequest) Validate() error {
	if utf8.RuneCountInString(r.Reason) > 512 {
		return errBad("reason must be at most 512 characters")
	}
	return nil
}
