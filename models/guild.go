package models

import "time"

// Guild is the single community hosted by this node. Exactly one exists;
// a meta row points at it. Its id doubles as the @everyone role id.
type Guild struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// GuildView is the hydrated guild shape returned by GET /api/guilds:
// the guild plus its members, roles, channels, and the caller's guild-wide
// effective permissions.
type GuildView struct {
	Guild
	Members     []Member   `json:"members"`
	Roles       []Role     `json:"roles"`
	Channels    []Channel  `json:"channels"`
	Permissions Permission `json:"permissions"`
	IconURL     *string    `json:"icon_url,omitempty"`
}

// Settings is the singleton tuning row kept in meta.
type Settings struct {
	AuditMaxEntries   int `json:"audit_max_entries"`
	TimeoutMaxMinutes int `json:"timeout_max_minutes"`
}

// DefaultSettings returns the values a fresh node boots with.
func DefaultSettings() Settings {
	return Settings{AuditMaxEntries: 1000, TimeoutMaxMinutes: 10080}
}

// UpdateSettingsRequest patches the settings singleton. Nil fields keep
// their current value.
type UpdateSettingsRequest struct {
	AuditMaxEntries   *int `json:"audit_max_entries"`
	TimeoutMaxMinutes *int `json:"timeout_max_minutes"`
}

// Validate checks bounds on the patched fields.
func (r *UpdateSettingsRequest) Validate() error {
	if r.AuditMaxEntries != nil && *r.AuditMaxEntries < 1 {
		return errBad("audit_max_entries must be positive")
	}
	if r.TimeoutMaxMinutes != nil && *r.TimeoutMaxMinutes < 1 {
		return errBad("timeout_max_minutes must be positive")
	}
	return nil
}
