package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role is a named permission bundle with a hierarchy position.
// Higher position outranks lower. The @everyone role has id == guildID,
// position 0, and cannot be deleted.
type Role struct {
	ID          string     `json:"id"`
	GuildID     string     `json:"guild_id"`
	Name        string     `json:"name"`
	Color       string     `json:"color"`
	Permissions Permission `json:"permissions"`
	Hoist       bool       `json:"hoist"`
	Position    int        `json:"position"`
	IconURL     *string    `json:"icon_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsEveryone reports whether this is the guild's @everyone role.
func (r *Role) IsEveryone() bool { return r.ID == r.GuildID }

// HighestPosition returns the top position among the given roles.
// Moderation gating compares actors and targets by this value.
func HighestPosition(roles []Role) int {
	max := 0
	for _, r := range roles {
		if r.Position > max {
			max = r.Position
		}
	}
	return max
}

// CreateRoleRequest creates a role below the actor's own top position.
type CreateRoleRequest struct {
	Name        string     `json:"name"`
	Color       string     `json:"color"`
	Permissions Permission `json:"permissions"`
	Hoist       bool       `json:"hoist"`
}

// Validate checks the role name and color.
func (r *CreateRoleRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	n := utf8.RuneCountInString(r.Name)
	if n < 1 || n > 100 {
		return errBad("role name must be between 1 and 100 characters")
	}
	if r.Color != "" && !validHexColor(r.Color) {
		return errBad("role color must be a #rrggbb hex value")
	}
	if r.Permissions&^PermAll != 0 {
		return errBad("permissions contain unknown bits")
	}
	return nil
}

// UpdateRoleRequest patches a role. Nil fields are untouched.
type UpdateRoleRequest struct {
	Name        *string     `json:"name"`
	Color       *string     `json:"color"`
	Permissions *Permission `json:"permissions"`
	Hoist       *bool       `json:"hoist"`
	Position    *int        `json:"position"`
}

// Validate checks the patched fields.
func (r *UpdateRoleRequest) Validate() error {
	if r.Name != nil {
		*r.Name = strings.TrimSpace(*r.Name)
		n := utf8.RuneCountInString(*r.Name)
		if n < 1 || n > 100 {
			return errBad("role name must be between 1 and 100 characters")
		}
	}
	if r.Color != nil && *r.Color != "" && !validHexColor(*r.Color) {
		return errBad("role color must be a #rrggbb hex value")
	}
	if r.Permissions != nil && *r.Permissions&^PermAll != 0 {
		return errBad("permissions contain unknown bits")
	}
	if r.Position != nil && *r.Position < 0 {
		return errBad("position cannot be negative")
	}
	return nil
}

func validHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
