package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ChannelType enumerates the channel kinds. Categories group the other
// two and never nest.
type ChannelType string

const (
	ChannelText     ChannelType = "text"
	ChannelVoice    ChannelType = "voice"
	ChannelCategory ChannelType = "category"
)

// Valid reports whether t names a known channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelText, ChannelVoice, ChannelCategory:
		return true
	}
	return false
}

// Override is one allow/deny pair inside a channel's permission overrides.
// Deny wins over allow within the same pair.
type Override struct {
	Allow Permission `json:"allow"`
	Deny  Permission `json:"deny"`
}

// PermissionOverrides maps role ids and member ids to their override pair
// for a channel or category. Stored as JSON in the channels table.
type PermissionOverrides struct {
	Roles   map[string]Override `json:"roles,omitempty"`
	Members map[string]Override `json:"members,omitempty"`
}

// IsEmpty reports whether no overrides are set at all.
func (po *PermissionOverrides) IsEmpty() bool {
	return po == nil || (len(po.Roles) == 0 && len(po.Members) == 0)
}

// Channel is a text channel, a voice channel, or a category.
// CategoryID is nil for top-level channels and for categories themselves.
// Position orders channels within their (guild, category) group.
type Channel struct {
	ID         string               `json:"id"`
	GuildID    string               `json:"guild_id"`
	Name       string               `json:"name"`
	Type       ChannelType          `json:"type"`
	CategoryID *string              `json:"category_id,omitempty"`
	Position   int                  `json:"position"`
	Overrides  *PermissionOverrides `json:"overrides,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// CreateChannelRequest creates a channel, optionally inside a category.
type CreateChannelRequest struct {
	Name       string      `json:"name"`
	Type       ChannelType `json:"type"`
	CategoryID *string     `json:"category_id"`
}

// Validate checks the name, type, and nesting rule.
func (r *CreateChannelRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	n := utf8.RuneCountInString(r.Name)
	if n < 1 || n > 100 {
		return errBad("channel name must be between 1 and 100 characters")
	}
	if !r.Type.Valid() {
		return errBad("channel type must be text, voice, or category")
	}
	if r.Type == ChannelCategory && r.CategoryID != nil && *r.CategoryID != "" {
		return errBad("categories cannot be nested")
	}
	return nil
}

// UpdateChannelRequest patches a channel. Nil fields are untouched.
// Overrides, when present, replaces the whole override set.
type UpdateChannelRequest struct {
	Name      *string              `json:"name"`
	Overrides *PermissionOverrides `json:"overrides"`
}

// Validate checks the patched fields.
func (r *UpdateChannelRequest) Validate() error {
	if r.Name != nil {
		*r.Name = strings.TrimSpace(*r.Name)
		n := utf8.RuneCountInString(*r.Name)
		if n < 1 || n > 100 {
			return errBad("channel name must be between 1 and 100 characters")
		}
	}
	if r.Overrides != nil {
		for id, ov := range r.Overrides.Roles {
			if id == "" {
				return errBad("override role id cannot be empty")
			}
			if ov.Allow&^PermAll != 0 || ov.Deny&^PermAll != 0 {
				return errBad("override contains unknown permission bits")
			}
		}
		for id, ov := range r.Overrides.Members {
			if id == "" {
				return errBad("override member id cannot be empty")
			}
			if ov.Allow&^PermAll != 0 || ov.Deny&^PermAll != 0 {
				return errBad("override contains unknown permission bits")
			}
		}
	}
	return nil
}

// ChannelPosition is one entry in a bulk reorder. An empty CategoryID
// string moves the channel to the top level; nil leaves it where it is.
type ChannelPosition struct {
	ID         string  `json:"id"`
	Position   int     `json:"position"`
	CategoryID *string `json:"category_id"`
}

// ReorderChannelsRequest moves several channels in one shot.
type ReorderChannelsRequest struct {
	Channels []ChannelPosition `json:"channels"`
}

// Validate rejects empty and duplicate entries.
func (r *ReorderChannelsRequest) Validate() error {
	if len(r.Channels) == 0 {
		return errBad("channels list cannot be empty")
	}
	seen := make(map[string]bool, len(r.Channels))
	for _, cp := range r.Channels {
		if cp.ID == "" {
			return errBad("channel id cannot be empty")
		}
		if seen[cp.ID] {
			return errBad("duplicate channel id: %s", cp.ID)
		}
		seen[cp.ID] = true
		if cp.Position < 0 {
			return errBad("position cannot be negative")
		}
	}
	return nil
}
