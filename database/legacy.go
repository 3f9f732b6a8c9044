package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Legacy flat-file store shapes. Early nodes kept everything in one
// JSON document; the import walks it in foreign-key order inside a
// single transaction so a malformed file leaves the database empty.

type legacyStore struct {
	Guild    *legacyGuild    `json:"guild"`
	Profiles []legacyProfile `json:"profiles"`
	Users    []legacyProfile `json:"users"` // older name for profiles
	Roles    []legacyRole    `json:"roles"`
	Members  []legacyMember  `json:"members"`
	Channels []legacyChannel `json:"channels"`
	Messages []legacyMessage `json:"messages"`
	Uploads  []legacyUpload  `json:"uploads"`
	Bans     []legacyBan     `json:"bans"`
	Audit    []legacyAudit   `json:"audit"`
}

type legacyGuild struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"createdAt"`
}

type legacyProfile struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      *string    `json:"email"`
	CreatedAt  *time.Time `json:"createdAt"`
	LastSeenAt *time.Time `json:"lastSeenAt"`
}

type legacyRole struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Color       string     `json:"color"`
	Permissions int64      `json:"permissions"`
	Hoist       bool       `json:"hoist"`
	Position    int        `json:"position"`
	IconURL     *string    `json:"iconUrl"`
	CreatedAt   *time.Time `json:"createdAt"`
}

type legacyMember struct {
	UserID        string     `json:"userId"`
	Nickname      string     `json:"nickname"`
	RoleIDs       []string   `json:"roleIds"`
	JoinedAt      *time.Time `json:"joinedAt"`
	TimeoutUntil  *time.Time `json:"timeoutUntil"`
	VoiceMuted    bool       `json:"voiceMuted"`
	VoiceDeafened bool       `json:"voiceDeafened"`
}

type legacyChannel struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	CategoryID *string         `json:"categoryId"`
	Position   int             `json:"position"`
	Overrides  json.RawMessage `json:"overrides"`
	CreatedAt  *time.Time      `json:"createdAt"`
}

type legacyMessage struct {
	ID          string          `json:"id"`
	ChannelID   string          `json:"channelId"`
	AuthorID    string          `json:"authorId"`
	Content     string          `json:"content"`
	Attachments json.RawMessage `json:"attachments"`
	ReplyToID   *string         `json:"replyToId"`
	CreatedAt   *time.Time      `json:"createdAt"`
}

type legacyUpload struct {
	ID         string     `json:"id"`
	UploaderID string     `json:"uploaderId"`
	ChannelID  string     `json:"channelId"`
	Filename   string     `json:"filename"`
	StoredName string     `json:"storedName"`
	URL        string     `json:"url"`
	Size       int64      `json:"size"`
	MimeType   string     `json:"mimeType"`
	CreatedAt  *time.Time `json:"createdAt"`
}

type legacyBan struct {
	UserID    string     `json:"userId"`
	Username  string     `json:"username"`
	Reason    string     `json:"reason"`
	BannedBy  string     `json:"bannedBy"`
	CreatedAt *time.Time `json:"createdAt"`
}

type legacyAudit struct {
	ID        string     `json:"id"`
	ActorID   string     `json:"actorId"`
	Action    string     `json:"action"`
	TargetID  string     `json:"targetId"`
	Detail    string     `json:"detail"`
	CreatedAt *time.Time `json:"createdAt"`
}

// ImportLegacyJSON loads a legacy flat-file store into the relational
// schema. Rows referencing users or channels the file never declared
// are dropped rather than failing the whole import.
func (db *DB) ImportLegacyJSON(raw []byte) error {
	var store legacyStore
	if err := json.Unmarshal(raw, &store); err != nil {
		return fmt.Errorf("failed to parse legacy store: %w", err)
	}

	profiles := store.Profiles
	if len(profiles) == 0 {
		profiles = store.Users
	}

	ctx := context.Background()
	err := WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		guildID := ""
		if store.Guild != nil {
			guildID = store.Guild.ID
		}
		if guildID == "" {
			guildID = uuid.NewString()
		}
		guildName := "Remus Community"
		if store.Guild != nil && store.Guild.Name != "" {
			guildName = store.Guild.Name
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO guilds (id, name, created_at) VALUES (?, ?, ?)",
			guildID, guildName, legacyTime(guildTime(store.Guild)),
		); err != nil {
			return fmt.Errorf("guild: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO meta (key, value) VALUES ('node_guild_id', ?)", guildID,
		); err != nil {
			return fmt.Errorf("meta: %w", err)
		}

		knownUsers := make(map[string]bool, len(profiles))
		for _, p := range profiles {
			if p.ID == "" {
				continue
			}
			knownUsers[p.ID] = true
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO profiles (id, username, email, created_at, last_seen_at) VALUES (?, ?, ?, ?, ?)",
				p.ID, p.Username, p.Email, legacyTime(p.CreatedAt), p.LastSeenAt,
			); err != nil {
				return fmt.Errorf("profile %s: %w", p.ID, err)
			}
		}

		knownRoles := make(map[string]bool, len(store.Roles)+1)
		knownRoles[guildID] = true
		everyoneSeen := false
		for _, r := range store.Roles {
			id := r.ID
			if id == "" {
				id = uuid.NewString()
			}
			if id == guildID {
				everyoneSeen = true
			}
			knownRoles[id] = true
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO roles (id, guild_id, name, color, permissions, hoist, position, icon_url, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, guildID, r.Name, r.Color, r.Permissions, r.Hoist, r.Position, r.IconURL, legacyTime(r.CreatedAt),
			); err != nil {
				return fmt.Errorf("role %s: %w", id, err)
			}
		}
		if !everyoneSeen {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO roles (id, guild_id, name, permissions, position, created_at) VALUES (?, ?, '@everyone', ?, 0, ?)",
				guildID, guildID, defaultEveryonePermissions, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("everyone role: %w", err)
			}
		}

		for _, m := range store.Members {
			if !knownUsers[m.UserID] {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO members (guild_id, user_id, nickname, joined_at, timeout_until, voice_muted, voice_deafened)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				guildID, m.UserID, m.Nickname, legacyTime(m.JoinedAt), m.TimeoutUntil, m.VoiceMuted, m.VoiceDeafened,
			); err != nil {
				return fmt.Errorf("member %s: %w", m.UserID, err)
			}
			for _, roleID := range m.RoleIDs {
				if roleID == guildID || !knownRoles[roleID] {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					"INSERT OR IGNORE INTO member_roles (guild_id, user_id, role_id) VALUES (?, ?, ?)",
					guildID, m.UserID, roleID,
				); err != nil {
					return fmt.Errorf("member role %s/%s: %w", m.UserID, roleID, err)
				}
			}
		}

		knownChannels := make(map[string]bool, len(store.Channels))
		for _, c := range store.Channels {
			id := c.ID
			if id == "" {
				id = uuid.NewString()
			}
			knownChannels[id] = true
			var overrides any
			if len(c.Overrides) > 0 && string(c.Overrides) != "null" {
				overrides = string(c.Overrides)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO channels (id, guild_id, name, type, category_id, position, overrides, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				id, guildID, c.Name, c.Type, c.CategoryID, c.Position, overrides, legacyTime(c.CreatedAt),
			); err != nil {
				return fmt.Errorf("channel %s: %w", id, err)
			}
		}

		for _, m := range store.Messages {
			if !knownChannels[m.ChannelID] || !knownUsers[m.AuthorID] {
				continue
			}
			id := m.ID
			if id == "" {
				id = uuid.NewString()
			}
			var attachments any
			if len(m.Attachments) > 0 && string(m.Attachments) != "null" {
				attachments = string(m.Attachments)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO messages (id, channel_id, author_id, content, attachments, reply_to_id, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, m.ChannelID, m.AuthorID, m.Content, attachments, m.ReplyToID, legacyTime(m.CreatedAt),
			); err != nil {
				return fmt.Errorf("message %s: %w", id, err)
			}
		}

		for _, u := range store.Uploads {
			if !knownUsers[u.UploaderID] {
				continue
			}
			id := u.ID
			if id == "" {
				id = uuid.NewString()
			}
			// Legacy stores predate channel binding; an unknown channel
			// leaves the upload unbound rather than dropping it.
			channelID := u.ChannelID
			if !knownChannels[channelID] {
				channelID = ""
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO uploads (id, uploader_id, channel_id, filename, stored_name, url, size, mime_type, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, u.UploaderID, channelID, u.Filename, u.StoredName, u.URL, u.Size, u.MimeType, legacyTime(u.CreatedAt),
			); err != nil {
				return fmt.Errorf("upload %s: %w", id, err)
			}
		}

		for _, b := range store.Bans {
			if b.UserID == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO bans (user_id, username, reason, banned_by, created_at) VALUES (?, ?, ?, ?, ?)",
				b.UserID, b.Username, b.Reason, b.BannedBy, legacyTime(b.CreatedAt),
			); err != nil {
				return fmt.Errorf("ban %s: %w", b.UserID, err)
			}
		}

		for _, a := range store.Audit {
			id := a.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO audit_log (id, guild_id, actor_id, action, target_id, detail, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, guildID, a.ActorID, a.Action, a.TargetID, a.Detail, legacyTime(a.CreatedAt),
			); err != nil {
				return fmt.Errorf("audit %s: %w", id, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("[database] legacy store imported: %d profiles, %d channels, %d messages",
		len(profiles), len(store.Channels), len(store.Messages))
	return nil
}

func guildTime(g *legacyGuild) *time.Time {
	if g == nil {
		return nil
	}
	return g.CreatedAt
}

func legacyTime(t *time.Time) time.Time {
	if t != nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
