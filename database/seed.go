package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/remus-chat/remus-node/models"
)

const defaultEveryonePermissions = int64(models.PermDefaultEveryone)

// EnsureSeed makes sure the node guild exists and returns its id.
// A fresh database gets the guild, the @everyone and Admin roles, a
// "general" text channel, a "Lounge" voice channel, and default
// settings. A database that already has a guild is left untouched.
func (db *DB) EnsureSeed(ctx context.Context, serverName string) (string, error) {
	var guildID string
	err := db.Conn.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = 'node_guild_id'",
	).Scan(&guildID)
	if err == nil {
		return guildID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read node guild id: %w", err)
	}

	guildID = uuid.NewString()
	now := time.Now().UTC()
	settings, err := json.Marshal(models.DefaultSettings())
	if err != nil {
		return "", fmt.Errorf("failed to marshal default settings: %w", err)
	}

	err = WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO guilds (id, name, created_at) VALUES (?, ?, ?)",
			guildID, serverName, now,
		); err != nil {
			return fmt.Errorf("guild: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO meta (key, value) VALUES ('node_guild_id', ?), ('settings', ?)",
			guildID, string(settings),
		); err != nil {
			return fmt.Errorf("meta: %w", err)
		}

		// @everyone shares the guild id; Admin sits above it.
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO roles (id, guild_id, name, permissions, position, created_at) VALUES (?, ?, '@everyone', ?, 0, ?)",
			guildID, guildID, defaultEveryonePermissions, now,
		); err != nil {
			return fmt.Errorf("everyone role: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO roles (id, guild_id, name, color, permissions, hoist, position, created_at) VALUES (?, ?, 'Admin', '#e74c3c', ?, 1, 1, ?)",
			uuid.NewString(), guildID, int64(models.PermAll), now,
		); err != nil {
			return fmt.Errorf("admin role: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO channels (id, guild_id, name, type, position, created_at) VALUES (?, ?, 'general', 'text', 0, ?)",
			uuid.NewString(), guildID, now,
		); err != nil {
			return fmt.Errorf("general channel: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO channels (id, guild_id, name, type, position, created_at) VALUES (?, ?, 'Lounge', 'voice', 1, ?)",
			uuid.NewString(), guildID, now,
		); err != nil {
			return fmt.Errorf("lounge channel: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to seed node guild: %w", err)
	}

	log.Printf("[database] seeded node guild %s (%q)", guildID, serverName)
	return guildID, nil
}
