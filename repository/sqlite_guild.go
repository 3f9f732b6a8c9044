package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
)

type sqliteGuildRepo struct {
	db *sql.DB
}

// NewSQLiteGuildRepo creates the SQLite implementation of GuildRepository.
func NewSQLiteGuildRepo(db *sql.DB) GuildRepository {
	return &sqliteGuildRepo{db: db}
}

func (r *sqliteGuildRepo) GetByID(ctx context.Context, id string) (*models.Guild, error) {
	query := `SELECT id, name, created_at FROM guilds WHERE id = ?`

	guild := &models.Guild{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&guild.ID, &guild.Name, &guild.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild: %w", err)
	}
	return guild, nil
}

func (r *sqliteGuildRepo) UpdateName(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE guilds SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("failed to update guild name: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

type sqliteMetaRepo struct {
	db *sql.DB
}

// NewSQLiteMetaRepo creates the SQLite implementation of MetaRepository.
func NewSQLiteMetaRepo(db *sql.DB) MetaRepository {
	return &sqliteMetaRepo{db: db}
}

func (r *sqliteMetaRepo) GetGuildID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'node_guild_id'").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", pkg.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get node guild id: %w", err)
	}
	return id, nil
}

func (r *sqliteMetaRepo) GetSettings(ctx context.Context) (models.Settings, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'settings'").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}

	settings := models.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return models.Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return settings, nil
}

func (r *sqliteMetaRepo) SetSettings(ctx context.Context, settings models.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES ('settings', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		string(raw),
	); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
