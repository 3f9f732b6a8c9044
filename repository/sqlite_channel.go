package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/remus-chat/remus-node/database"
	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
)

type sqliteChannelRepo struct {
	db *sql.DB
}

// NewSQLiteChannelRepo creates the SQLite implementation of ChannelRepository.
func NewSQLiteChannelRepo(db *sql.DB) ChannelRepository {
	return &sqliteChannelRepo{db: db}
}

const channelColumns = "id, guild_id, name, type, category_id, position, overrides, created_at"

func scanChannel(scanner interface{ Scan(...any) error }) (models.Channel, error) {
	var channel models.Channel
	var categoryID, overrides sql.NullString
	err := scanner.Scan(
		&channel.ID, &channel.GuildID, &channel.Name, &channel.Type,
		&categoryID, &channel.Position, &overrides, &channel.CreatedAt,
	)
	if err != nil {
		return channel, err
	}
	if categoryID.Valid {
		channel.CategoryID = &categoryID.String
	}
	if overrides.Valid && overrides.String != "" {
		var po models.PermissionOverrides
		if err := json.Unmarshal([]byte(overrides.String), &po); err != nil {
			return channel, fmt.Errorf("failed to parse channel overrides: %w", err)
		}
		channel.Overrides = &po
	}
	return channel, nil
}

func overridesValue(po *models.PermissionOverrides) (any, error) {
	if po.IsEmpty() {
		return nil, nil
	}
	raw, err := json.Marshal(po)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal channel overrides: %w", err)
	}
	return string(raw), nil
}

func (r *sqliteChannelRepo) Create(ctx context.Context, channel *models.Channel) error {
	overrides, err := overridesValue(channel.Overrides)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO channels (id, guild_id, name, type, category_id, position, overrides)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at`

	err = r.db.QueryRowContext(ctx, query,
		channel.ID, channel.GuildID, channel.Name, channel.Type,
		channel.CategoryID, channel.Position, overrides,
	).Scan(&channel.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

func (r *sqliteChannelRepo) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+channelColumns+" FROM channels WHERE id = ?", id)
	channel, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &channel, nil
}

func (r *sqliteChannelRepo) GetAll(ctx context.Context, guildID string) ([]models.Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+channelColumns+" FROM channels WHERE guild_id = ? ORDER BY position ASC, created_at ASC",
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}
	return channels, nil
}

func (r *sqliteChannelRepo) Update(ctx context.Context, channel *models.Channel) error {
	overrides, err := overridesValue(channel.Overrides)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE channels SET name = ?, overrides = ? WHERE id = ?",
		channel.Name, overrides, channel.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
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

func (r *sqliteChannelRepo) UpdatePositions(ctx context.Context, guildID string, positions []models.ChannelPosition) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, cp := range positions {
			var result sql.Result
			var err error
			if cp.CategoryID == nil {
				result, err = tx.ExecContext(ctx,
					"UPDATE channels SET position = ? WHERE id = ? AND guild_id = ?",
					cp.Position, cp.ID, guildID)
			} else if *cp.CategoryID == "" {
				result, err = tx.ExecContext(ctx,
					"UPDATE channels SET position = ?, category_id = NULL WHERE id = ? AND guild_id = ?",
					cp.Position, cp.ID, guildID)
			} else {
				result, err = tx.ExecContext(ctx,
					"UPDATE channels SET position = ?, category_id = ? WHERE id = ? AND guild_id = ?",
					cp.Position, *cp.CategoryID, cp.ID, guildID)
			}
			if err != nil {
				return fmt.Errorf("failed to reorder channel %s: %w", cp.ID, err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check rows affected: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("%w: channel %s", pkg.ErrNotFound, cp.ID)
			}
		}
		return nil
	})
}

func (r *sqliteChannelRepo) Delete(ctx context.Context, id string) ([]models.Upload, error) {
	var uploads []models.Upload
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		uploads, err = collectChannelUploads(ctx, tx, id)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete channel: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return pkg.ErrNotFound
		}

		for _, u := range uploads {
			if _, err := tx.ExecContext(ctx, "DELETE FROM uploads WHERE id = ?", u.ID); err != nil {
				return fmt.Errorf("failed to delete upload %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

// collectChannelUploads resolves every upload referenced by the
// channel's message attachments, matching by id and by url since legacy
// messages stored only urls.
func collectChannelUploads(ctx context.Context, q database.TxQuerier, channelID string) ([]models.Upload, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT attachments FROM messages WHERE channel_id = ? AND attachments IS NOT NULL", channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel attachments: %w", err)
	}

	ids := make(map[string]bool)
	urls := make(map[string]bool)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan attachments: %w", err)
		}
		var attachments []models.Attachment
		if err := json.Unmarshal([]byte(raw), &attachments); err != nil {
			continue // malformed legacy row, nothing to unlink
		}
		for _, a := range attachments {
			if a.ID != "" {
				ids[a.ID] = true
			}
			if a.URL != "" {
				urls[a.URL] = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	rows.Close()

	return matchUploads(ctx, q, ids, urls)
}

// matchUploads scans the uploads table for rows whose id or url appears
// in the given sets.
func matchUploads(ctx context.Context, q database.TxQuerier, ids, urls map[string]bool) ([]models.Upload, error) {
	if len(ids) == 0 && len(urls) == 0 {
		return nil, nil
	}

	uploadRows, err := q.QueryContext(ctx, "SELECT "+uploadColumns+" FROM uploads")
	if err != nil {
		return nil, fmt.Errorf("failed to get uploads: %w", err)
	}
	defer uploadRows.Close()

	var uploads []models.Upload
	for uploadRows.Next() {
		u, err := scanUpload(uploadRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		if ids[u.ID] || urls[u.URL] {
			uploads = append(uploads, u)
		}
	}
	if err := uploadRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upload rows: %w", err)
	}
	return uploads, nil
}

func (r *sqliteChannelRepo) NextPosition(ctx context.Context, guildID string, categoryID *string) (int, error) {
	var max sql.NullInt64
	var err error
	if categoryID == nil {
		err = r.db.QueryRowContext(ctx,
			"SELECT MAX(position) FROM channels WHERE guild_id = ? AND category_id IS NULL", guildID,
		).Scan(&max)
	} else {
		err = r.db.QueryRowContext(ctx,
			"SELECT MAX(position) FROM channels WHERE guild_id = ? AND category_id = ?", guildID, *categoryID,
		).Scan(&max)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get next channel position: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func (r *sqliteChannelRepo) RemoveMemberOverrides(ctx context.Context, userID string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return scrubOverrideEntry(ctx, tx, "members", userID)
	})
}
