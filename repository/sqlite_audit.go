package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/remus-chat/remus-node/database"
	"github.com/remus-chat/remus-node/models"
)

type sqliteAuditRepo struct {
	db *sql.DB
}

// NewSQLiteAuditRepo creates the SQLite implementation of AuditRepository.
func NewSQLiteAuditRepo(db *sql.DB) AuditRepository {
	return &sqliteAuditRepo{db: db}
}

func (r *sqliteAuditRepo) Add(ctx context.Context, entry *models.AuditEntry, maxEntries int) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO audit_log (id, guild_id, actor_id, action, target_id, detail)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING created_at`,
			entry.ID, entry.GuildID, entry.ActorID, entry.Action, entry.TargetID, entry.Detail,
		).Scan(&entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add audit entry: %w", err)
		}

		if maxEntries > 0 {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM audit_log WHERE guild_id = ? AND id NOT IN (
					SELECT id FROM audit_log WHERE guild_id = ?
					ORDER BY created_at DESC, id DESC LIMIT ?
				)`,
				entry.GuildID, entry.GuildID, maxEntries,
			); err != nil {
				return fmt.Errorf("failed to evict old audit entries: %w", err)
			}
		}
		return nil
	})
}

func (r *sqliteAuditRepo) List(ctx context.Context, guildID string, limit, offset int) ([]models.AuditEntry, error) {
	query := `
		SELECT a.id, a.guild_id, a.actor_id, a.action, a.target_id, a.detail, a.created_at,
		       COALESCE(p.username, '')
		FROM audit_log a LEFT JOIN profiles p ON p.id = a.actor_id
		WHERE a.guild_id = ?
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.GuildID, &e.ActorID, &e.Action, &e.TargetID, &e.Detail,
			&e.CreatedAt, &e.ActorUsername,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return entries, nil
}

func (r *sqliteAuditRepo) Count(ctx context.Context, guildID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_log WHERE guild_id = ?", guildID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}
