package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/remus-chat/remus-node/database"
	"github.com/remus-chat/remus-node/models"
)

type sqlitePurgeRepo struct {
	db *sql.DB
}

// NewSQLitePurgeRepo creates the SQLite implementation of PurgeRepository.
func NewSQLitePurgeRepo(db *sql.DB) PurgeRepository {
	return &sqlitePurgeRepo{db: db}
}

func (r *sqlitePurgeRepo) PurgeUser(ctx context.Context, userID string) ([]models.Upload, error) {
	var uploads []models.Upload
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT "+uploadColumns+" FROM uploads WHERE uploader_id = ?", userID,
		)
		if err != nil {
			return fmt.Errorf("failed to get user uploads: %w", err)
		}
		for rows.Next() {
			u, err := scanUpload(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan upload row: %w", err)
			}
			uploads = append(uploads, u)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating upload rows: %w", err)
		}
		rows.Close()

		// Profile delete cascades members, member_roles, messages, and
		// upload rows through foreign keys.
		if _, err := tx.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?", userID); err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM audit_log WHERE actor_id = ?", userID); err != nil {
			return fmt.Errorf("failed to delete audit entries: %w", err)
		}

		return scrubOverrideEntry(ctx, tx, "members", userID)
	})
	if err != nil {
		return nil, err
	}
	return uploads, nil
}
