package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
)

type sqliteUploadRepo struct {
	db *sql.DB
}

// NewSQLiteUploadRepo creates the SQLite implementation of UploadRepository.
func NewSQLiteUploadRepo(db *sql.DB) UploadRepository {
	return &sqliteUploadRepo{db: db}
}

const uploadColumns = "id, uploader_id, channel_id, filename, stored_name, url, size, mime_type, created_at"

func scanUpload(scanner interface{ Scan(...any) error }) (models.Upload, error) {
	var u models.Upload
	err := scanner.Scan(
		&u.ID, &u.UploaderID, &u.ChannelID, &u.Filename, &u.StoredName, &u.URL, &u.Size, &u.MimeType, &u.CreatedAt,
	)
	return u, err
}

func (r *sqliteUploadRepo) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (id, uploader_id, channel_id, filename, stored_name, url, size, mime_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		upload.ID, upload.UploaderID, upload.ChannelID, upload.Filename, upload.StoredName,
		upload.URL, upload.Size, upload.MimeType,
	).Scan(&upload.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

func (r *sqliteUploadRepo) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+uploadColumns+" FROM uploads WHERE id = ?", id)
	upload, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &upload, nil
}

func (r *sqliteUploadRepo) GetOwnedByIDs(ctx context.Context, uploaderID, channelID string, ids []string) ([]models.Upload, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byID := make(map[string]models.Upload, len(ids))
	for _, id := range ids {
		row := r.db.QueryRowContext(ctx,
			"SELECT "+uploadColumns+" FROM uploads WHERE id = ? AND uploader_id = ? AND channel_id = ?",
			id, uploaderID, channelID,
		)
		upload, err := scanUpload(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get upload %s: %w", id, err)
		}
		byID[upload.ID] = upload
	}

	uploads := make([]models.Upload, 0, len(byID))
	seen := make(map[string]bool, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			uploads = append(uploads, u)
		}
	}
	return uploads, nil
}

func (r *sqliteUploadRepo) GetByUploader(ctx context.Context, uploaderID string) ([]models.Upload, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+uploadColumns+" FROM uploads WHERE uploader_id = ?", uploaderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get uploads by uploader: %w", err)
	}
	defer rows.Close()

	var uploads []models.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upload rows: %w", err)
	}
	return uploads, nil
}

func (r *sqliteUploadRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM uploads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
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
