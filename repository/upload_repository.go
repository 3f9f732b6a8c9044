package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// UploadRepository manages stored file records. The files themselves
// live on disk; callers unlink them using the returned rows.
type UploadRepository interface {
	Create(ctx context.Context, upload *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	// GetOwnedByIDs returns the subset of ids that exist, belong to
	// uploaderID, and were uploaded for channelID, preserving input
	// order and dropping the rest.
	GetOwnedByIDs(ctx context.Context, uploaderID, channelID string, ids []string) ([]models.Upload, error)
	GetByUploader(ctx context.Context, uploaderID string) ([]models.Upload, error)
	Delete(ctx context.Context, id string) error
}
