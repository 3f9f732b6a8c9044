package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// PurgeRepository removes every trace of a user from the node in one
// transaction. Ban rows are deliberately left alone.
type PurgeRepository interface {
	// PurgeUser deletes the profile (cascading membership, role
	// assignments, messages, and upload rows), scrubs the user's member
	// overrides and audit entries, and returns the upload rows so the
	// caller can unlink the files afterwards.
	PurgeUser(ctx context.Context, userID string) ([]models.Upload, error)
}
