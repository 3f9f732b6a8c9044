package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// MessageRepository manages chat messages. Deleting a message nulls the
// reply pointers that targeted it (FK SET NULL), never cascades.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// List pages channel history newest first. beforeID narrows to
	// messages older than that message; empty starts from the newest.
	List(ctx context.Context, channelID, beforeID string, limit int) (*models.MessagePage, error)
	// Delete removes the message and its attachments' upload rows in one
	// transaction, returning the rows so the caller can unlink files.
	Delete(ctx context.Context, id string) ([]models.Upload, error)
}
