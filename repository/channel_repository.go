package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// ChannelRepository manages channels and categories.
type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	GetAll(ctx context.Context, guildID string) ([]models.Channel, error)
	Update(ctx context.Context, channel *models.Channel) error
	// UpdatePositions applies a bulk reorder atomically. Entries with a
	// nil CategoryID keep their current category; an empty string moves
	// the channel to the top level.
	UpdatePositions(ctx context.Context, guildID string, positions []models.ChannelPosition) error
	// Delete removes the channel. Deleting a category lifts its children
	// to the top level (FK SET NULL); deleting a text channel cascades
	// its messages and returns the uploads their attachments referenced
	// so the caller can unlink the files.
	Delete(ctx context.Context, id string) ([]models.Upload, error)
	// NextPosition returns one past the highest position in the
	// (guild, category) group.
	NextPosition(ctx context.Context, guildID string, categoryID *string) (int, error)
	// RemoveMemberOverrides scrubs a user's member override entries from
	// every channel, part of purge.
	RemoveMemberOverrides(ctx context.Context, userID string) error
}
