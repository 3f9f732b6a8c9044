package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// AuditRepository manages the moderation log with a bounded size.
type AuditRepository interface {
	// Add inserts an entry and evicts the oldest rows past maxEntries,
	// both in one transaction.
	Add(ctx context.Context, entry *models.AuditEntry, maxEntries int) error
	List(ctx context.Context, guildID string, limit, offset int) ([]models.AuditEntry, error)
	Count(ctx context.Context, guildID string) (int, error)
}
