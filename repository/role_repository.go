package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// RoleRepository manages roles. Deleting a role also scrubs it from
// member assignments (FK cascade) and from channel overrides.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, id string) (*models.Role, error)
	GetAll(ctx context.Context, guildID string) ([]models.Role, error)
	// GetForMember returns the member's roles including @everyone.
	GetForMember(ctx context.Context, guildID, userID string) ([]models.Role, error)
	Update(ctx context.Context, role *models.Role) error
	UpdateIconURL(ctx context.Context, id string, iconURL *string) error
	Delete(ctx context.Context, id string) error
	// MaxPosition returns the highest role position in the guild.
	MaxPosition(ctx context.Context, guildID string) (int, error)
}
