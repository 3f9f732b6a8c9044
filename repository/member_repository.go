package repository

import (
	"context"
	"time"

	"github.com/remus-chat/remus-node/models"
)

// MemberRepository manages guild membership rows. Reads join in the
// profile username and normalize RoleIDs to include @everyone.
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, guildID, userID string) (*models.Member, error)
	GetAll(ctx context.Context, guildID string) ([]models.Member, error)
	Exists(ctx context.Context, guildID, userID string) (bool, error)
	Count(ctx context.Context, guildID string) (int, error)
	UpdateNickname(ctx context.Context, guildID, userID, nickname string) error
	// SetRoles replaces the member's assigned roles. @everyone is implicit
	// and never stored.
	SetRoles(ctx context.Context, guildID, userID string, roleIDs []string) error
	SetTimeout(ctx context.Context, guildID, userID string, until *time.Time) error
	SetVoiceState(ctx context.Context, guildID, userID string, muted, deafened *bool) error
	Delete(ctx context.Context, guildID, userID string) error
}
