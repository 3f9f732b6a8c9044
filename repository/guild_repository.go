package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// GuildRepository manages the single guild row hosted by this node.
type GuildRepository interface {
	GetByID(ctx context.Context, id string) (*models.Guild, error)
	UpdateName(ctx context.Context, id, name string) error
}

// MetaRepository manages the key/value singleton rows: the node guild
// pointer and the settings document.
type MetaRepository interface {
	GetGuildID(ctx context.Context) (string, error)
	GetSettings(ctx context.Context) (models.Settings, error)
	SetSettings(ctx context.Context, settings models.Settings) error
}
