package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// BanRepository manages the ban list. Ban rows outlive the purge of the
// banned user's data.
type BanRepository interface {
	Create(ctx context.Context, ban *models.Ban) error
	GetByUserID(ctx context.Context, userID string) (*models.Ban, error)
	GetAll(ctx context.Context) ([]models.Ban, error)
	Exists(ctx context.Context, userID string) (bool, error)
	Delete(ctx context.Context, userID string) error
}
