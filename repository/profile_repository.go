// Package repository defines the database access layer. Services never
// write SQL themselves; they depend on these interfaces, and the
// sqlite_*.go files provide the implementations.
package repository

import (
	"context"

	"github.com/remus-chat/remus-node/models"
)

// ProfileRepository manages node-local user records. Profiles are
// created on first authenticated touch and removed only by purge.
type ProfileRepository interface {
	// Upsert inserts the profile or refreshes username/email on conflict.
	Upsert(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	TouchLastSeen(ctx context.Context, id string) error
}
