package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
)

type sqliteProfileRepo struct {
	db *sql.DB
}

// NewSQLiteProfileRepo creates the SQLite implementation of ProfileRepository.
func NewSQLiteProfileRepo(db *sql.DB) ProfileRepository {
	return &sqliteProfileRepo{db: db}
}

func (r *sqliteProfileRepo) Upsert(ctx context.Context, profile *models.Profile) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO profiles (id, username, email, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = COALESCE(excluded.email, profiles.email),
			last_seen_at = excluded.last_seen_at`

	if _, err := r.db.ExecContext(ctx, query,
		profile.ID, profile.Username, profile.Email, now, now,
	); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *sqliteProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT id, username, email, created_at, last_seen_at FROM profiles WHERE id = ?`

	profile := &models.Profile{}
	var lastSeen sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID, &profile.Username, &profile.Email, &profile.CreatedAt, &lastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if lastSeen.Valid {
		profile.LastSeenAt = &lastSeen.Time
	}
	return profile, nil
}

func (r *sqliteProfileRepo) TouchLastSeen(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE profiles SET last_seen_at = ? WHERE id = ?", time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("failed to touch last seen: %w", err)
	}
	return nil
}
