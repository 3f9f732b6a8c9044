package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/remus-chat/remus-node/database"
	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
)

type sqliteRoleRepo struct {
	db *sql.DB
}

// NewSQLiteRoleRepo creates the SQLite implementation of RoleRepository.
func NewSQLiteRoleRepo(db *sql.DB) RoleRepository {
	return &sqliteRoleRepo{db: db}
}

const roleColumns = "id, guild_id, name, color, permissions, hoist, position, icon_url, created_at"

func scanRole(scanner interface{ Scan(...any) error }) (models.Role, error) {
	var role models.Role
	var iconURL sql.NullString
	err := scanner.Scan(
		&role.ID, &role.GuildID, &role.Name, &role.Color, &role.Permissions,
		&role.Hoist, &role.Position, &iconURL, &role.CreatedAt,
	)
	if err != nil {
		return role, err
	}
	if iconURL.Valid {
		role.IconURL = &iconURL.String
	}
	return role, nil
}

func (r *sqliteRoleRepo) Create(ctx context.Context, role *models.Role) error {
	query := `
		INSERT INTO roles (id, guild_id, name, color, permissions, hoist, position, icon_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		role.ID, role.GuildID, role.Name, role.Color, int64(role.Permissions),
		role.Hoist, role.Position, role.IconURL,
	).Scan(&role.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

func (r *sqliteRoleRepo) GetByID(ctx context.Context, id string) (*models.Role, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = ?", id)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

func (r *sqliteRoleRepo) GetAll(ctx context.Context, guildID string) ([]models.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+roleColumns+" FROM roles WHERE guild_id = ? ORDER BY position DESC, created_at ASC",
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role row: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}
	return roles, nil
}

func (r *sqliteRoleRepo) GetForMember(ctx context.Context, guildID, userID string) ([]models.Role, error) {
	query := `
		SELECT ` + roleColumns + ` FROM roles
		WHERE id = ?
		   OR id IN (SELECT role_id FROM member_roles WHERE guild_id = ? AND user_id = ?)
		ORDER BY position DESC`

	rows, err := r.db.QueryContext(ctx, query, guildID, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role row: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}
	return roles, nil
}

func (r *sqliteRoleRepo) Update(ctx context.Context, role *models.Role) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE roles SET name = ?, color = ?, permissions = ?, hoist = ?, position = ? WHERE id = ?",
		role.Name, role.Color, int64(role.Permissions), role.Hoist, role.Position, role.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func (r *sqliteRoleRepo) UpdateIconURL(ctx context.Context, id string, iconURL *string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE roles SET icon_url = ? WHERE id = ?", iconURL, id)
	if err != nil {
		return fmt.Errorf("failed to update role icon: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

// Delete removes the role and scrubs its id out of every channel's
// override map. member_roles rows go via FK cascade.
func (r *sqliteRoleRepo) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if affected == 0 {
			return pkg.ErrNotFound
		}
		return scrubOverrideEntry(ctx, tx, "roles", id)
	})
}

func (r *sqliteRoleRepo) MaxPosition(ctx context.Context, guildID string) (int, error) {
	var max int
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), 0) FROM roles WHERE guild_id = ?", guildID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max role position: %w", err)
	}
	return max, nil
}

// scrubOverrideEntry removes one key ("roles" or "members" section) from
// every channel override document that mentions it. Overrides live as
// JSON text, so this is a read-modify-write per affected channel.
func scrubOverrideEntry(ctx context.Context, q database.TxQuerier, section, id string) error {
	rows, err := q.QueryContext(ctx,
		"SELECT id, overrides FROM channels WHERE overrides IS NOT NULL AND overrides LIKE ?",
		"%"+id+"%",
	)
	if err != nil {
		return fmt.Errorf("failed to find channels with overrides: %w", err)
	}

	type patch struct {
		channelID string
		overrides any
	}
	var patches []patch
	for rows.Next() {
		var channelID, raw string
		if err := rows.Scan(&channelID, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan override row: %w", err)
		}
		var overrides models.PermissionOverrides
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			rows.Close()
			return fmt.Errorf("failed to parse overrides for channel %s: %w", channelID, err)
		}
		switch section {
		case "roles":
			delete(overrides.Roles, id)
		case "members":
			delete(overrides.Members, id)
		}
		var value any
		if !overrides.IsEmpty() {
			updated, err := json.Marshal(overrides)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to marshal overrides: %w", err)
			}
			value = string(updated)
		}
		patches = append(patches, patch{channelID: channelID, overrides: value})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating override rows: %w", err)
	}
	rows.Close()

	for _, p := range patches {
		if _, err := q.ExecContext(ctx,
			"UPDATE channels SET overrides = ? WHERE id = ?", p.overrides, p.channelID,
		); err != nil {
			return fmt.Errorf("failed to scrub overrides for channel %s: %w", p.channelID, err)
		}
	}
	return nil
}
