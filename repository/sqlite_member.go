package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/remus-chat/remus-node/database"
	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
)

type sqliteMemberRepo struct {
	db *sql.DB
}

// NewSQLiteMemberRepo creates the SQLite implementation of MemberRepository.
func NewSQLiteMemberRepo(db *sql.DB) MemberRepository {
	return &sqliteMemberRepo{db: db}
}

const memberColumns = `
	m.guild_id, m.user_id, m.nickname, m.joined_at, m.timeout_until,
	m.voice_muted, m.voice_deafened, p.username, p.last_seen_at`

func scanMember(scanner interface{ Scan(...any) error }) (models.Member, error) {
	var member models.Member
	var timeoutUntil, lastSeen sql.NullTime
	err := scanner.Scan(
		&member.GuildID, &member.UserID, &member.Nickname, &member.JoinedAt, &timeoutUntil,
		&member.VoiceMuted, &member.VoiceDeafened, &member.Username, &lastSeen,
	)
	if err != nil {
		return member, err
	}
	if timeoutUntil.Valid {
		member.TimeoutUntil = &timeoutUntil.Time
	}
	if lastSeen.Valid {
		member.LastSeenAt = &lastSeen.Time
	}
	return member, nil
}

func (r *sqliteMemberRepo) Create(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (guild_id, user_id, nickname)
		VALUES (?, ?, ?)
		RETURNING joined_at`

	err := r.db.QueryRowContext(ctx, query,
		member.GuildID, member.UserID, member.Nickname,
	).Scan(&member.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return pkg.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

func (r *sqliteMemberRepo) GetByID(ctx context.Context, guildID, userID string) (*models.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m JOIN profiles p ON p.id = m.user_id
		WHERE m.guild_id = ? AND m.user_id = ?`

	row := r.db.QueryRowContext(ctx, query, guildID, userID)
	member, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	roleIDs, err := r.roleIDsFor(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	member.RoleIDs = roleIDs
	return &member, nil
}

func (r *sqliteMemberRepo) GetAll(ctx context.Context, guildID string) ([]models.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m JOIN profiles p ON p.id = m.user_id
		WHERE m.guild_id = ?
		ORDER BY m.joined_at ASC`

	rows, err := r.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	index := make(map[string]int)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		member.RoleIDs = []string{guildID}
		index[member.UserID] = len(members)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	// One pass over member_roles instead of a query per member.
	roleRows, err := r.db.QueryContext(ctx,
		"SELECT user_id, role_id FROM member_roles WHERE guild_id = ?", guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get member role assignments: %w", err)
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var userID, roleID string
		if err := roleRows.Scan(&userID, &roleID); err != nil {
			return nil, fmt.Errorf("failed to scan member role row: %w", err)
		}
		if i, ok := index[userID]; ok {
			members[i].RoleIDs = append(members[i].RoleIDs, roleID)
		}
	}
	if err := roleRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member role rows: %w", err)
	}

	return members, nil
}

func (r *sqliteMemberRepo) Exists(ctx context.Context, guildID, userID string) (bool, error) {
	var dummy int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM members WHERE guild_id = ? AND user_id = ? LIMIT 1", guildID, userID,
	).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check member existence: %w", err)
	}
	return true, nil
}

func (r *sqliteMemberRepo) Count(ctx context.Context, guildID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM members WHERE guild_id = ?", guildID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

func (r *sqliteMemberRepo) UpdateNickname(ctx context.Context, guildID, userID, nickname string) error {
	return r.execMember(ctx,
		"UPDATE members SET nickname = ? WHERE guild_id = ? AND user_id = ?",
		nickname, guildID, userID)
}

func (r *sqliteMemberRepo) SetRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM member_roles WHERE guild_id = ? AND user_id = ?", guildID, userID,
		); err != nil {
			return fmt.Errorf("failed to clear member roles: %w", err)
		}
		for _, roleID := range roleIDs {
			if roleID == guildID {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO member_roles (guild_id, user_id, role_id) VALUES (?, ?, ?)",
				guildID, userID, roleID,
			); err != nil {
				return fmt.Errorf("failed to assign role %s: %w", roleID, err)
			}
		}
		return nil
	})
}

func (r *sqliteMemberRepo) SetTimeout(ctx context.Context, guildID, userID string, until *time.Time) error {
	return r.execMember(ctx,
		"UPDATE members SET timeout_until = ? WHERE guild_id = ? AND user_id = ?",
		toNullTime(until), guildID, userID)
}

func (r *sqliteMemberRepo) SetVoiceState(ctx context.Context, guildID, userID string, muted, deafened *bool) error {
	if muted == nil && deafened == nil {
		return nil
	}
	query := "UPDATE members SET "
	var args []any
	if muted != nil {
		query += "voice_muted = ?"
		args = append(args, *muted)
	}
	if deafened != nil {
		if muted != nil {
			query += ", "
		}
		query += "voice_deafened = ?"
		args = append(args, *deafened)
	}
	query += " WHERE guild_id = ? AND user_id = ?"
	args = append(args, guildID, userID)
	return r.execMember(ctx, query, args...)
}

func (r *sqliteMemberRepo) Delete(ctx context.Context, guildID, userID string) error {
	return r.execMember(ctx,
		"DELETE FROM members WHERE guild_id = ? AND user_id = ?", guildID, userID)
}

func (r *sqliteMemberRepo) execMember(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
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

func (r *sqliteMemberRepo) roleIDsFor(ctx context.Context, guildID, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT role_id FROM member_roles WHERE guild_id = ? AND user_id = ?", guildID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get member role ids: %w", err)
	}
	defer rows.Close()

	roleIDs := []string{guildID}
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, fmt.Errorf("failed to scan role id: %w", err)
		}
		roleIDs = append(roleIDs, roleID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role ids: %w", err)
	}
	return roleIDs, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// isUniqueViolation matches SQLite constraint errors without importing
// driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
