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

type sqliteMessageRepo struct {
	db *sql.DB
}

// NewSQLiteMessageRepo creates the SQLite implementation of MessageRepository.
func NewSQLiteMessageRepo(db *sql.DB) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

const messageColumns = `
	m.id, m.channel_id, m.author_id, m.content, m.attachments, m.reply_to_id,
	m.created_at, COALESCE(p.username, '')`

func scanMessage(scanner interface{ Scan(...any) error }) (models.Message, error) {
	var message models.Message
	var attachments, replyToID sql.NullString
	err := scanner.Scan(
		&message.ID, &message.ChannelID, &message.AuthorID, &message.Content,
		&attachments, &replyToID, &message.CreatedAt, &message.AuthorUsername,
	)
	if err != nil {
		return message, err
	}
	if replyToID.Valid {
		message.ReplyToID = &replyToID.String
	}
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &message.Attachments); err != nil {
			return message, fmt.Errorf("failed to parse message attachments: %w", err)
		}
	}
	return message, nil
}

func (r *sqliteMessageRepo) Create(ctx context.Context, message *models.Message) error {
	var attachments any
	if len(message.Attachments) > 0 {
		raw, err := json.Marshal(message.Attachments)
		if err != nil {
			return fmt.Errorf("failed to marshal attachments: %w", err)
		}
		attachments = string(raw)
	}

	query := `
		INSERT INTO messages (id, channel_id, author_id, content, attachments, reply_to_id)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		message.ID, message.ChannelID, message.AuthorID, message.Content,
		attachments, message.ReplyToID,
	).Scan(&message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m LEFT JOIN profiles p ON p.id = m.author_id
		WHERE m.id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	message, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

func (r *sqliteMessageRepo) List(ctx context.Context, channelID, beforeID string, limit int) (*models.MessagePage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m LEFT JOIN profiles p ON p.id = m.author_id
		WHERE m.channel_id = ?`
	args := []any{channelID}

	if beforeID != "" {
		// Anchor on the cursor message's timestamp, tiebreak by id.
		query += ` AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}

	// Fetch one extra row to learn whether more history exists.
	query += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	page := &models.MessagePage{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		page.HasMore = true
	}
	return page, nil
}

func (r *sqliteMessageRepo) Delete(ctx context.Context, id string) ([]models.Upload, error) {
	var uploads []models.Upload
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var attachments sql.NullString
		err := tx.QueryRowContext(ctx, "SELECT attachments FROM messages WHERE id = ?", id).Scan(&attachments)
		if errors.Is(err, sql.ErrNoRows) {
			return pkg.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get message: %w", err)
		}

		if attachments.Valid && attachments.String != "" {
			var parsed []models.Attachment
			if err := json.Unmarshal([]byte(attachments.String), &parsed); err == nil {
				ids := make(map[string]bool)
				urls := make(map[string]bool)
				for _, a := range parsed {
					if a.ID != "" {
						ids[a.ID] = true
					}
					if a.URL != "" {
						urls[a.URL] = true
					}
				}
				uploads, err = matchUploads(ctx, tx, ids, urls)
				if err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}
		for _, u := range uploads {
			if _, err := tx.ExecContext(ctx, "DELETE FROM uploads WHERE id = ?", u.ID); err != nil {
				return fmt.Errorf("failed to delete upload %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return uploads, nil
}
