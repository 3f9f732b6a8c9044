package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength bounds message content in runes.
const MaxMessageLength = 2000

// Attachment is one upload referenced by a message.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Message is one chat message in a text channel. ReplyToID points at an
// earlier message in the same channel and is nulled when that message is
// deleted, never cascaded.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	AuthorID    string       `json:"author_id"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyToID   *string      `json:"reply_to_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`

	// Author snapshot joined in for listings.
	AuthorUsername string `json:"author_username,omitempty"`
}

// CreateMessageRequest posts a message. AttachmentIDs reference uploads
// owned by the author; unknown or foreign ids are dropped, not errored.
type CreateMessageRequest struct {
	Content       string   `json:"content"`
	AttachmentIDs []string `json:"attachment_ids"`
	ReplyToID     *string  `json:"reply_to_id"`
}

// Validate requires content or at least one attachment.
func (r *CreateMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" && len(r.AttachmentIDs) == 0 {
		return errBad("message must have content or attachments")
	}
	if utf8.RuneCountInString(r.Content) > MaxMessageLength {
		return errBad("message content must be at most %d characters", MaxMessageLength)
	}
	if len(r.AttachmentIDs) > 10 {
		return errBad("a message can carry at most 10 attachments")
	}
	return nil
}

// MessagePage is one page of channel history, newest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}
