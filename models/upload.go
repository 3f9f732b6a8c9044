package models

import "time"

// Upload is a stored file, bound to the channel it was uploaded for.
// Uploads start unattached; posting a message in that channel that
// references them binds them to it. Channel deletion removes the files
// of every message it cascades away.
type Upload struct {
	ID         string    `json:"id"`
	UploaderID string    `json:"uploader_id"`
	ChannelID  string    `json:"channel_id"`
	Filename   string    `json:"filename"`
	StoredName string    `json:"stored_name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToAttachment converts an upload row to the message attachment shape.
func (u *Upload) ToAttachment() Attachment {
	return Attachment{
		ID:       u.ID,
		URL:      u.URL,
		Filename: u.Filename,
		Size:     u.Size,
		MimeType: u.MimeType,
	}
}
