package models

import "time"

// Ban bars a user from this node. The row survives the purge that
// accompanies it, so a banned user's data is gone but the bar remains.
type Ban struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Reason    string    `json:"reason,omitempty"`
	BannedBy  string    `json:"banned_by"`
	CreatedAt time.Time `json:"created_at"`
}
