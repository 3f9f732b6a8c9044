package models

import "time"

// Profile is the node-local record of a user known to this community.
// Identity (credentials, recovery) lives with the external authority; the
// node only mirrors the id/username/email it was handed at verification.
// Created on first authenticated touch, destroyed by purge.
type Profile struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      *string    `json:"email,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// AuthUser is the user object the external authority returns from its
// verify endpoint. The socket handshake and the HTTP auth middleware both
// attach this to the request context.
type AuthUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}
