package models

import "time"

// Session is one active refresh-token grant, one row per device/session.
type Session struct {
	ID           string
	AccountID    string
	RefreshToken string
	ClientMeta   string
	Expires      time.Time
	CreatedAt    time.Time
}
