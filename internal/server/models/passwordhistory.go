package models

import "time"

// PasswordHistoryEntry is a prior password hash kept for reuse checks.
// At most five entries are retained per account; the oldest is pruned on write.
type PasswordHistoryEntry struct {
	ID           string
	AccountID    string
	PasswordHash string
	CreatedAt    time.Time
}
