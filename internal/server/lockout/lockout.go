// Package lockout holds the brute-force lockout decision logic. It is pure
// computation over account fields plus a caller-supplied clock; persisting
// the resulting counter and lock timestamp is up to the caller.
package lockout

import (
	"math"
	"time"

	"github.com/avickovich/taskhive/internal/server/models"
)

// Defaults used when a Policy is built with zero values.
const (
	DefaultThreshold    = 5
	DefaultLockDuration = 30 * time.Minute
)

// Policy decides when repeated authentication failures lock an account.
type Policy struct {
	threshold int
	lockFor   time.Duration
}

// NewPolicy builds a Policy. Non-positive arguments fall back to defaults.
func NewPolicy(threshold int, lockFor time.Duration) *Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if lockFor <= 0 {
		lockFor = DefaultLockDuration
	}
	return &Policy{threshold: threshold, lockFor: lockFor}
}

// RecordFailure returns the account's next failure counter and lock
// timestamp after one more failed password check. The lock is set on the
// attempt that crosses the threshold; an already expired lock does not keep
// counting toward it.
func (p *Policy) RecordFailure(a *models.Account, now time.Time) (attempts int, lockUntil *time.Time) {
	attempts = a.FailedLoginAttempts + 1
	lockUntil = a.LockUntil
	if lockUntil != nil && !lockUntil.After(now) {
		// Previous lock elapsed; this failure starts a fresh window.
		attempts = 1
		lockUntil = nil
	}
	if attempts >= p.threshold {
		until := now.Add(p.lockFor)
		lockUntil = &until
	}
	return attempts, lockUntil
}

// IsLocked reports whether the account is currently locked and, if so, the
// remaining lock time in whole minutes (ceiling of the remaining seconds).
// Once lock-until has elapsed the account is implicitly unlocked; no write
// is required until the next failure or success.
func (p *Policy) IsLocked(a *models.Account, now time.Time) (bool, int) {
	if a.LockUntil == nil || !a.LockUntil.After(now) {
		return false, 0
	}
	remaining := a.LockUntil.Sub(now)
	return true, int(math.Ceil(remaining.Seconds() / 60))
}
