package auth

import (
	"time"

	"github.com/google/uuid"
)

// AutomaticLockReason is recorded when the lockout policy blocks an account.
const AutomaticLockReason = "Too many failed login attempts"

// LockStatus is the lockout state of an account at a point in time.
type LockStatus int

const (
	// LockActive the account can authenticate
	LockActive LockStatus = iota
	// LockLocked a suspension is in force
	LockLocked
	// LockExpired a suspension is recorded but has lapsed and not been reset
	LockExpired
)

func (s LockStatus) String() string {
	switch s {
	case LockLocked:
		return "locked"
	case LockExpired:
		return "expired-lock"
	default:
		return "active"
	}
}

// LockoutPolicy holds the thresholds that drive automatic suspension.
// Storage applies the transitions atomically; the policy decides how to read
// the resulting state.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NewLockoutPolicy builds the policy from config.
func NewLockoutPolicy(cfg Config) LockoutPolicy {
	p := LockoutPolicy{
		Threshold: cfg.GetLockoutThreshold(),
		Duration:  cfg.GetLockoutDuration(),
	}
	if p.Threshold <= 0 {
		p.Threshold = 5
	}
	if p.Duration <= 0 {
		p.Duration = 24 * time.Hour
	}
	return p
}

// Status evaluates the account at now.
func (p LockoutPolicy) Status(u *User, now time.Time) LockStatus {
	s, ok := u.Suspension()
	if !ok {
		return LockActive
	}
	if s.ActiveAt(now) {
		return LockLocked
	}
	return LockExpired
}

// Remaining is the number of failures left before the lock triggers.
func (p LockoutPolicy) Remaining(attempts int) int {
	if left := p.Threshold - attempts; left > 0 {
		return left
	}
	return 0
}

// Tripped reports whether attempts reached the threshold.
func (p LockoutPolicy) Tripped(attempts int) bool {
	return attempts >= p.Threshold
}

// Suspension is the automatic suspension applied when the policy trips.
func (p LockoutPolicy) Suspension(now time.Time) Suspension {
	until := now.Add(p.Duration)
	return Suspension{
		Reason:      AutomaticLockReason,
		TriggeredBy: SuspensionAutomatic,
		ExpiresAt:   &until,
		SuspendedAt: &now,
	}
}

// AdminSuspension is the suspension applied by an administrator. A zero
// duration falls back to fallback.
func AdminSuspension(actor uuid.UUID, reason string, duration, fallback time.Duration, now time.Time) Suspension {
	if reason == "" {
		reason = DefaultAdminBlockReason
	}
	if duration <= 0 {
		duration = fallback
	}
	until := now.Add(duration)
	s := Suspension{
		Reason:      reason,
		TriggeredBy: SuspensionAdmin,
		ExpiresAt:   &until,
		SuspendedAt: &now,
	}
	if actor != uuid.Nil {
		s.SuspendedBy = &actor
	}
	return s
}

// DefaultAdminBlockReason is used when an administrator gives no reason.
const DefaultAdminBlockReason = "Blocked by admin"
