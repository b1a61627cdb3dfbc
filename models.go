package auth

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SuspensionCause identifies who suspended an account.
type SuspensionCause string

const (
	// SuspensionAutomatic is set by the lockout policy after repeated failures
	SuspensionAutomatic SuspensionCause = "automatic"
	// SuspensionAdmin is set by an administrator
	SuspensionAdmin SuspensionCause = "admin"
)

// Suspension describes why and until when an account is blocked.
type Suspension struct {
	Reason      string          `json:"reason"`
	TriggeredBy SuspensionCause `json:"triggered_by"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	SuspendedAt *time.Time      `json:"suspended_at,omitempty"`
	SuspendedBy *uuid.UUID      `json:"suspended_by,omitempty"`
}

// ActiveAt reports whether the suspension still applies at t. A suspension
// without expiry never lapses.
func (s Suspension) ActiveAt(t time.Time) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.After(t)
}

// PasswordHistoryEntry is a previously used password hash.
type PasswordHistoryEntry struct {
	Hash      string    `json:"hash"`
	ChangedAt time.Time `json:"changed_at"`
}

// PasswordHistory is ordered oldest first.
type PasswordHistory []PasswordHistoryEntry

// Value stores the history as JSON text.
func (h PasswordHistory) Value() (driver.Value, error) {
	if h == nil {
		h = PasswordHistory{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads the JSON text written by Value.
func (h *PasswordHistory) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = PasswordHistory{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported password history type %T", src)
	}
	if len(raw) == 0 {
		*h = PasswordHistory{}
		return nil
	}
	return json.Unmarshal(raw, h)
}

// Append adds hash and evicts the oldest entries beyond limit.
func (h PasswordHistory) Append(hash string, at time.Time, limit int) PasswordHistory {
	out := make(PasswordHistory, 0, len(h)+1)
	out = append(out, h...)
	out = append(out, PasswordHistoryEntry{Hash: hash, ChangedAt: at})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// User is a confirmed account
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID    uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name  string    `bun:"name,notnull" json:"name"`
	Email string    `bun:"email,notnull,unique" json:"email"`
	Phone string    `bun:"phone,nullzero,unique" json:"phone,omitempty"`
	Role  UserRole  `bun:"role,notnull" json:"role"`

	PasswordHash      string          `bun:"password_hash,notnull" json:"-"`
	PasswordHistory   PasswordHistory `bun:"password_history" json:"-"`
	PasswordUpdatedAt *time.Time      `bun:"password_updated_at,nullzero" json:"-"`
	IsVerified        bool            `bun:"is_verified" json:"is_verified"`

	LoginAttempts  int             `bun:"login_attempts" json:"-"`
	LockUntil      *time.Time      `bun:"lock_until,nullzero" json:"-"`
	IsBlocked      bool            `bun:"is_blocked" json:"is_blocked"`
	BlockReason    string          `bun:"block_reason,nullzero" json:"block_reason,omitempty"`
	BlockCause     SuspensionCause `bun:"block_cause,nullzero" json:"block_cause,omitempty"`
	BlockExpiresAt *time.Time      `bun:"block_expires_at,nullzero" json:"block_expires_at,omitempty"`
	BlockedAt      *time.Time      `bun:"blocked_at,nullzero" json:"blocked_at,omitempty"`
	BlockedBy      *uuid.UUID      `bun:"blocked_by,type:uuid,nullzero" json:"blocked_by,omitempty"`
	LastLogin      *time.Time      `bun:"last_login,nullzero" json:"last_login,omitempty"`

	RefreshToken        string     `bun:"refresh_token,nullzero" json:"-"`
	ResetTokenHash      string     `bun:"reset_token_hash,nullzero" json:"-"`
	ResetTokenExpiresAt *time.Time `bun:"reset_token_expires_at,nullzero" json:"-"`

	TwoFactorEnabled     bool       `bun:"is_2fa_activated" json:"is_2fa_activated"`
	TwoFactorSecret      string     `bun:"two_factor_secret,nullzero" json:"-"`
	SecondFactorDeadline *time.Time `bun:"second_factor_deadline,nullzero" json:"-"`

	CreatedAt *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Suspension returns the block currently recorded on the user, expired or
// not. A lock without block fields is reported as automatic.
func (u *User) Suspension() (Suspension, bool) {
	if u == nil {
		return Suspension{}, false
	}

	if u.IsBlocked {
		cause := u.BlockCause
		if cause == "" {
			cause = SuspensionAutomatic
		}
		return Suspension{
			Reason:      u.BlockReason,
			TriggeredBy: cause,
			ExpiresAt:   u.BlockExpiresAt,
			SuspendedAt: u.BlockedAt,
			SuspendedBy: u.BlockedBy,
		}, true
	}

	if u.LockUntil != nil {
		return Suspension{
			Reason:      AutomaticLockReason,
			TriggeredBy: SuspensionAutomatic,
			ExpiresAt:   u.LockUntil,
		}, true
	}

	return Suspension{}, false
}

// IsLocked is true while a suspension is in force at t.
func (u *User) IsLocked(t time.Time) bool {
	s, ok := u.Suspension()
	return ok && s.ActiveAt(t)
}

// TwoFactorState derives the handshake state from the stored fields.
func (u *User) TwoFactorState() TwoFactorState {
	switch {
	case u.TwoFactorEnabled && u.TwoFactorSecret != "":
		return TwoFactorActive
	case u.TwoFactorSecret != "":
		return TwoFactorSetupPending
	default:
		return TwoFactorDisabled
	}
}

// PendingUser is an unconfirmed registration awaiting email verification
type PendingUser struct {
	bun.BaseModel `bun:"table:pending_users,alias:pu"`

	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name             string     `bun:"name,notnull" json:"name"`
	Email            string     `bun:"email,notnull" json:"email"`
	Phone            string     `bun:"phone,nullzero" json:"phone,omitempty"`
	Role             UserRole   `bun:"role,notnull" json:"role"`
	PasswordHash     string     `bun:"password_hash,notnull" json:"-"`
	VerificationCode string     `bun:"verification_code,notnull" json:"-"`
	ExpiresAt        time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt        *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
}

// Promote builds the confirmed user for a verified registration.
func (p *PendingUser) Promote(now time.Time) *User {
	return &User{
		ID:                uuid.New(),
		Name:              p.Name,
		Email:             p.Email,
		Phone:             p.Phone,
		Role:              p.Role,
		PasswordHash:      p.PasswordHash,
		PasswordHistory:   PasswordHistory{}.Append(p.PasswordHash, now, 0),
		PasswordUpdatedAt: &now,
		IsVerified:        true,
		CreatedAt:         &now,
		UpdatedAt:         &now,
	}
}

// BlacklistedToken is a token revoked before its natural expiry. Token
// holds the TokenDigest, never the raw token.
type BlacklistedToken struct {
	bun.BaseModel `bun:"table:blacklisted_tokens,alias:blt"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token     string     `bun:"token,notnull,unique" json:"-"`
	ExpiresAt time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
}
