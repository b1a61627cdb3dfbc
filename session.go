package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-secure-auth/middleware/jwtware"
)

// SessionObject is the authenticated caller of a protected request.
type SessionObject struct {
	User      *User
	Claims    *JWTClaims
	Refreshed *TokenPair
}

var _ jwtware.AuthClaims = (*SessionObject)(nil)

func (s *SessionObject) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID.String()
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	if s == nil || s.User == nil {
		return uuid.Nil, ErrUnknownTokenSubject
	}
	return s.User.ID, nil
}

func (s *SessionObject) Role() string {
	if s == nil || s.User == nil {
		return ""
	}
	return string(s.User.Role)
}

// IsAtLeast compares against the role hierarchy. Unknown roles never pass.
func (s *SessionObject) IsAtLeast(minRole string) bool {
	min, ok := ParseRole(minRole)
	if !ok || s == nil || s.User == nil {
		return false
	}
	return s.User.Role.IsAtLeast(min)
}

// ExpiresAt is the access token expiry, zero when unknown.
func (s *SessionObject) ExpiresAt() time.Time {
	if s == nil || s.Claims == nil {
		return time.Time{}
	}
	return s.Claims.Expires()
}

func (s SessionObject) String() string {
	if s.User == nil {
		return "session(anonymous)"
	}
	return fmt.Sprintf("session(user=%s role=%s)", s.User.ID, s.User.Role)
}
