package auth

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// LoginResult is the outcome of a credential check. Tokens is nil when a
// second factor is required.
type LoginResult struct {
	User                 *User
	Tokens               *TokenPair
	SecondFactorRequired bool
}

// Auther runs the login state machine: suspension checks, failed attempt
// tracking, the second factor gate and token issuance.
type Auther struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	tokens   *TokenService
	ledger   Ledger
	totp     *TOTPProvider
	policy   LockoutPolicy
	config   Config
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, hasher PasswordHasher, tokens *TokenService, ledger Ledger, totp *TOTPProvider, cfg Config) *Auther {
	return &Auther{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		ledger:   ledger,
		totp:     totp,
		policy:   NewLockoutPolicy(cfg),
		config:   cfg,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      utcNow,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() *TokenService {
	return s.tokens
}

// Login checks a password for the account named by identifier.
func (s *Auther) Login(ctx context.Context, identifier LoginIdentifier, password string) (*LoginResult, error) {
	now := s.now()

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier.Kind.String(),
			"error":      err.Error(),
		})
		return nil, err
	}

	if err := s.ensureNotSuspended(ctx, user, now); err != nil {
		s.logger.Warn("login rejected for suspended account", "user_id", user.ID.String())
		return nil, err
	}

	if !user.IsVerified {
		return nil, ErrEmailNotVerified
	}

	if err := s.hasher.Compare(ctx, password, user.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, internalError(err, "failed to verify password")
		}

		failed, lockErr := s.recordFailure(ctx, user, now)
		if lockErr != nil {
			return nil, lockErr
		}
		return nil, NewInvalidCredentialsError(s.policy.Remaining(failed.Attempts), s.policy.Duration)
	}

	if err := s.repo.Users().ResetLoginState(ctx, user.ID, now); err != nil {
		return nil, internalError(err, "failed to reset login state")
	}

	if user.TwoFactorState() == TwoFactorActive {
		if err := s.repo.Users().OpenSecondFactorWindow(ctx, user.ID, now.Add(s.secondFactorWindow())); err != nil {
			return nil, internalError(err, "failed to start second factor verification")
		}

		s.emitAuthEvent(ctx, ActivityEventSecondFactorPending, userActor(user.ID.String()), user.ID.String(), nil)
		return &LoginResult{User: user, SecondFactorRequired: true}, nil
	}

	return s.issue(ctx, user, ActivityEventLoginSuccess)
}

// VerifySecondFactor completes a login that stopped at the second factor
// gate.
func (s *Auther) VerifySecondFactor(ctx context.Context, email, code string) (*LoginResult, error) {
	now := s.now()

	user, err := s.lookup(ctx, ByEmail(email))
	if err != nil {
		return nil, err
	}

	if err := s.ensureNotSuspended(ctx, user, now); err != nil {
		return nil, err
	}

	if user.TwoFactorState() != TwoFactorActive {
		return nil, ErrTwoFactorNotEnabled
	}

	if user.SecondFactorDeadline == nil || !user.SecondFactorDeadline.After(now) {
		return nil, ErrTwoFactorNotRequested
	}

	if !s.totp.Validate(code, user.TwoFactorSecret) {
		if _, lockErr := s.recordFailure(ctx, user, now); lockErr != nil {
			return nil, lockErr
		}
		return nil, ErrTwoFactorLoginCode
	}

	consumed, err := s.repo.Users().ConsumeSecondFactorWindow(ctx, user.ID, now)
	if err != nil {
		return nil, internalError(err, "failed to complete second factor verification")
	}
	if !consumed {
		return nil, ErrTwoFactorNotRequested
	}

	return s.issue(ctx, user, ActivityEventLoginSuccess)
}

// Refresh rotates the single refresh token slot. A token that is not the
// one currently stored is rejected as reused.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, ErrTokenMissing
	}

	now := s.now()

	if err := s.ensureNotRevoked(ctx, refreshToken); err != nil {
		return nil, err
	}

	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.subject(ctx, claims)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNotSuspended(ctx, user, now); err != nil {
		return nil, err
	}

	if user.RefreshToken != refreshToken {
		s.logger.Warn("superseded refresh token presented", "user_id", user.ID.String())
		return nil, ErrRefreshTokenReused
	}

	pair, err := s.tokens.GeneratePair(user.ID.String())
	if err != nil {
		return nil, internalError(err, "failed to generate tokens")
	}

	rotated, err := s.repo.Users().RotateRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken, now)
	if err != nil {
		return nil, internalError(err, "failed to rotate refresh token")
	}
	if !rotated {
		return nil, ErrRefreshTokenReused
	}

	if err := revokeToken(ctx, s.ledger, refreshToken, claims.Expires()); err != nil {
		s.logger.Warn("failed to revoke rotated refresh token", "user_id", user.ID.String(), "error", err)
	}

	user.RefreshToken = pair.RefreshToken
	s.emitAuthEvent(ctx, ActivityEventTokenRefreshed, userActor(user.ID.String()), user.ID.String(), nil)

	return &LoginResult{User: user, Tokens: pair}, nil
}

// Logout revokes whichever of the tokens still verify. Tokens that are
// already invalid need no revocation, so logout never fails on them.
func (s *Auther) Logout(ctx context.Context, accessToken, refreshToken string) error {
	now := s.now()
	var userID string

	if accessToken != "" {
		if claims, err := s.tokens.ValidateAccess(accessToken); err == nil {
			userID = claims.UserID()
			if err := revokeToken(ctx, s.ledger, accessToken, claims.Expires()); err != nil {
				return internalError(err, "failed to revoke access token")
			}
		}
	}

	if refreshToken != "" {
		if claims, err := s.tokens.ValidateRefresh(refreshToken); err == nil {
			userID = claims.UserID()
			if err := revokeToken(ctx, s.ledger, refreshToken, claims.Expires()); err != nil {
				return internalError(err, "failed to revoke refresh token")
			}
			if id, err := uuid.Parse(claims.UserID()); err == nil {
				if err := s.repo.Users().ClearRefreshToken(ctx, id, refreshToken, now); err != nil {
					return internalError(err, "failed to clear refresh token")
				}
			}
		}
	}

	if userID != "" {
		s.emitAuthEvent(ctx, ActivityEventLogout, userActor(userID), userID, nil)
	}

	return nil
}

// Authenticate resolves the user behind an access token.
func (s *Auther) Authenticate(ctx context.Context, accessToken string) (*User, *JWTClaims, error) {
	if accessToken == "" {
		return nil, nil, ErrTokenMissing
	}

	if err := s.ensureNotRevoked(ctx, accessToken); err != nil {
		return nil, nil, err
	}

	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.subject(ctx, claims)
	if err != nil {
		return nil, nil, err
	}

	if err := s.ensureNotSuspended(ctx, user, s.now()); err != nil {
		return nil, nil, err
	}

	return user, claims, nil
}

func (s *Auther) lookup(ctx context.Context, identifier LoginIdentifier) (*User, error) {
	if identifier.Kind == LoginByPhone {
		phone, err := NormalizePhone(identifier.Value, s.config.GetPhoneRegion())
		if err != nil {
			return nil, ErrUserNotFound
		}
		identifier.Value = phone
	}

	user, err := s.repo.Users().GetByLogin(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, internalError(err, "failed to retrieve user")
	}
	return user, nil
}

func (s *Auther) subject(ctx context.Context, claims *JWTClaims) (*User, error) {
	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrTokenMalformed
	}

	user, err := s.repo.Users().GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUnknownTokenSubject
		}
		return nil, internalError(err, "failed to retrieve user")
	}
	return user, nil
}

func (s *Auther) ensureNotRevoked(ctx context.Context, token string) error {
	revoked, err := s.ledger.IsRevoked(ctx, token)
	if err != nil {
		return internalError(err, "failed to check token revocation")
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

// ensureNotSuspended rejects an active suspension. A lapsed one is cleared
// before the request continues.
func (s *Auther) ensureNotSuspended(ctx context.Context, user *User, now time.Time) error {
	switch s.policy.Status(user, now) {
	case LockLocked:
		suspension, _ := user.Suspension()
		return NewAccountLockedError(suspension, now)
	case LockExpired:
		healed, err := s.repo.Users().ClearExpiredSuspension(ctx, user.ID, now)
		if err != nil {
			return internalError(err, "failed to clear expired suspension")
		}
		if healed {
			s.logger.Debug("cleared expired suspension", "user_id", user.ID.String())
		}
		user.LoginAttempts = 0
		user.LockUntil = nil
		user.IsBlocked = false
		user.BlockReason = ""
		user.BlockCause = ""
		user.BlockExpiresAt = nil
		user.BlockedAt = nil
		user.BlockedBy = nil
	}
	return nil
}

// recordFailure counts a failed check and returns the locked error once the
// account is suspended.
func (s *Auther) recordFailure(ctx context.Context, user *User, now time.Time) (*FailedLogin, error) {
	failed, err := s.repo.Users().TrackFailedLogin(ctx, user.ID, s.policy, now)
	if err != nil {
		return nil, internalError(err, "failed to record failed login")
	}

	s.emitAuthEvent(ctx, ActivityEventLoginFailure, userActor(user.ID.String()), user.ID.String(), map[string]any{
		"attempts": failed.Attempts,
	})

	if !failed.Locked {
		return failed, nil
	}

	suspension := s.policy.Suspension(now)
	if current, err := s.repo.Users().GetByID(ctx, user.ID); err == nil {
		if stored, ok := current.Suspension(); ok && stored.ActiveAt(now) {
			suspension = stored
		}
	}

	if failed.Attempts > 0 {
		s.emitAuthEvent(ctx, ActivityEventAccountLocked, ActorRef{Type: ActorTypeSystem}, user.ID.String(), map[string]any{
			"attempts":     failed.Attempts,
			"triggered_by": string(suspension.TriggeredBy),
		})
	}

	return failed, NewAccountLockedError(suspension, now)
}

func (s *Auther) issue(ctx context.Context, user *User, event ActivityEventType) (*LoginResult, error) {
	pair, err := s.tokens.GeneratePair(user.ID.String())
	if err != nil {
		return nil, internalError(err, "failed to generate tokens")
	}

	if err := s.repo.Users().StoreRefreshToken(ctx, user.ID, pair.RefreshToken, s.now()); err != nil {
		return nil, internalError(err, "failed to store refresh token")
	}
	user.RefreshToken = pair.RefreshToken

	s.emitAuthEvent(ctx, event, userActor(user.ID.String()), user.ID.String(), nil)

	return &LoginResult{User: user, Tokens: pair}, nil
}

func (s *Auther) secondFactorWindow() time.Duration {
	if d := s.config.GetSecondFactorWindow(); d > 0 {
		return d
	}
	return 5 * time.Minute
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	if metadata != nil {
		s.logger.Debug("auth event", "event", string(eventType), "metadata", print.MaybePrettyJSON(metadata))
	}
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	})
}

// IsSecondFactorRequired reports a login that stopped at the 2FA gate.
func IsSecondFactorRequired(res *LoginResult) bool {
	return res != nil && res.SecondFactorRequired
}
