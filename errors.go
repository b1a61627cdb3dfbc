package auth

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation          = "VALIDATION_ERROR"
	TextCodeUserExists          = "USER_ALREADY_EXISTS"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeInvalidVerification = "INVALID_VERIFICATION_CODE"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeAccountBlocked      = "ACCOUNT_BLOCKED"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeTokenRevoked        = "TOKEN_REVOKED"
	TextCodeSessionExpired      = "SESSION_EXPIRED"
	TextCodeTokenMissing        = "TOKEN_MISSING"
	TextCodeRefreshReused       = "REFRESH_TOKEN_REUSED"
	TextCodeResetTokenInvalid   = "RESET_TOKEN_INVALID"
	TextCodePasswordMismatch    = "PASSWORD_MISMATCH"
	TextCodePasswordReused      = "PASSWORD_REUSED"
	TextCodeTwoFactorActive     = "TWO_FACTOR_ALREADY_ACTIVE"
	TextCodeTwoFactorDisabled   = "TWO_FACTOR_NOT_ENABLED"
	TextCodeTwoFactorNoSetup    = "TWO_FACTOR_NOT_CONFIGURED"
	TextCodeTwoFactorCode       = "TWO_FACTOR_CODE_INVALID"
	TextCodeTwoFactorExpired    = "TWO_FACTOR_WINDOW_EXPIRED"
	TextCodeNotBlocked          = "USER_NOT_BLOCKED"
	TextCodeAlreadyRevoked      = "TOKEN_ALREADY_REVOKED"
	TextCodeForbidden           = "FORBIDDEN"
	TextCodeInternal            = "INTERNAL_ERROR"
	TextCodeRateLimited         = "RATE_LIMITED"
)

var (
	// ErrUserAlreadyExists a confirmed user holds the email or phone
	ErrUserAlreadyExists = conflict("User already exists with this email or phone", TextCodeUserExists)

	// ErrInvalidVerification no pending registration matches email and code
	ErrInvalidVerification = goerrors.New("Invalid or expired verification code", goerrors.CategoryNotFound).
				WithCode(http.StatusBadRequest).
				WithTextCode(TextCodeInvalidVerification)

	// ErrUserNotFound is returned when login or a lookup finds no account
	ErrUserNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
			WithCode(http.StatusBadRequest).
			WithTextCode(TextCodeUserNotFound)

	// ErrAdminTargetNotFound is returned by moderation operations
	ErrAdminTargetNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
				WithCode(http.StatusNotFound).
				WithTextCode(TextCodeUserNotFound)

	ErrEmailNotVerified = unauthenticated("Please verify your email before logging in", TextCodeEmailNotVerified)

	ErrTokenExpired          = unauthenticated("Token has expired", TextCodeTokenExpired)
	ErrTokenSignatureInvalid = unauthenticated("Token signature is invalid", TextCodeTokenInvalid)
	ErrTokenMalformed        = unauthenticated("Token is malformed", TextCodeTokenMalformed)
	ErrTokenRevoked          = unauthenticated("Token has been revoked", TextCodeTokenRevoked)
	ErrTokenMissing          = unauthenticated("Access denied. No token provided", TextCodeTokenMissing)
	ErrSessionExpired        = unauthenticated("Session expired, please login again", TextCodeSessionExpired)
	ErrRefreshTokenReused    = unauthenticated("Invalid refresh token", TextCodeRefreshReused)
	ErrUnknownTokenSubject   = unauthenticated("User not found", TextCodeUserNotFound)

	ErrResetTokenInvalid = goerrors.New("Invalid or expired reset token", goerrors.CategoryNotFound).
				WithCode(http.StatusBadRequest).
				WithTextCode(TextCodeResetTokenInvalid)
	ErrPasswordMismatch = invalid("Passwords do not match", TextCodePasswordMismatch)
	ErrPasswordReused   = invalid("Cannot reuse any of your last 5 passwords", TextCodePasswordReused)

	ErrTwoFactorAlreadyActive = conflict("Two-factor authentication is already enabled", TextCodeTwoFactorActive)
	ErrTwoFactorNotEnabled    = invalid("Two-factor authentication is not enabled", TextCodeTwoFactorDisabled)
	ErrTwoFactorNotConfigured = invalid("Two-factor authentication setup has not been started", TextCodeTwoFactorNoSetup)
	ErrTwoFactorCodeInvalid   = invalid("Invalid verification code", TextCodeTwoFactorCode)
	ErrTwoFactorLoginCode     = unauthenticated("Invalid verification code", TextCodeTwoFactorCode)
	ErrTwoFactorNotRequested  = unauthenticated("Second factor verification was not requested or has expired", TextCodeTwoFactorExpired)

	ErrUserNotBlocked = invalid("User is not blocked", TextCodeNotBlocked)

	// ErrTokenAlreadyRevoked is the ledger duplicate insert conflict. Callers
	// treat it as success.
	ErrTokenAlreadyRevoked = conflict("Token already revoked", TextCodeAlreadyRevoked)

	ErrInsufficientRole = goerrors.New("Access denied. Insufficient permissions", goerrors.CategoryAuthz).
				WithCode(http.StatusForbidden).
				WithTextCode(TextCodeForbidden)
)

func invalid(msg, textCode string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(textCode)
}

func conflict(msg, textCode string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryConflict).
		WithCode(http.StatusBadRequest).
		WithTextCode(textCode)
}

func unauthenticated(msg, textCode string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(textCode)
}

// NewInvalidCredentialsError reports a failed password check together with
// the attempts left before the account is locked.
func NewInvalidCredentialsError(remaining int, lockout time.Duration) *goerrors.Error {
	return unauthenticated(
		fmt.Sprintf(
			"Invalid credentials. %d attempts remaining before account is locked for %s.",
			remaining, humanHours(lockout),
		),
		TextCodeInvalidCredentials,
	).WithMetadata(map[string]any{
		"remaining_attempts": remaining,
	})
}

// NewAccountLockedError reports an active suspension with remaining time.
func NewAccountLockedError(s Suspension, now time.Time) *goerrors.Error {
	hours := remainingHours(s.ExpiresAt, now)
	meta := map[string]any{
		"remaining_hours": hours,
		"triggered_by":    string(s.TriggeredBy),
	}
	if s.ExpiresAt != nil {
		meta["expires_at"] = s.ExpiresAt.UTC().Format(time.RFC3339)
	}

	if s.TriggeredBy == SuspensionAdmin {
		return unauthenticated(
			fmt.Sprintf("Account is blocked: %s. Try again in %d hours.", s.Reason, hours),
			TextCodeAccountBlocked,
		).WithMetadata(meta)
	}

	return unauthenticated(
		fmt.Sprintf("Account is locked due to too many failed attempts. Try again in %d hours.", hours),
		TextCodeAccountLocked,
	).WithMetadata(meta)
}

func remainingHours(until *time.Time, now time.Time) int {
	if until == nil {
		return 0
	}
	left := until.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours()))
}

func humanHours(d time.Duration) string {
	h := int(math.Ceil(d.Hours()))
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", h)
}

// HasTextCode reports whether err is a rich error with the given text code.
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCode
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired) || HasTextCode(err, TextCodeTokenExpired)
}

// IsAuthenticationError reports errors in the authentication category.
func IsAuthenticationError(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuth
}

// IsValidationError reports errors in the validation category.
func IsValidationError(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryValidation
}

// StatusCode maps an error onto the HTTP status returned to clients.
func StatusCode(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code != 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput, goerrors.CategoryConflict:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func internalError(err error, msg string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeInternal)
}
