package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the logging contract used by every component. A glog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the settings every component is constructed with.
type Config interface {
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetIssuer() string

	GetTOTPIssuer() string
	GetTOTPSkew() uint
	GetSecondFactorWindow() time.Duration

	GetVerificationTTL() time.Duration
	GetPasswordResetTTL() time.Duration
	GetPasswordHistorySize() int

	GetLockoutThreshold() int
	GetLockoutDuration() time.Duration
	GetAdminBlockDuration() time.Duration

	GetBcryptCost() int
	GetHashConcurrency() int

	GetBackendURL() string
	GetClientURL() string
	GetPhoneRegion() string

	GetSecureCookies() bool
	IsProduction() bool
}

// RouteConfig holds the HTTP surface settings.
type RouteConfig interface {
	GetAuthPrefix() string
	GetAdminPrefix() string
	GetLoginRateLimit() (int, time.Duration)
	GetRegisterRateLimit() (int, time.Duration)
	GetForgotPasswordRateLimit() (int, time.Duration)
	GetAutoRefresh() bool
}

// PasswordHasher hashes and compares passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Compare(ctx context.Context, password, hash string) error
}

// EmailKind names the template the mail collaborator renders.
type EmailKind string

const (
	EmailRegister       EmailKind = "register"
	EmailForgotPassword EmailKind = "forgotPassword"
	EmailVerified       EmailKind = "emailVerified"
)

// Email is a message handed to the Mailer. The core only supplies data.
type Email struct {
	To   string
	Kind EmailKind
	Data map[string]any
}

// Mailer sends transactional emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, email Email) error

func (f MailerFunc) Send(ctx context.Context, email Email) error {
	return f(ctx, email)
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + msg + formatArgs(args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + msg + formatArgs(args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + msg + formatArgs(args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + msg + formatArgs(args))
}

// formatArgs renders slog style key/value pairs.
func formatArgs(args []any) string {
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

func utcNow() time.Time {
	return time.Now().UTC()
}
