// Package config builds the explicit settings object the service is
// constructed with. Values start from defaults, then the process
// environment, then the go-config container (config/app.json) when present.
package config

import (
	"context"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	gconfig "github.com/goliatone/go-config/config"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-secure-auth"
)

// SMTP settings for the mail transport.
type SMTP struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	TLS      bool   `koanf:"tls"`
}

// RateLimit is a request budget over a window.
type RateLimit struct {
	Max    int           `koanf:"max"`
	Window time.Duration `koanf:"window"`
}

// Config implements auth.Config and auth.RouteConfig.
type Config struct {
	Environment string `koanf:"environment"`
	Port        string `koanf:"port"`
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`
	RedisPrefix string `koanf:"redis_prefix"`
	LogLevel    string `koanf:"log_level"`

	AccessTokenSecret  string        `koanf:"access_token_secret"`
	RefreshTokenSecret string        `koanf:"refresh_token_secret"`
	AccessTokenTTL     time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `koanf:"refresh_token_ttl"`
	Issuer             string        `koanf:"issuer"`

	TOTPIssuer         string        `koanf:"totp_issuer"`
	TOTPSkew           uint          `koanf:"totp_skew"`
	SecondFactorWindow time.Duration `koanf:"second_factor_window"`

	VerificationTTL     time.Duration `koanf:"verification_ttl"`
	PasswordResetTTL    time.Duration `koanf:"password_reset_ttl"`
	PasswordHistorySize int           `koanf:"password_history_size"`

	LockoutThreshold   int           `koanf:"lockout_threshold"`
	LockoutDuration    time.Duration `koanf:"lockout_duration"`
	AdminBlockDuration time.Duration `koanf:"admin_block_duration"`

	BcryptCost      int `koanf:"bcrypt_cost"`
	HashConcurrency int `koanf:"hash_concurrency"`

	BackendURL  string `koanf:"backend_url"`
	ClientURL   string `koanf:"client_url"`
	PhoneRegion string `koanf:"phone_region"`

	SecureCookies bool   `koanf:"secure_cookies"`
	AutoRefresh   bool   `koanf:"auto_refresh"`
	AuthPrefix    string `koanf:"auth_prefix"`
	AdminPrefix   string `koanf:"admin_prefix"`
	CORSOrigins   string `koanf:"cors_origins"`

	LoginLimit          RateLimit `koanf:"login_limit"`
	RegisterLimit       RateLimit `koanf:"register_limit"`
	ForgotPasswordLimit RateLimit `koanf:"forgot_password_limit"`

	Sweeps auth.SweepIntervals `koanf:"sweeps"`
	SMTP   SMTP                `koanf:"smtp"`
}

var (
	_ auth.Config      = (*Config)(nil)
	_ auth.RouteConfig = (*Config)(nil)
)

// Defaults returns a configuration with every optional value set.
func Defaults() *Config {
	return &Config{
		Environment: "development",
		Port:        "5000",
		DatabaseURL: "file::memory:?cache=shared",
		RedisPrefix: "secureauth:blacklist:",
		LogLevel:    "info",

		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "secureauth",

		TOTPIssuer:         "SecureAuth",
		TOTPSkew:           2,
		SecondFactorWindow: 5 * time.Minute,

		VerificationTTL:     24 * time.Hour,
		PasswordResetTTL:    time.Hour,
		PasswordHistorySize: 5,

		LockoutThreshold:   5,
		LockoutDuration:    24 * time.Hour,
		AdminBlockDuration: 24 * time.Hour,

		BcryptCost:      12,
		HashConcurrency: 4,

		BackendURL:  "http://localhost:5000",
		ClientURL:   "http://localhost:3000",
		PhoneRegion: "PK",

		AutoRefresh: true,
		AuthPrefix:  "/api/auth",
		AdminPrefix: "/api/admin",

		LoginLimit:          RateLimit{Max: 5, Window: 24 * time.Hour},
		RegisterLimit:       RateLimit{Max: 3, Window: time.Hour},
		ForgotPasswordLimit: RateLimit{Max: 3, Window: time.Hour},

		Sweeps: auth.DefaultSweepIntervals(),
		SMTP:   SMTP{Port: 587, TLS: true},
	}
}

// LoadOption customizes the go-config container before it loads.
type LoadOption func(*gconfig.Container[*Config]) *gconfig.Container[*Config]

// Load reads the process environment and the config container.
func Load(ctx context.Context, opts ...LoadOption) (*Config, error) {
	return LoadFrom(ctx, os.LookupEnv, opts...)
}

// LoadFrom reads settings through lookup, which has the signature of
// os.LookupEnv.
func LoadFrom(ctx context.Context, lookup func(string) (string, bool), opts ...LoadOption) (*Config, error) {
	c := Defaults()
	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}

	container := gconfig.New(c)
	for _, opt := range opts {
		container = opt(container)
	}
	if err := container.Load(ctx); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "Unable to load configuration").
			WithTextCode("INVALID_CONFIGURATION")
	}

	c = container.Raw()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// applyEnv overlays the documented environment variables on c.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := &reader{lookup: lookup}

	c.Environment = env.first(c.Environment, "APP_ENV", "NODE_ENV")
	c.Port = env.str("PORT", c.Port)
	c.DatabaseURL = env.str("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = env.str("REDIS_URL", c.RedisURL)
	c.RedisPrefix = env.str("REDIS_PREFIX", c.RedisPrefix)
	c.LogLevel = env.str("LOG_LEVEL", c.LogLevel)

	c.AccessTokenSecret = env.str("ACCESS_TOKEN_SECRET", "")
	c.RefreshTokenSecret = env.str("REFRESH_TOKEN_SECRET", "")
	c.AccessTokenTTL = env.duration("ACCESS_TOKEN_TTL", c.AccessTokenTTL)
	c.RefreshTokenTTL = env.duration("REFRESH_TOKEN_TTL", c.RefreshTokenTTL)
	c.Issuer = env.str("TOKEN_ISSUER", c.Issuer)

	c.TOTPIssuer = env.str("TOTP_ISSUER", c.TOTPIssuer)
	c.TOTPSkew = uint(env.integer("TOTP_SKEW", int(c.TOTPSkew)))
	c.SecondFactorWindow = env.duration("SECOND_FACTOR_WINDOW", c.SecondFactorWindow)

	c.VerificationTTL = env.duration("VERIFICATION_TTL", c.VerificationTTL)
	c.PasswordResetTTL = env.duration("PASSWORD_RESET_TTL", c.PasswordResetTTL)
	c.PasswordHistorySize = env.integer("PASSWORD_HISTORY_SIZE", c.PasswordHistorySize)

	c.LockoutThreshold = env.integer("LOCKOUT_THRESHOLD", c.LockoutThreshold)
	c.LockoutDuration = env.duration("LOCKOUT_DURATION", c.LockoutDuration)
	c.AdminBlockDuration = env.duration("ADMIN_BLOCK_DURATION", c.AdminBlockDuration)

	c.BcryptCost = env.integer("BCRYPT_COST", c.BcryptCost)
	c.HashConcurrency = env.integer("HASH_CONCURRENCY", c.HashConcurrency)

	c.BackendURL = strings.TrimRight(env.str("BACKEND_URL", c.BackendURL), "/")
	c.ClientURL = strings.TrimRight(env.str("CLIENT_URL", c.ClientURL), "/")
	c.PhoneRegion = env.str("PHONE_REGION", c.PhoneRegion)

	c.SecureCookies = env.boolean("SECURE_COOKIES", c.IsProduction())
	c.AutoRefresh = env.boolean("AUTO_REFRESH", c.AutoRefresh)
	c.AuthPrefix = env.str("AUTH_PREFIX", c.AuthPrefix)
	c.AdminPrefix = env.str("ADMIN_PREFIX", c.AdminPrefix)
	c.CORSOrigins = env.str("CORS_ORIGINS", c.ClientURL)

	c.LoginLimit = env.limit("LOGIN_RATE", c.LoginLimit)
	c.RegisterLimit = env.limit("REGISTER_RATE", c.RegisterLimit)
	c.ForgotPasswordLimit = env.limit("FORGOT_PASSWORD_RATE", c.ForgotPasswordLimit)

	c.Sweeps.Blacklist = env.duration("SWEEP_BLACKLIST_INTERVAL", c.Sweeps.Blacklist)
	c.Sweeps.PendingUsers = env.duration("SWEEP_PENDING_USERS_INTERVAL", c.Sweeps.PendingUsers)
	c.Sweeps.Suspensions = env.duration("SWEEP_SUSPENSIONS_INTERVAL", c.Sweeps.Suspensions)
	c.Sweeps.ResetTokens = env.duration("SWEEP_RESET_TOKENS_INTERVAL", c.Sweeps.ResetTokens)

	c.SMTP.Host = env.str("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = env.integer("SMTP_PORT", c.SMTP.Port)
	c.SMTP.Username = env.str("SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = env.str("SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = env.str("SMTP_FROM", c.SMTP.From)
	c.SMTP.TLS = env.boolean("SMTP_TLS", c.SMTP.TLS)

	return env.err()
}

// Validate checks required values and their shape.
func (c *Config) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(c,
			validation.Field(&c.AccessTokenSecret, validation.Required, validation.Length(16, 0)),
			validation.Field(&c.RefreshTokenSecret,
				validation.Required,
				validation.Length(16, 0),
				validation.NotIn(c.AccessTokenSecret).Error("must differ from the access token secret"),
			),
			validation.Field(&c.AccessTokenTTL, validation.Required, validation.Min(time.Second)),
			validation.Field(&c.RefreshTokenTTL, validation.Required, validation.Min(c.AccessTokenTTL)),
			validation.Field(&c.BackendURL, validation.Required, is.URL),
			validation.Field(&c.ClientURL, validation.Required, is.URL),
			validation.Field(&c.PhoneRegion, validation.Required, validation.Length(2, 2)),
			validation.Field(&c.LockoutThreshold, validation.Min(1)),
			validation.Field(&c.PasswordHistorySize, validation.Min(1)),
			validation.Field(&c.BcryptCost, validation.Min(4), validation.Max(31)),
			validation.Field(&c.TOTPSkew, validation.Max(uint(10))),
			validation.Field(&c.SMTP, validation.By(validSMTP)),
		)
	}, "Invalid configuration"); err != nil {
		return err
	}
	return nil
}

func validSMTP(value any) error {
	s, _ := value.(SMTP)
	if s.Host == "" {
		return nil
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&s.From, validation.Required, is.Email),
	)
}

func (c *Config) GetAccessTokenSecret() string         { return c.AccessTokenSecret }
func (c *Config) GetRefreshTokenSecret() string        { return c.RefreshTokenSecret }
func (c *Config) GetAccessTokenTTL() time.Duration     { return c.AccessTokenTTL }
func (c *Config) GetRefreshTokenTTL() time.Duration    { return c.RefreshTokenTTL }
func (c *Config) GetIssuer() string                    { return c.Issuer }
func (c *Config) GetTOTPIssuer() string                { return c.TOTPIssuer }
func (c *Config) GetTOTPSkew() uint                    { return c.TOTPSkew }
func (c *Config) GetSecondFactorWindow() time.Duration { return c.SecondFactorWindow }
func (c *Config) GetVerificationTTL() time.Duration    { return c.VerificationTTL }
func (c *Config) GetPasswordResetTTL() time.Duration   { return c.PasswordResetTTL }
func (c *Config) GetPasswordHistorySize() int          { return c.PasswordHistorySize }
func (c *Config) GetLockoutThreshold() int             { return c.LockoutThreshold }
func (c *Config) GetLockoutDuration() time.Duration    { return c.LockoutDuration }
func (c *Config) GetAdminBlockDuration() time.Duration { return c.AdminBlockDuration }
func (c *Config) GetBcryptCost() int                   { return c.BcryptCost }
func (c *Config) GetHashConcurrency() int              { return c.HashConcurrency }
func (c *Config) GetBackendURL() string                { return c.BackendURL }
func (c *Config) GetClientURL() string                 { return c.ClientURL }
func (c *Config) GetPhoneRegion() string               { return c.PhoneRegion }
func (c *Config) GetSecureCookies() bool               { return c.SecureCookies }
func (c *Config) GetAuthPrefix() string                { return c.AuthPrefix }
func (c *Config) GetAdminPrefix() string               { return c.AdminPrefix }
func (c *Config) GetAutoRefresh() bool                 { return c.AutoRefresh }

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) GetLoginRateLimit() (int, time.Duration) {
	return c.LoginLimit.Max, c.LoginLimit.Window
}

func (c *Config) GetRegisterRateLimit() (int, time.Duration) {
	return c.RegisterLimit.Max, c.RegisterLimit.Window
}

func (c *Config) GetForgotPasswordRateLimit() (int, time.Duration) {
	return c.ForgotPasswordLimit.Max, c.ForgotPasswordLimit.Window
}

// GetSweepIntervals returns the background sweep cadence.
func (c *Config) GetSweepIntervals() auth.SweepIntervals { return c.Sweeps }
