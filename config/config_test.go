package config_test

import (
	"context"
	"testing"
	"time"

	gconfig "github.com/goliatone/go-config/config"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-secure-auth/config"
)

func lookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"ACCESS_TOKEN_SECRET":  "access-secret-0123456789",
		"REFRESH_TOKEN_SECRET": "refresh-secret-0123456789",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(context.Background(), lookup(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.GetAccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.GetRefreshTokenTTL())
	assert.Equal(t, "SecureAuth", cfg.GetTOTPIssuer())
	assert.Equal(t, uint(2), cfg.GetTOTPSkew())
	assert.Equal(t, 5, cfg.GetLockoutThreshold())
	assert.Equal(t, 24*time.Hour, cfg.GetLockoutDuration())
	assert.Equal(t, 5, cfg.GetPasswordHistorySize())
	assert.Equal(t, 24*time.Hour, cfg.GetVerificationTTL())
	assert.Equal(t, time.Hour, cfg.GetPasswordResetTTL())
	assert.Equal(t, "PK", cfg.GetPhoneRegion())
	assert.Equal(t, "/api/auth", cfg.GetAuthPrefix())
	assert.Equal(t, "/api/admin", cfg.GetAdminPrefix())
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.GetSecureCookies())

	max, window := cfg.GetLoginRateLimit()
	assert.Equal(t, 5, max)
	assert.Equal(t, 24*time.Hour, window)

	sweeps := cfg.GetSweepIntervals()
	assert.Equal(t, 24*time.Hour, sweeps.Blacklist)
	assert.Equal(t, 15*time.Minute, sweeps.Suspensions)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["NODE_ENV"] = "production"
	env["ACCESS_TOKEN_TTL"] = "30m"
	env["REFRESH_TOKEN_TTL"] = "86400"
	env["CLIENT_URL"] = "https://app.example.com/"
	env["LOGIN_RATE_MAX"] = "10"
	env["LOGIN_RATE_WINDOW"] = "1h"
	env["SWEEP_SUSPENSIONS_INTERVAL"] = "5m"

	cfg, err := config.LoadFrom(context.Background(), lookup(env))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.GetSecureCookies())
	assert.Equal(t, 30*time.Minute, cfg.GetAccessTokenTTL())
	assert.Equal(t, 24*time.Hour, cfg.GetRefreshTokenTTL())
	assert.Equal(t, "https://app.example.com", cfg.GetClientURL())
	assert.Equal(t, 5*time.Minute, cfg.GetSweepIntervals().Suspensions)

	max, window := cfg.GetLoginRateLimit()
	assert.Equal(t, 10, max)
	assert.Equal(t, time.Hour, window)
}

func TestAppEnvWinsOverNodeEnv(t *testing.T) {
	env := baseEnv()
	env["APP_ENV"] = "staging"
	env["NODE_ENV"] = "production"

	cfg, err := config.LoadFrom(context.Background(), lookup(env))
	require.NoError(t, err)
	assert.False(t, cfg.IsProduction())
}

func TestLoadRequiresSecrets(t *testing.T) {
	_, err := config.LoadFrom(context.Background(), lookup(map[string]string{}))
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	env := baseEnv()
	env["REFRESH_TOKEN_SECRET"] = env["ACCESS_TOKEN_SECRET"]

	_, err := config.LoadFrom(context.Background(), lookup(env))
	require.Error(t, err)
}

func TestLoadReportsUnparsableValues(t *testing.T) {
	env := baseEnv()
	env["BCRYPT_COST"] = "twelve"
	env["LOCKOUT_DURATION"] = "a day"

	_, err := config.LoadFrom(context.Background(), lookup(env))
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Contains(t, richErr.Metadata, "BCRYPT_COST")
	assert.Contains(t, richErr.Metadata, "LOCKOUT_DURATION")
}

func TestSMTPValidatedOnlyWhenConfigured(t *testing.T) {
	env := baseEnv()
	env["SMTP_HOST"] = "smtp.example.com"

	_, err := config.LoadFrom(context.Background(), lookup(env))
	require.Error(t, err, "from address is required once a host is set")

	env["SMTP_FROM"] = "no-reply@example.com"
	cfg, err := config.LoadFrom(context.Background(), lookup(env))
	require.NoError(t, err)
	assert.Equal(t, 587, cfg.SMTP.Port)
}

func TestLoadRunsContainerOptions(t *testing.T) {
	var seen *config.Config
	cfg, err := config.LoadFrom(context.Background(), lookup(baseEnv()),
		func(c *gconfig.Container[*config.Config]) *gconfig.Container[*config.Config] {
			seen = c.Raw()
			return c
		},
	)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "access-secret-0123456789", seen.AccessTokenSecret)
	assert.Equal(t, cfg.GetAccessTokenSecret(), seen.GetAccessTokenSecret())
}
