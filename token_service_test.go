package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-secure-auth"
)

func newTokenService(clock *testClock) *auth.TokenService {
	return auth.NewTokenService(testConfig()).
		WithLogger(discardLogger()).
		WithClock(clock.Now)
}

func TestTokenServiceGeneratePair(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)

	pair, err := ts.GeneratePair("user-1")
	require.NoError(t, err)

	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.WithinDuration(t, baseTime.Add(15*time.Minute), pair.AccessExpiresAt, 0)
	assert.WithinDuration(t, baseTime.Add(7*24*time.Hour), pair.RefreshExpiresAt, 0)

	access, err := ts.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.UserID())
	// exp is stored with second precision and decoded in local time
	assert.WithinDuration(t, pair.AccessExpiresAt, access.Expires(), 0)

	refresh, err := ts.ValidateRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refresh.UserID())
}

func TestTokenServiceDistinctTokensWithinSameSecond(t *testing.T) {
	ts := newTokenService(newTestClock())

	first, _, err := ts.Generate(auth.RefreshToken, "user-1")
	require.NoError(t, err)
	second, _, err := ts.Generate(auth.RefreshToken, "user-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenServiceRejectsOtherKind(t *testing.T) {
	ts := newTokenService(newTestClock())

	pair, err := ts.GeneratePair("user-1")
	require.NoError(t, err)

	_, err = ts.ValidateAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrTokenSignatureInvalid)

	_, err = ts.ValidateRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, auth.ErrTokenSignatureInvalid)
}

func TestTokenServiceExpiry(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)

	pair, err := ts.GeneratePair("user-1")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	_, err = ts.ValidateAccess(pair.AccessToken)
	assert.True(t, auth.IsTokenExpiredError(err))

	_, err = ts.ValidateRefresh(pair.RefreshToken)
	assert.NoError(t, err)

	clock.Advance(7 * 24 * time.Hour)
	_, err = ts.ValidateRefresh(pair.RefreshToken)
	assert.True(t, auth.IsTokenExpiredError(err))
}

func TestTokenServiceMalformed(t *testing.T) {
	ts := newTokenService(newTestClock())

	_, err := ts.ValidateAccess("definitely.not.a-jwt")
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)

	pair, err := ts.GeneratePair("user-1")
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = ts.ValidateAccess(tampered)
	assert.ErrorIs(t, err, auth.ErrTokenSignatureInvalid)
}

func TestTokenServiceForeignSecret(t *testing.T) {
	other := testConfig()
	other.AccessTokenSecret = "some-other-access-secret-000"
	foreign := auth.NewTokenService(other).WithClock(newTestClock().Now)

	token, _, err := foreign.Generate(auth.AccessToken, "user-1")
	require.NoError(t, err)

	_, err = newTokenService(newTestClock()).ValidateAccess(token)
	assert.True(t, auth.IsAuthenticationError(err))
}
