package auth_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-secure-auth"
)

// requestReset starts a reset for email and returns the raw token from the
// emailed link.
func (h *harness) requestReset(email string) string {
	h.t.Helper()

	require.NoError(h.t, h.svc.ForgotPassword.Execute(h.ctx, auth.InitializePasswordResetMessage{Email: email}))

	sent, ok := h.mail.last(auth.EmailForgotPassword)
	require.True(h.t, ok)

	link, err := url.Parse(sent.Data["resetUrl"].(string))
	require.NoError(h.t, err)
	token := link.Query().Get("token")
	require.Len(h.t, token, 64)
	return token
}

func (h *harness) resetPassword(token, password string) error {
	return h.svc.ResetPassword.Execute(h.ctx, auth.FinalizePasswordResetMessage{
		Token:           token,
		Password:        password,
		ConfirmPassword: password,
	})
}

func TestForgotPasswordUnknownEmailLooksLikeSuccess(t *testing.T) {
	h := newHarness(t)

	var resp *auth.InitializePasswordResetResponse
	err := h.svc.ForgotPassword.Execute(h.ctx, auth.InitializePasswordResetMessage{
		Email:      "nobody@example.com",
		OnResponse: func(r *auth.InitializePasswordResetResponse) { resp = r },
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 0, h.mail.count(auth.EmailForgotPassword))
}

func TestForgotPasswordStoresHashedToken(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("ayesha@example.com", "")

	token := h.requestReset("ayesha@example.com")

	stored := h.user(user.ID)
	assert.Equal(t, auth.HashResetToken(token), stored.ResetTokenHash)
	assert.NotEqual(t, token, stored.ResetTokenHash)
	require.NotNil(t, stored.ResetTokenExpiresAt)
	assert.True(t, stored.ResetTokenExpiresAt.Equal(baseTime.Add(time.Hour)))
}

func TestResetPasswordFlow(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("ayesha@example.com", "")
	token := h.requestReset("ayesha@example.com")

	require.NoError(t, h.resetPassword(token, "N3w!Password"))

	_, err := h.login("ayesha@example.com", strongPassword)
	assert.Equal(t, auth.TextCodeInvalidCredentials, textCode(t, err))

	h.clock.Advance(time.Minute)
	res, err := h.login("ayesha@example.com", "N3w!Password")
	require.NoError(t, err)
	assert.NotNil(t, res.Tokens)

	stored := h.user(user.ID)
	assert.Empty(t, stored.ResetTokenHash)
	assert.Len(t, stored.PasswordHistory, 2)
	assert.True(t, h.activity.has(auth.ActivityEventPasswordReset))
}

func TestResetPasswordTokenIsSingleUse(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")
	token := h.requestReset("ayesha@example.com")

	require.NoError(t, h.resetPassword(token, "N3w!Password"))

	err := h.resetPassword(token, "An0ther!Password")
	assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)

	revoked, err := h.svc.Ledger.IsRevoked(h.ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestResetPasswordMismatch(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")
	token := h.requestReset("ayesha@example.com")

	err := h.svc.ResetPassword.Execute(h.ctx, auth.FinalizePasswordResetMessage{
		Token:           token,
		Password:        "N3w!Password",
		ConfirmPassword: "N3w!Passw0rd",
	})
	assert.ErrorIs(t, err, auth.ErrPasswordMismatch)
}

func TestResetPasswordRejectsOverlongPassword(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")
	token := h.requestReset("ayesha@example.com")

	err := h.resetPassword(token, "Aa1!"+strings.Repeat("x", 80))
	assert.True(t, auth.IsValidationError(err))

	// the token survives a rejected payload
	require.NoError(t, h.resetPassword(token, "N3w!Password"))
}

func TestResetPasswordExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")
	token := h.requestReset("ayesha@example.com")

	h.clock.Advance(61 * time.Minute)

	err := h.resetPassword(token, "N3w!Password")
	assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
}

func TestResetPasswordRejectsRecentPasswords(t *testing.T) {
	h := newHarness(t)
	h.createUser("ayesha@example.com", "")

	err := h.resetPassword(h.requestReset("ayesha@example.com"), strongPassword)
	assert.ErrorIs(t, err, auth.ErrPasswordReused)

	passwords := []string{"Pass!word1", "Pass!word2", "Pass!word3", "Pass!word4", "Pass!word5"}
	for _, pw := range passwords {
		require.NoError(t, h.resetPassword(h.requestReset("ayesha@example.com"), pw), pw)
	}

	// history holds the last five, the first password dropped out
	require.NoError(t, h.resetPassword(h.requestReset("ayesha@example.com"), strongPassword))

	err = h.resetPassword(h.requestReset("ayesha@example.com"), "Pass!word5")
	assert.ErrorIs(t, err, auth.ErrPasswordReused)
}
