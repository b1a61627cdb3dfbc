package auth_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-secure-auth"
)

func TestTwoFactorSetupIsIdempotentWhilePending(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("ayesha@example.com", "")

	var first, second *auth.TwoFactorProvisioning
	require.NoError(t, h.svc.SetupTwoFactor.Execute(h.ctx, auth.SetupTwoFactorMessage{
		UserID:     user.ID,
		OnResponse: func(p *auth.TwoFactorProvisioning) { first = p },
	}))
	require.NoError(t, h.svc.SetupTwoFactor.Execute(h.ctx, auth.SetupTwoFactorMessage{
		UserID:     user.ID,
		OnResponse: func(p *auth.TwoFactorProvisioning) { second = p },
	}))

	assert.Equal(t, first.Secret, second.Secret)

	stored := h.user(user.ID)
	assert.Equal(t, auth.TwoFactorSetupPending, stored.TwoFactorState())
	assert.False(t, stored.TwoFactorEnabled)
}

func TestTwoFactorConfirm(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("ayesha@example.com", "")

	err := h.svc.ConfirmTwoFact.Execute(h.ctx, auth.ConfirmTwoFactorMessage{UserID: user.ID, Code: "123456"})
	assert.ErrorIs(t, err, auth.ErrTwoFactorNotConfigured)

	var prov *auth.TwoFactorProvisioning
	require.NoError(t, h.svc.SetupTwoFactor.Execute(h.ctx, auth.SetupTwoFactorMessage{
		UserID:     user.ID,
		OnResponse: func(p *auth.TwoFactorProvisioning) { prov = p },
	}))

	valid := totpCode(t, prov.Secret, h.clock.Now())
	wrong := "000000"
	if wrong == valid {
		wrong = "111111"
	}

	err = h.svc.ConfirmTwoFact.Execute(h.ctx, auth.ConfirmTwoFactorMessage{UserID: user.ID, Code: wrong})
	assert.ErrorIs(t, err, auth.ErrTwoFactorCodeInvalid)

	// a wrong code keeps the pending secret
	assert.Equal(t, auth.TwoFactorSetupPending, h.user(user.ID).TwoFactorState())

	require.NoError(t, h.svc.ConfirmTwoFact.Execute(h.ctx, auth.ConfirmTwoFactorMessage{UserID: user.ID, Code: valid}))
	assert.Equal(t, auth.TwoFactorActive, h.user(user.ID).TwoFactorState())
	assert.True(t, h.activity.has(auth.ActivityEventTwoFactorEnabled))

	err = h.svc.SetupTwoFactor.Execute(h.ctx, auth.SetupTwoFactorMessage{UserID: user.ID})
	assert.ErrorIs(t, err, auth.ErrTwoFactorAlreadyActive)

	err = h.svc.ConfirmTwoFact.Execute(h.ctx, auth.ConfirmTwoFactorMessage{UserID: user.ID, Code: valid})
	assert.ErrorIs(t, err, auth.ErrTwoFactorAlreadyActive)
}

func TestTwoFactorDisable(t *testing.T) {
	h := newHarness(t)
	user := h.createUser("ayesha@example.com", "")

	err := h.svc.DisableTwoFact.Execute(h.ctx, auth.DisableTwoFactorMessage{UserID: user.ID})
	assert.ErrorIs(t, err, auth.ErrTwoFactorNotEnabled)

	h.enableTwoFactor(user.ID)

	require.NoError(t, h.svc.DisableTwoFact.Execute(h.ctx, auth.DisableTwoFactorMessage{UserID: user.ID}))

	stored := h.user(user.ID)
	assert.Equal(t, auth.TwoFactorDisabled, stored.TwoFactorState())
	assert.Empty(t, stored.TwoFactorSecret)
	assert.True(t, h.activity.has(auth.ActivityEventTwoFactorDisabled))
}

func TestTwoFactorUnknownUser(t *testing.T) {
	h := newHarness(t)

	err := h.svc.SetupTwoFactor.Execute(h.ctx, auth.SetupTwoFactorMessage{UserID: uuid.New()})
	assert.Error(t, err)

	err = h.svc.DisableTwoFact.Execute(h.ctx, auth.DisableTwoFactorMessage{UserID: uuid.New()})
	assert.Error(t, err)
}
