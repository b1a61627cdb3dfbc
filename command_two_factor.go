package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// SetupTwoFactorMessage starts the TOTP handshake for a user.
type SetupTwoFactorMessage struct {
	UserID     uuid.UUID
	OnResponse func(resp *TwoFactorProvisioning)
}

func (e SetupTwoFactorMessage) Type() string { return "user.2fa.setup" }

// ConfirmTwoFactorMessage activates 2FA with a code from the authenticator.
type ConfirmTwoFactorMessage struct {
	UserID uuid.UUID
	Code   string `json:"code"`
}

func (e ConfirmTwoFactorMessage) Type() string { return "user.2fa.confirm" }

// Validate will run validation rules
func (e ConfirmTwoFactorMessage) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Code, validation.Required, validation.Length(6, 6), is.Digit),
		)
	}, "Invalid verification code"); err != nil {
		return err
	}
	return nil
}

// DisableTwoFactorMessage clears the secret and returns to disabled.
type DisableTwoFactorMessage struct {
	UserID uuid.UUID
}

func (e DisableTwoFactorMessage) Type() string { return "user.2fa.disable" }

// twoFactorHandler carries what the three handshake handlers share.
type twoFactorHandler struct {
	repo     RepositoryManager
	totp     *TOTPProvider
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

func newTwoFactorHandler(repo RepositoryManager, totp *TOTPProvider) twoFactorHandler {
	return twoFactorHandler{
		repo:     repo,
		totp:     totp,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      utcNow,
	}
}

func (h twoFactorHandler) user(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := h.repo.Users().GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUnknownTokenSubject
		}
		return nil, internalError(err, "failed to retrieve user")
	}
	return user, nil
}

func cancelled(ctx context.Context, op string) error {
	return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during "+op)
}

// SetupTwoFactorHandler generates the shared secret once. Calling it again
// before confirmation returns the same secret.
type SetupTwoFactorHandler struct {
	twoFactorHandler
}

func NewSetupTwoFactorHandler(repo RepositoryManager, totp *TOTPProvider) *SetupTwoFactorHandler {
	return &SetupTwoFactorHandler{newTwoFactorHandler(repo, totp)}
}

func (h *SetupTwoFactorHandler) WithLogger(l Logger) *SetupTwoFactorHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *SetupTwoFactorHandler) Execute(ctx context.Context, event SetupTwoFactorMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "two-factor setup")
	default:
		return h.execute(ctx, event)
	}
}

func (h *SetupTwoFactorHandler) execute(ctx context.Context, event SetupTwoFactorMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.user(ctx, event.UserID)
	if err != nil {
		return err
	}

	switch user.TwoFactorState() {
	case TwoFactorActive:
		return ErrTwoFactorAlreadyActive
	case TwoFactorDisabled:
		secret, err := h.totp.GenerateSecret(user.Email)
		if err != nil {
			return internalError(err, "failed to generate two-factor secret")
		}

		saved, err := h.repo.Users().SaveTwoFactorSecret(ctx, user.ID, secret)
		if err != nil {
			return internalError(err, "failed to store two-factor secret")
		}

		if !saved {
			// a concurrent setup stored its secret first
			if user, err = h.user(ctx, event.UserID); err != nil {
				return err
			}
			if user.TwoFactorState() == TwoFactorActive {
				return ErrTwoFactorAlreadyActive
			}
		} else {
			user.TwoFactorSecret = secret
		}
	}

	if user.TwoFactorSecret == "" {
		return ErrTwoFactorNotConfigured
	}

	provisioning, err := h.totp.Provision(user.TwoFactorSecret, user.Email)
	if err != nil {
		return internalError(err, "failed to build two-factor provisioning")
	}

	if event.OnResponse != nil {
		event.OnResponse(provisioning)
	}

	return nil
}

// ConfirmTwoFactorHandler moves a pending setup to active. A wrong code
// keeps the secret for another attempt.
type ConfirmTwoFactorHandler struct {
	twoFactorHandler
}

func NewConfirmTwoFactorHandler(repo RepositoryManager, totp *TOTPProvider) *ConfirmTwoFactorHandler {
	return &ConfirmTwoFactorHandler{newTwoFactorHandler(repo, totp)}
}

func (h *ConfirmTwoFactorHandler) WithLogger(l Logger) *ConfirmTwoFactorHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *ConfirmTwoFactorHandler) WithActivitySink(sink ActivitySink) *ConfirmTwoFactorHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ConfirmTwoFactorHandler) Execute(ctx context.Context, event ConfirmTwoFactorMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "two-factor confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmTwoFactorHandler) execute(ctx context.Context, event ConfirmTwoFactorMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	event.Code = strings.TrimSpace(event.Code)
	if err := event.Validate(); err != nil {
		return ErrTwoFactorCodeInvalid
	}

	user, err := h.user(ctx, event.UserID)
	if err != nil {
		return err
	}

	switch user.TwoFactorState() {
	case TwoFactorActive:
		return ErrTwoFactorAlreadyActive
	case TwoFactorDisabled:
		return ErrTwoFactorNotConfigured
	}

	if !h.totp.Validate(event.Code, user.TwoFactorSecret) {
		return ErrTwoFactorCodeInvalid
	}

	activated, err := h.repo.Users().ActivateTwoFactor(ctx, user.ID, user.TwoFactorSecret)
	if err != nil {
		return internalError(err, "failed to activate two-factor authentication")
	}
	if !activated {
		return ErrTwoFactorAlreadyActive
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventTwoFactorEnabled,
		Actor:      userActor(user.ID.String()),
		UserID:     user.ID.String(),
		OccurredAt: h.now(),
	})

	return nil
}

// DisableTwoFactorHandler turns 2FA off, also abandoning a pending setup.
type DisableTwoFactorHandler struct {
	twoFactorHandler
}

func NewDisableTwoFactorHandler(repo RepositoryManager) *DisableTwoFactorHandler {
	return &DisableTwoFactorHandler{newTwoFactorHandler(repo, nil)}
}

func (h *DisableTwoFactorHandler) WithLogger(l Logger) *DisableTwoFactorHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *DisableTwoFactorHandler) WithActivitySink(sink ActivitySink) *DisableTwoFactorHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *DisableTwoFactorHandler) Execute(ctx context.Context, event DisableTwoFactorMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "two-factor disable")
	default:
		return h.execute(ctx, event)
	}
}

func (h *DisableTwoFactorHandler) execute(ctx context.Context, event DisableTwoFactorMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	disabled, err := h.repo.Users().DisableTwoFactor(ctx, event.UserID)
	if err != nil {
		return internalError(err, "failed to disable two-factor authentication")
	}
	if !disabled {
		if _, err := h.user(ctx, event.UserID); err != nil {
			return err
		}
		return ErrTwoFactorNotEnabled
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventTwoFactorDisabled,
		Actor:      userActor(event.UserID.String()),
		UserID:     event.UserID.String(),
		OccurredAt: h.now(),
	})

	return nil
}
