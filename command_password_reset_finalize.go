package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// ResetTokenRevocationTTL is how long a consumed reset token stays in the
// ledger.
const ResetTokenRevocationTTL = time.Hour

// FinalizePasswordResetMessage sets a new password using a reset token.
type FinalizePasswordResetMessage struct {
	Token           string `json:"token" doc:"Reset password token"`
	Password        string `json:"password" example:"S0me_secret!" doc:"Password"`
	ConfirmPassword string `json:"confirmPassword" example:"S0me_secret!" doc:"Password confirmation"`
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

// Validate will run validation rules
func (e FinalizePasswordResetMessage) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Token, validation.Required),
			validation.Field(&e.Password, PasswordRules()...),
		)
	}, "Invalid password reset payload"); err != nil {
		return err
	}
	return nil
}

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	ledger   Ledger
	config   Config
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, hasher PasswordHasher, ledger Ledger, cfg Config) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		hasher:   hasher,
		ledger:   ledger,
		config:   cfg,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      utcNow,
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *FinalizePasswordResetHandler) WithClock(now func() time.Time) *FinalizePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	event.Token = strings.TrimSpace(event.Token)

	if event.Password != event.ConfirmPassword {
		return ErrPasswordMismatch
	}

	if err := event.Validate(); err != nil {
		return err
	}

	revoked, err := h.ledger.IsRevoked(ctx, event.Token)
	if err != nil {
		return internalError(err, "failed to check reset token")
	}
	if revoked {
		return ErrResetTokenInvalid
	}

	now := h.now()
	tokenHash := HashResetToken(event.Token)
	limit := h.config.GetPasswordHistorySize()
	if limit <= 0 {
		limit = 5
	}

	var user *User

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByPasswordResetTokenTx(ctx, tx, tokenHash, now)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrResetTokenInvalid
			}
			return err
		}

		reused, err := MatchesHistory(ctx, h.hasher, event.Password, user.PasswordHistory)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check password history")
		}
		if reused {
			return ErrPasswordReused
		}

		passwordHash, err := h.hasher.Hash(ctx, event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		history := user.PasswordHistory.Append(passwordHash, now, limit)
		updated, err := h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, tokenHash, passwordHash, history, now)
		if err != nil {
			return err
		}
		if !updated {
			// consumed by a concurrent request
			return ErrResetTokenInvalid
		}

		return nil
	})

	if err != nil {
		return internalError(err, "failed to finalize password reset")
	}

	if err := revokeToken(ctx, h.ledger, event.Token, now.Add(ResetTokenRevocationTTL)); err != nil {
		h.logger.Warn("failed to revoke used reset token", "user_id", user.ID.String(), "error", err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordReset,
		Actor:      userActor(user.ID.String()),
		UserID:     user.ID.String(),
		OccurredAt: now,
	})

	return nil
}
