package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// VerifyEmailMessage promotes a pending registration.
type VerifyEmailMessage struct {
	Email      string `json:"email"`
	Code       string `json:"code"`
	OnResponse func(user *User)
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

// Validate will run validation rules
func (e VerifyEmailMessage) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Email, validation.Required, is.Email),
			validation.Field(&e.Code, validation.Required, validation.Length(6, 6), is.Digit),
		)
	}, "Invalid verification request"); err != nil {
		return err
	}
	return nil
}

// VerifyEmailHandler moves a verified registration into the credential
// store in a single transaction.
type VerifyEmailHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

func NewVerifyEmailHandler(repo RepositoryManager, mailer Mailer) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:     repo,
		mailer:   mailer,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      utcNow,
	}
}

func (h *VerifyEmailHandler) WithLogger(l Logger) *VerifyEmailHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *VerifyEmailHandler) WithClock(now func() time.Time) *VerifyEmailHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	event.Email = NormalizeEmail(event.Email)
	event.Code = strings.TrimSpace(event.Code)

	if err := event.Validate(); err != nil {
		return ErrInvalidVerification
	}

	now := h.now()
	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pending, err := h.repo.PendingUsers().GetByEmailAndCodeTx(ctx, tx, event.Email, event.Code, now)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidVerification
			}
			return err
		}

		exists, err := h.repo.Users().ExistsByEmailOrPhoneTx(ctx, tx, pending.Email, pending.Phone)
		if err != nil {
			return err
		}
		if exists {
			return ErrUserAlreadyExists
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, pending.Promote(now)); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}

		deleted, err := h.repo.PendingUsers().DeleteTx(ctx, tx, pending.ID)
		if err != nil {
			return err
		}
		if !deleted {
			// verified concurrently by another request
			return ErrInvalidVerification
		}

		return nil
	})

	if err != nil {
		return internalError(err, "failed to verify email")
	}

	dispatchEmail(ctx, h.mailer, h.logger, Email{
		To:   user.Email,
		Kind: EmailVerified,
		Data: map[string]any{
			"name": user.Name,
		},
	})

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventEmailVerified,
		Actor:      userActor(user.ID.String()),
		UserID:     user.ID.String(),
		OccurredAt: now,
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
