package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// InitializePasswordResetMessage is the forgot password request.
type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset.initialize" }

// Validate will run validation rules
func (p InitializePasswordResetMessage) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&p,
			validation.Field(&p.Email, validation.Required, is.Email),
		)
	}, "Invalid password reset request"); err != nil {
		return err
	}
	return nil
}

// InitializePasswordResetResponse is identical for known and unknown
// addresses.
type InitializePasswordResetResponse struct {
	Email   string
	Success bool
}

// InitializePasswordResetHandler issues a reset token and emails the link.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	config   Config
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

func NewInitializePasswordResetHandler(repo RepositoryManager, mailer Mailer, cfg Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		mailer:   mailer,
		config:   cfg,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      utcNow,
	}
}

func (h *InitializePasswordResetHandler) WithLogger(l Logger) *InitializePasswordResetHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithClock(now func() time.Time) *InitializePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	event.Email = NormalizeEmail(event.Email)
	if err := event.Validate(); err != nil {
		return err
	}

	resp := &InitializePasswordResetResponse{Email: event.Email, Success: true}
	respond := func() error {
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// do not disclose which addresses have accounts
			h.logger.Debug("password reset requested for unknown email", "email", event.Email)
			return respond()
		}
		return internalError(err, "failed to retrieve user for password reset")
	}

	token, err := GenerateResetToken()
	if err != nil {
		return internalError(err, "failed to generate reset token")
	}

	now := h.now()
	expiresAt := now.Add(h.config.GetPasswordResetTTL())

	if err := h.repo.Users().SetPasswordResetToken(ctx, user.ID, HashResetToken(token), expiresAt); err != nil {
		return internalError(err, "failed to store password reset token")
	}

	dispatchEmail(ctx, h.mailer, h.logger, Email{
		To:   user.Email,
		Kind: EmailForgotPassword,
		Data: map[string]any{
			"name":      user.Name,
			"resetUrl":  PasswordResetURL(h.config.GetClientURL(), token),
			"expiresAt": expiresAt,
		},
	})

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordResetAsked,
		Actor:      userActor(user.ID.String()),
		UserID:     user.ID.String(),
		OccurredAt: now,
	})

	return respond()
}
