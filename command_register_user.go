package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// RegisterUserMessage starts a pending registration.
type RegisterUserMessage struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Password   string   `json:"password"`
	Role       UserRole `json:"role"`
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate(region string) error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Name, validation.Required, validation.Length(1, 100)),
			validation.Field(&e.Email, validation.Required, is.Email),
			validation.Field(&e.Phone, validation.By(ValidatePhone(region))),
			validation.Field(&e.Password, PasswordRules()...),
			validation.Field(&e.Role, validation.By(ValidateRole)),
		)
	}, "Invalid registration payload"); err != nil {
		return err
	}
	return nil
}

// RegisterUserResponse never carries the verification code or hash.
type RegisterUserResponse struct {
	Email     string
	ExpiresAt time.Time
}

// RegisterUserHandler stores a pending registration and emails the
// verification code.
type RegisterUserHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	mailer   Mailer
	config   Config
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

func NewRegisterUserHandler(repo RepositoryManager, hasher PasswordHasher, mailer Mailer, cfg Config) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		hasher:   hasher,
		mailer:   mailer,
		config:   cfg,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      utcNow,
	}
}

func (h *RegisterUserHandler) WithLogger(l Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithClock(now func() time.Time) *RegisterUserHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(h.config.GetPhoneRegion()); err != nil {
		return err
	}

	phone := ""
	if strings.TrimSpace(event.Phone) != "" {
		normalized, err := NormalizePhone(event.Phone, h.config.GetPhoneRegion())
		if err != nil {
			return invalid("Invalid phone number", TextCodeValidation)
		}
		phone = normalized
	}

	role := event.Role
	if role == "" {
		role = RoleUser
	}

	hash, err := h.hasher.Hash(ctx, event.Password)
	if err != nil {
		return internalError(err, "failed to hash password")
	}

	code, err := GenerateVerificationCode()
	if err != nil {
		return internalError(err, "failed to generate verification code")
	}

	now := h.now()
	pending := &PendingUser{
		Name:             strings.TrimSpace(event.Name),
		Email:            NormalizeEmail(event.Email),
		Phone:            phone,
		Role:             role,
		PasswordHash:     hash,
		VerificationCode: code,
		ExpiresAt:        now.Add(h.config.GetVerificationTTL()),
		CreatedAt:        &now,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := h.repo.Users().ExistsByEmailOrPhoneTx(ctx, tx, pending.Email, pending.Phone)
		if err != nil {
			return err
		}
		if exists {
			return ErrUserAlreadyExists
		}

		// a newer registration for the same email or phone replaces the old one
		if replaced, err := h.repo.PendingUsers().DeleteByEmailOrPhoneTx(ctx, tx, pending.Email, pending.Phone); err != nil {
			return err
		} else if replaced > 0 {
			h.logger.Debug("replaced pending registration", "email", pending.Email, "count", replaced)
		}

		if pending, err = h.repo.PendingUsers().CreateTx(ctx, tx, pending); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not store pending registration")
		}

		return nil
	})

	if err != nil {
		return internalError(err, "failed to register user")
	}

	dispatchEmail(ctx, h.mailer, h.logger, Email{
		To:   pending.Email,
		Kind: EmailRegister,
		Data: map[string]any{
			"name":             pending.Name,
			"verificationCode": code,
			"verifyUrl":        VerificationURL(h.config.GetBackendURL(), pending.Email, code),
			"expiresAt":        pending.ExpiresAt,
		},
	})

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventRegistrationPending,
		Actor:      ActorRef{ID: pending.Email, Type: ActorTypeUser},
		Metadata:   map[string]any{"email": pending.Email},
		OccurredAt: now,
	})

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{
			Email:     pending.Email,
			ExpiresAt: pending.ExpiresAt,
		})
	}

	return nil
}
