package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// CreateAdminMessage seeds a verified administrator, skipping the pending
// registration flow.
type CreateAdminMessage struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Password   string   `json:"password"`
	Role       UserRole `json:"role"`
	UseHashid  bool
	OnResponse func(user *User)
}

func (e CreateAdminMessage) Type() string { return "admin.create" }

// Validate will run validation rules
func (e CreateAdminMessage) Validate(region string) error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Name, validation.Required, validation.Length(1, 100)),
			validation.Field(&e.Email, validation.Required, is.Email),
			validation.Field(&e.Phone, validation.By(ValidatePhone(region))),
			validation.Field(&e.Password, PasswordRules()...),
			validation.Field(&e.Role, validation.In(RoleAdmin, RoleSuperAdmin)),
		)
	}, "Invalid administrator payload"); err != nil {
		return err
	}
	return nil
}

type CreateAdminHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	config   Config
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

func NewCreateAdminHandler(repo RepositoryManager, hasher PasswordHasher, cfg Config) *CreateAdminHandler {
	return &CreateAdminHandler{
		repo:     repo,
		hasher:   hasher,
		config:   cfg,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      utcNow,
	}
}

func (h *CreateAdminHandler) WithLogger(l Logger) *CreateAdminHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *CreateAdminHandler) WithActivitySink(sink ActivitySink) *CreateAdminHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *CreateAdminHandler) Execute(ctx context.Context, event CreateAdminMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "admin creation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateAdminHandler) execute(ctx context.Context, event CreateAdminMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Role == "" {
		event.Role = RoleAdmin
	}

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

	hash, err := h.hasher.Hash(ctx, event.Password)
	if err != nil {
		return internalError(err, "failed to hash password")
	}

	now := h.now()
	user := &PendingUser{
		Name:         strings.TrimSpace(event.Name),
		Email:        NormalizeEmail(event.Email),
		Phone:        phone,
		Role:         event.Role,
		PasswordHash: hash,
	}
	admin := user.Promote(now)

	if event.UseHashid {
		if id, err := hashid.NewUUID(admin.Email); err == nil {
			admin.ID = id
		}
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := h.repo.Users().ExistsByEmailOrPhoneTx(ctx, tx, admin.Email, admin.Phone)
		if err != nil {
			return err
		}
		if exists {
			return ErrUserAlreadyExists
		}

		if admin, err = h.repo.Users().CreateTx(ctx, tx, admin); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create administrator")
		}
		return nil
	})

	if err != nil {
		return internalError(err, "failed to create administrator")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventAdminCreated,
		Actor:      ActorRef{ID: "cli", Type: ActorTypeSystem},
		UserID:     admin.ID.String(),
		Metadata:   map[string]any{"role": string(admin.Role)},
		OccurredAt: now,
	})

	if event.OnResponse != nil {
		event.OnResponse(admin)
	}

	return nil
}
