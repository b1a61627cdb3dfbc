package auth

import (
	"context"
	"math"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

const (
	defaultBlockedPageLimit = 10
	maxBlockedPageLimit     = 100
)

// BlockUserMessage suspends an account on behalf of an administrator.
type BlockUserMessage struct {
	ActorID       uuid.UUID
	UserID        uuid.UUID
	Reason        string `json:"reason"`
	DurationHours int    `json:"duration"`
	OnResponse    func(user *User)
}

func (e BlockUserMessage) Type() string { return "admin.user.block" }

// Validate will run validation rules
func (e BlockUserMessage) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Reason, validation.Length(0, 500)),
			validation.Field(&e.DurationHours, validation.Min(0), validation.Max(24*365)),
		)
	}, "Invalid block request"); err != nil {
		return err
	}
	return nil
}

// UnblockUserMessage lifts any suspension on an account.
type UnblockUserMessage struct {
	ActorID    uuid.UUID
	UserID     uuid.UUID
	OnResponse func(user *User)
}

func (e UnblockUserMessage) Type() string { return "admin.user.unblock" }

// AdminHandler groups the moderation entry points.
type AdminHandler struct {
	repo     RepositoryManager
	config   Config
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

func NewAdminHandler(repo RepositoryManager, cfg Config) *AdminHandler {
	return &AdminHandler{
		repo:     repo,
		config:   cfg,
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      utcNow,
	}
}

func (h *AdminHandler) WithLogger(l Logger) *AdminHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *AdminHandler) WithActivitySink(sink ActivitySink) *AdminHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *AdminHandler) WithClock(now func() time.Time) *AdminHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *AdminHandler) target(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := h.repo.Users().GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAdminTargetNotFound
		}
		return nil, internalError(err, "failed to retrieve user")
	}
	return user, nil
}

// Block applies an admin suspension. Login attempts are left as they are.
func (h *AdminHandler) Block(ctx context.Context, event BlockUserMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "user block")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return err
	}

	if _, err := h.target(ctx, event.UserID); err != nil {
		return err
	}

	now := h.now()
	suspension := AdminSuspension(
		event.ActorID,
		strings.TrimSpace(event.Reason),
		time.Duration(event.DurationHours)*time.Hour,
		h.config.GetAdminBlockDuration(),
		now,
	)

	if err := h.repo.Users().Suspend(ctx, event.UserID, suspension); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAdminTargetNotFound
		}
		return internalError(err, "failed to block user")
	}

	user, err := h.target(ctx, event.UserID)
	if err != nil {
		return err
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserBlocked,
		Actor:     ActorRef{ID: event.ActorID.String(), Type: ActorTypeAdmin},
		UserID:    event.UserID.String(),
		Metadata: map[string]any{
			"reason":     suspension.Reason,
			"expires_at": suspension.ExpiresAt,
		},
		OccurredAt: now,
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

// Unblock runs the same reset as a successful login.
func (h *AdminHandler) Unblock(ctx context.Context, event UnblockUserMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "user unblock")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.target(ctx, event.UserID)
	if err != nil {
		return err
	}

	if _, blocked := user.Suspension(); !blocked {
		return ErrUserNotBlocked
	}

	now := h.now()
	if err := h.repo.Users().ResetLoginState(ctx, user.ID, now); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAdminTargetNotFound
		}
		return internalError(err, "failed to unblock user")
	}

	if user, err = h.target(ctx, event.UserID); err != nil {
		return err
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventUserUnblocked,
		Actor:      ActorRef{ID: event.ActorID.String(), Type: ActorTypeAdmin},
		UserID:     event.UserID.String(),
		OccurredAt: now,
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

// BlockedUsersQuery lists suspended accounts.
type BlockedUsersQuery struct {
	Role   string `query:"role"`
	Search string `query:"search"`
	Page   int    `query:"page"`
	Limit  int    `query:"limit"`
}

// Pagination describes the page returned by a listing.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalUsers  int `json:"totalUsers"`
	Limit       int `json:"limit"`
}

// BlockedUsersResult is one page of blocked accounts.
type BlockedUsersResult struct {
	Users      []*User    `json:"users"`
	Pagination Pagination `json:"pagination"`
}

func (q BlockedUsersQuery) filter() (BlockedUsersFilter, error) {
	f := BlockedUsersFilter{
		Search: strings.TrimSpace(q.Search),
		Page:   q.Page,
		Limit:  q.Limit,
	}

	if q.Role != "" {
		role, ok := ParseRole(q.Role)
		if !ok {
			return f, invalid("Invalid role filter", TextCodeValidation).
				WithMetadata(map[string]any{"role": q.Role})
		}
		f.Role = role
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultBlockedPageLimit
	}
	if f.Limit > maxBlockedPageLimit {
		f.Limit = maxBlockedPageLimit
	}
	return f, nil
}

// ListBlocked is read only.
func (h *AdminHandler) ListBlocked(ctx context.Context, query BlockedUsersQuery) (*BlockedUsersResult, error) {
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	users, total, err := h.repo.Users().ListBlocked(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list blocked users")
	}

	return &BlockedUsersResult{
		Users: users,
		Pagination: Pagination{
			CurrentPage: filter.Page,
			TotalPages:  int(math.Ceil(float64(total) / float64(filter.Limit))),
			TotalUsers:  total,
			Limit:       filter.Limit,
		},
	}, nil
}
