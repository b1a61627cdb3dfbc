package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistrationPending ActivityEventType = "auth.registration.pending"
	ActivityEventEmailVerified       ActivityEventType = "auth.email.verified"
	ActivityEventLoginSuccess        ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure        ActivityEventType = "auth.login.failure"
	ActivityEventSecondFactorPending ActivityEventType = "auth.login.2fa_required"
	ActivityEventAccountLocked       ActivityEventType = "auth.account.locked"
	ActivityEventLogout              ActivityEventType = "auth.logout"
	ActivityEventTokenRefreshed      ActivityEventType = "auth.token.refreshed"
	ActivityEventPasswordResetAsked  ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordReset       ActivityEventType = "auth.password.reset"
	ActivityEventTwoFactorEnabled    ActivityEventType = "auth.2fa.enabled"
	ActivityEventTwoFactorDisabled   ActivityEventType = "auth.2fa.disabled"
	ActivityEventUserBlocked         ActivityEventType = "admin.user.blocked"
	ActivityEventUserUnblocked       ActivityEventType = "admin.user.unblocked"
	ActivityEventAdminCreated        ActivityEventType = "admin.user.created"
)

// ActorRef identifies who performed an action.
type ActorRef struct {
	ID   string
	Type string
}

const (
	ActorTypeUser   = "user"
	ActorTypeAdmin  = "admin"
	ActorTypeSystem = "system"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity is best effort, sink failures are only logged.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("failed to record activity", "event", string(event.EventType), "error", err)
	}
}

// LoggerActivitySink writes events to a logger.
func LoggerActivitySink(logger Logger) ActivitySink {
	logger = normalizeLogger(logger)
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		logger.Info("activity",
			"event", string(event.EventType),
			"user_id", event.UserID,
			"actor_id", event.Actor.ID,
			"actor_type", event.Actor.Type,
			"metadata", event.Metadata,
		)
		return nil
	})
}

func userActor(id string) ActorRef {
	return ActorRef{ID: id, Type: ActorTypeUser}
}
