// Package activitymap flattens auth activity events into a record shape
// audit pipelines can store without knowing the auth types.
package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-secure-auth"
)

const (
	// MetadataKeyActorType carries auth.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyEvent carries the full event type.
	MetadataKeyEvent = "event"
)

const (
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Normalized is the flattened event.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*normalizeOptions)

type normalizeOptions struct {
	objectType    string
	actorFallback string
	now           func() time.Time
}

// Normalize splits the event type into channel and verb, so
// "admin.user.blocked" becomes channel "admin" and verb "user.blocked".
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	channel, verb := splitEventType(string(event.EventType))

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       verb,
		ObjectType: options.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt,
	}
}

func WithObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback is used when neither actor nor user id is set.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// LogSink records normalized events on logger.
func LogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		n := Normalize(event, opts...)
		logger.Info("activity",
			"channel", n.Channel,
			"verb", n.Verb,
			"actor_id", n.ActorID,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
			"metadata", n.Metadata,
			"occurred_at", n.OccurredAt,
		)
		return nil
	})
}

func splitEventType(eventType string) (string, string) {
	channel, verb, ok := strings.Cut(eventType, ".")
	if !ok {
		return "", eventType
	}
	return channel, verb
}

func metadata(event auth.ActivityEvent) map[string]any {
	out := make(map[string]any, len(event.Metadata)+2)
	for key, value := range event.Metadata {
		out[key] = value
	}
	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := out[MetadataKeyActorType]; !exists {
			out[MetadataKeyActorType] = actorType
		}
	}
	out[MetadataKeyEvent] = string(event.EventType)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
