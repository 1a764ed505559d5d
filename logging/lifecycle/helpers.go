package lifecycle

import (
	"context"

	"github.com/ddm94/SlimyKitchenOnline/logging"
)

const (
	// EventParticipantJoined is emitted when a participant enters the session.
	EventParticipantJoined logging.EventType = "lifecycle.participant_joined"
	// EventParticipantLeft is emitted when a participant leaves the session.
	EventParticipantLeft logging.EventType = "lifecycle.participant_left"
	// EventSessionClosed is emitted once when the authority tears the session down.
	EventSessionClosed logging.EventType = "lifecycle.session_closed"
)

// ParticipantJoinedPayload captures the universe size after a join.
type ParticipantJoinedPayload struct {
	Participants int `json:"participants"`
}

// ParticipantLeftPayload captures why a participant left and what it dropped.
type ParticipantLeftPayload struct {
	Reason        string `json:"reason"`
	Participants  int    `json:"participants"`
	DroppedObject string `json:"droppedObject,omitempty"`
}

// SessionClosedPayload captures the reason the authority stopped.
type SessionClosedPayload struct {
	Reason string `json:"reason"`
}

// ParticipantJoined publishes a participant join event.
func ParticipantJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ParticipantJoinedPayload, extra map[string]any) {
	publish(ctx, pub, EventParticipantJoined, tick, actor, logging.SeverityInfo, payload, extra)
}

// ParticipantLeft publishes a participant departure event.
func ParticipantLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ParticipantLeftPayload, extra map[string]any) {
	publish(ctx, pub, EventParticipantLeft, tick, actor, logging.SeverityInfo, payload, extra)
}

// SessionClosed publishes the terminal session event.
func SessionClosed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionClosedPayload, extra map[string]any) {
	publish(ctx, pub, EventSessionClosed, tick, actor, logging.SeverityWarn, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, tick uint64, actor logging.EntityRef, severity logging.Severity, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
