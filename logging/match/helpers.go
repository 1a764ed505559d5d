package match

import (
	"context"

	"github.com/ddm94/SlimyKitchenOnline/logging"
)

const (
	// EventStateChanged is emitted whenever the match advances to a new state.
	EventStateChanged logging.EventType = "match.state_changed"
	// EventPauseChanged is emitted whenever the aggregate pause flag is rewritten.
	EventPauseChanged logging.EventType = "match.pause_changed"
	// EventReadySignaled is emitted when a participant marks itself ready.
	EventReadySignaled logging.EventType = "match.ready_signaled"
)

type StateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type PauseChangedPayload struct {
	Paused bool `json:"paused"`
}

type ReadySignaledPayload struct {
	QuorumReached bool `json:"quorumReached"`
	Participants  int  `json:"participants"`
}

// StateChanged publishes a match state transition.
func StateChanged(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StateChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStateChanged,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
		Payload:  payload,
		Extra:    extra,
	})
}

// PauseChanged publishes the recomputed aggregate pause flag.
func PauseChanged(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PauseChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPauseChanged,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryMatch,
		Payload:  payload,
		Extra:    extra,
	})
}

// ReadySignaled publishes a ready mark.
func ReadySignaled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ReadySignaledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventReadySignaled,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMatch,
		Payload:  payload,
		Extra:    extra,
	})
}
