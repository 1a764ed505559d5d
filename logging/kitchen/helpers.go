package kitchen

import (
	"context"

	"github.com/ddm94/SlimyKitchenOnline/logging"
)

const (
	// EventInteractionRejected is emitted when a kitchen interaction fails validation.
	EventInteractionRejected logging.EventType = "kitchen.interaction_rejected"
	// EventObjectTrashed is emitted when a held object is destroyed at a trash counter.
	EventObjectTrashed logging.EventType = "kitchen.object_trashed"
	// EventCutCompleted is emitted when an ingredient has been fully cut.
	EventCutCompleted logging.EventType = "kitchen.cut_completed"
)

type InteractionRejectedPayload struct {
	Counter string `json:"counter"`
	Reason  string `json:"reason"`
}

type CounterPayload struct {
	Counter    string `json:"counter"`
	Ingredient string `json:"ingredient,omitempty"`
}

func InteractionRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload InteractionRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInteractionRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryKitchen,
		Payload:  payload,
		Extra:    extra,
	})
}

func ObjectTrashed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CounterPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObjectTrashed,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{{ID: payload.Counter, Kind: logging.EntityKindCounter}},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryKitchen,
		Payload:  payload,
		Extra:    extra,
	})
}

func CutCompleted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CounterPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCutCompleted,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{{ID: payload.Counter, Kind: logging.EntityKindCounter}},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryKitchen,
		Payload:  payload,
		Extra:    extra,
	})
}
