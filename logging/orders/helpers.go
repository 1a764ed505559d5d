package orders

import (
	"context"

	"github.com/ddm94/SlimyKitchenOnline/logging"
)

const (
	EventSpawned   logging.EventType = "orders.spawned"
	EventDelivered logging.EventType = "orders.delivered"
	EventFailed    logging.EventType = "orders.failed"
	EventExpired   logging.EventType = "orders.expired"
)

// OrderPayload identifies an order by its pending index and recipe.
type OrderPayload struct {
	Index     int    `json:"index"`
	Recipe    string `json:"recipe,omitempty"`
	Pending   int    `json:"pending"`
	Completed int    `json:"completed"`
}

func Spawned(ctx context.Context, pub logging.Publisher, tick uint64, payload OrderPayload, extra map[string]any) {
	publish(ctx, pub, EventSpawned, tick, logging.EntityRef{ID: payload.Recipe, Kind: logging.EntityKindOrder}, logging.SeverityInfo, payload, extra)
}

func Delivered(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload OrderPayload, extra map[string]any) {
	publish(ctx, pub, EventDelivered, tick, actor, logging.SeverityInfo, payload, extra)
}

// Failed publishes a delivery that matched no pending order.
func Failed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload OrderPayload, extra map[string]any) {
	publish(ctx, pub, EventFailed, tick, actor, logging.SeverityInfo, payload, extra)
}

func Expired(ctx context.Context, pub logging.Publisher, tick uint64, payload OrderPayload, extra map[string]any) {
	publish(ctx, pub, EventExpired, tick, logging.EntityRef{ID: payload.Recipe, Kind: logging.EntityKindOrder}, logging.SeverityInfo, payload, extra)
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
		Category: logging.CategoryOrders,
		Payload:  payload,
		Extra:    extra,
	})
}
