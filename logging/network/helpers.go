package network

import (
	"context"

	"github.com/ddm94/SlimyKitchenOnline/logging"
)

const (
	// EventCommandRejected is emitted when a client command fails intake validation.
	EventCommandRejected logging.EventType = "network.command_rejected"
	// EventHeartbeatTimeout is emitted when a participant stops sending heartbeats.
	EventHeartbeatTimeout logging.EventType = "network.heartbeat_timeout"
	// EventKeyframeNack is emitted when a requested keyframe is no longer retained.
	EventKeyframeNack logging.EventType = "network.keyframe_nack"
	// EventJoinRejected is emitted when a join attempt is refused.
	EventJoinRejected logging.EventType = "network.join_rejected"
)

type CommandRejectedPayload struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

type HeartbeatTimeoutPayload struct {
	SilenceMillis int64 `json:"silenceMillis"`
}

type KeyframeNackPayload struct {
	Sequence uint64 `json:"sequence"`
	Reason   string `json:"reason"`
}

type JoinRejectedPayload struct {
	Reason string `json:"reason"`
}

func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CommandRejectedPayload, extra map[string]any) {
	publish(ctx, pub, EventCommandRejected, tick, actor, logging.SeverityDebug, payload, extra)
}

func HeartbeatTimeout(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload HeartbeatTimeoutPayload, extra map[string]any) {
	publish(ctx, pub, EventHeartbeatTimeout, tick, actor, logging.SeverityWarn, payload, extra)
}

func KeyframeNack(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload KeyframeNackPayload, extra map[string]any) {
	publish(ctx, pub, EventKeyframeNack, tick, actor, logging.SeverityDebug, payload, extra)
}

func JoinRejected(ctx context.Context, pub logging.Publisher, tick uint64, payload JoinRejectedPayload, extra map[string]any) {
	publish(ctx, pub, EventJoinRejected, tick, logging.EntityRef{Kind: logging.EntityKindUnknown}, logging.SeverityWarn, payload, extra)
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
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
