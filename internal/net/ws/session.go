package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ddm94/SlimyKitchenOnline/internal/hub"
	"github.com/ddm94/SlimyKitchenOnline/internal/net/intake"
	"github.com/ddm94/SlimyKitchenOnline/internal/net/proto"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
)

// Serve subscribes conn for playerID and processes client messages until the
// connection fails.
func (h *Handler) Serve(playerID string, conn *websocket.Conn) {
	if h == nil || h.hub == nil || conn == nil {
		return
	}

	sub, err := h.hub.Subscribe(playerID, conn)
	if err != nil {
		reason := "session closed"
		switch {
		case errors.Is(err, hub.ErrUnknownParticipant):
			reason = "unknown player"
		case !errors.Is(err, hub.ErrClosed):
			h.logger.Printf("failed to send initial keyframe to %s: %v", playerID, err)
			h.hub.Disconnect(playerID, "subscribe_failed")
			return
		}
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	commands := intake.CommandContext{
		Engine:    h.hub.Engine(),
		HasPlayer: h.hub.HasParticipant,
		Tick:      h.hub.Tick,
		Now:       time.Now,
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Release(playerID, sub, "connection_closed")
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", playerID, err)
			continue
		}

		normalizedSeq := uint64(0)
		if msg.CommandSeq != nil && *msg.CommandSeq > 0 {
			normalizedSeq = *msg.CommandSeq
		}

		write := func(data []byte, err error) bool {
			if err != nil {
				h.logger.Printf("failed to marshal response for %s: %v", playerID, err)
				return true
			}
			if err := sub.Write(data); err != nil {
				h.hub.Release(playerID, sub, "write_failed")
				return false
			}
			return true
		}

		switch msg.Type {
		case proto.TypeReady, proto.TypePause, proto.TypeUnpause,
			proto.TypeInteract, proto.TypeInteractAlternate, proto.TypeDeliver:
			if normalizedSeq > 0 {
				if last := sub.LastCommandSeq(); last > 0 && normalizedSeq <= last {
					if !write(proto.EncodeCommandAck(proto.CommandAck{Seq: normalizedSeq})) {
						return
					}
					continue
				}
			}
			cmd, ok, reason := h.stage(commands, playerID, msg)
			if normalizedSeq > 0 {
				if ok {
					if !write(proto.EncodeCommandAck(proto.CommandAck{Seq: normalizedSeq, Tick: cmd.OriginTick})) {
						return
					}
					sub.StoreLastCommandSeq(normalizedSeq)
				} else {
					retry := reason == sim.CommandRejectQueueLimit || reason == sim.CommandRejectQueueFull
					reject := proto.CommandReject{Seq: normalizedSeq, Reason: reason, Retry: retry, Tick: h.hub.Tick()}
					if !write(proto.EncodeCommandReject(reject)) {
						return
					}
				}
			}
		case proto.TypeHeartbeat:
			now := time.Now()
			rtt, ok := h.hub.UpdateHeartbeat(playerID, now, msg.SentAt)
			if !ok {
				continue
			}
			ack := proto.Heartbeat{
				ServerTime: now.UnixMilli(),
				ClientTime: msg.SentAt,
				RTTMillis:  rtt.Milliseconds(),
			}
			if !write(proto.EncodeHeartbeat(ack)) {
				return
			}
		case proto.TypeKeyframeReq:
			var sequence uint64
			if msg.KeyframeSeq != nil {
				sequence = *msg.KeyframeSeq
			}
			frame, nack, ok := h.hub.HandleKeyframeRequest(playerID, sequence)
			if !ok {
				continue
			}
			if nack != nil {
				if !write(proto.EncodeKeyframeNack(*nack)) {
					return
				}
				continue
			}
			if !write(proto.EncodeKeyframe(frame)) {
				return
			}
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, playerID)
		}
	}
}

func (h *Handler) stage(commands intake.CommandContext, playerID string, msg proto.ClientMessage) (sim.Command, bool, string) {
	_, span := h.tracer.Start(context.Background(), "ws.command")
	defer span.End()
	span.SetAttributes(
		attribute.String("player.id", playerID),
		attribute.String("command.type", msg.Type),
	)
	cmd, ok, reason := intake.StageClientCommand(commands, playerID, msg)
	if !ok {
		span.SetStatus(codes.Error, reason)
	}
	return cmd, ok, reason
}
