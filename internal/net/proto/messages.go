package proto

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim/patches"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for websocket payloads.
	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
	typeHeartbeat     = "heartbeat"
	typeJoined        = "joined"
	typePatches       = "patches"
	typeKeyframe      = "keyframe"
	typeKeyframeNack  = "keyframeNack"
)

// Client message type identifiers.
const (
	TypeReady             = "ready"
	TypePause             = "pause"
	TypeUnpause           = "unpause"
	TypeInteract          = "interact"
	TypeInteractAlternate = "interactAlternate"
	TypeDeliver           = "deliver"
	TypeHeartbeat         = "heartbeat"
	TypeKeyframeReq       = "keyframeRequest"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeCommandAck    = typeCommandAck
	TypeCommandReject = typeCommandReject
	TypeJoined        = typeJoined
	TypePatches       = typePatches
	TypeKeyframe      = typeKeyframe
	TypeKeyframeNack  = typeKeyframeNack
)

var codec = sonic.ConfigStd

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver         int     `json:"ver,omitempty"`
	Type        string  `json:"type"`
	Target      string  `json:"target,omitempty"`
	SentAt      int64   `json:"sentAt,omitempty"`
	KeyframeSeq *uint64 `json:"keyframeSeq,omitempty"`
	CommandSeq  *uint64 `json:"seq,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := codec.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// EncodeClientMessage renders an outbound client message, stamping the
// protocol version.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	msg.Ver = Version
	return codec.Marshal(msg)
}

// ClientCommand captures the structured simulation command carried by a
// websocket message. Origin metadata is populated by the hub when the command
// is accepted for processing.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	switch msg.Type {
	case TypeReady:
		return sim.Command{Type: sim.CommandReady}, true
	case TypePause:
		return sim.Command{Type: sim.CommandPause}, true
	case TypeUnpause:
		return sim.Command{Type: sim.CommandUnpause}, true
	case TypeInteract, TypeInteractAlternate:
		if msg.Target == "" {
			return sim.Command{}, false
		}
		kind := sim.CommandInteract
		if msg.Type == TypeInteractAlternate {
			kind = sim.CommandInteractAlternate
		}
		return sim.Command{Type: kind, Interact: &sim.InteractCommand{Target: msg.Target}}, true
	case TypeDeliver:
		return sim.Command{Type: sim.CommandDeliver}, true
	default:
		return sim.Command{}, false
	}
}

// CommandAck describes an acknowledgement of a staged command.
type CommandAck struct {
	Seq  uint64
	Tick uint64
}

// EncodeCommandAck renders a command acknowledgement response.
func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	frame := struct {
		Ver  int    `json:"ver"`
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
		Tick uint64 `json:"tick,omitempty"`
	}{
		Ver:  Version,
		Type: typeCommandAck,
		Seq:  msg.Seq,
		Tick: msg.Tick,
	}
	return codec.Marshal(frame)
}

// CommandReject notifies the client that a command was refused.
type CommandReject struct {
	Seq    uint64
	Reason string
	Retry  bool
	Tick   uint64
}

// EncodeCommandReject renders a command rejection response.
func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry,omitempty"`
		Tick   uint64 `json:"tick,omitempty"`
	}{
		Ver:    Version,
		Type:   typeCommandReject,
		Seq:    msg.Seq,
		Reason: msg.Reason,
		Retry:  msg.Retry,
		Tick:   msg.Tick,
	}
	return codec.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime"`
		RTTMillis  int64  `json:"rtt"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	}
	return codec.Marshal(frame)
}

// JoinResponseV1 captures the version 1 join response layout.
type JoinResponseV1 struct {
	Ver                int    `json:"ver"`
	ID                 string `json:"id"`
	SessionID          string `json:"sessionId"`
	CatalogFingerprint string `json:"catalogFingerprint"`
	TickRate           int    `json:"tickRate"`
	HeartbeatMillis    int64  `json:"heartbeatMillis"`
}

// EncodeJoinResponse renders a versioned join response payload.
func EncodeJoinResponse(msg JoinResponseV1) ([]byte, error) {
	msg.Ver = Version
	return codec.Marshal(msg)
}

// DecodeJoinResponse parses the body of a join response.
func DecodeJoinResponse(payload []byte) (JoinResponseV1, error) {
	var msg JoinResponseV1
	if err := codec.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("decode join response: %w", err)
	}
	return msg, nil
}

// PatchBatch is one tick worth of authority broadcasts.
type PatchBatch struct {
	Tick       uint64
	Sequence   uint64
	ServerTime int64
	Patches    []sim.Patch
}

type patchBatchFrame struct {
	Ver        int         `json:"ver"`
	Type       string      `json:"type"`
	Tick       uint64      `json:"t"`
	Sequence   uint64      `json:"sequence"`
	ServerTime int64       `json:"serverTime,omitempty"`
	Patches    []sim.Patch `json:"patches"`
}

type rawPatch struct {
	Kind     sim.PatchKind   `json:"kind"`
	EntityID string          `json:"entityId"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type rawPatchBatchFrame struct {
	Ver        int        `json:"ver"`
	Type       string     `json:"type"`
	Tick       uint64     `json:"t"`
	Sequence   uint64     `json:"sequence"`
	ServerTime int64      `json:"serverTime,omitempty"`
	Patches    []rawPatch `json:"patches"`
}

// EncodePatchBatch renders a patches message.
func EncodePatchBatch(msg PatchBatch) ([]byte, error) {
	list := msg.Patches
	if list == nil {
		list = []sim.Patch{}
	}
	return codec.Marshal(patchBatchFrame{
		Ver:        Version,
		Type:       typePatches,
		Tick:       msg.Tick,
		Sequence:   msg.Sequence,
		ServerTime: msg.ServerTime,
		Patches:    list,
	})
}

// DecodePatchBatch parses a patches message and restores each payload to the
// typed value the authority produced.
func DecodePatchBatch(payload []byte) (PatchBatch, error) {
	var frame rawPatchBatchFrame
	if err := codec.Unmarshal(payload, &frame); err != nil {
		return PatchBatch{}, fmt.Errorf("decode patch batch: %w", err)
	}
	if frame.Type != typePatches {
		return PatchBatch{}, fmt.Errorf("decode patch batch: unexpected type %q", frame.Type)
	}
	batch := PatchBatch{
		Tick:       frame.Tick,
		Sequence:   frame.Sequence,
		ServerTime: frame.ServerTime,
		Patches:    make([]sim.Patch, 0, len(frame.Patches)),
	}
	for _, raw := range frame.Patches {
		value, err := patches.Decode(raw.Kind, raw.Payload)
		if err != nil {
			return PatchBatch{}, err
		}
		batch.Patches = append(batch.Patches, sim.Patch{Kind: raw.Kind, EntityID: raw.EntityID, Payload: value})
	}
	return batch, nil
}

type keyframeFrame struct {
	Ver      int          `json:"ver"`
	Type     string       `json:"type"`
	Keyframe sim.Keyframe `json:"keyframe"`
}

// EncodeKeyframe renders a full-state keyframe message.
func EncodeKeyframe(frame sim.Keyframe) ([]byte, error) {
	return codec.Marshal(keyframeFrame{Ver: Version, Type: typeKeyframe, Keyframe: frame})
}

// DecodeKeyframe parses a keyframe message.
func DecodeKeyframe(payload []byte) (sim.Keyframe, error) {
	var frame keyframeFrame
	if err := codec.Unmarshal(payload, &frame); err != nil {
		return sim.Keyframe{}, fmt.Errorf("decode keyframe: %w", err)
	}
	if frame.Type != typeKeyframe {
		return sim.Keyframe{}, fmt.Errorf("decode keyframe: unexpected type %q", frame.Type)
	}
	return frame.Keyframe, nil
}

// KeyframeNack tells the client a requested keyframe is gone. Resync asks the
// client to request the latest keyframe instead.
type KeyframeNack struct {
	Sequence uint64
	Reason   string
	Resync   bool
}

// EncodeKeyframeNack renders a keyframe nack payload.
func EncodeKeyframeNack(msg KeyframeNack) ([]byte, error) {
	frame := struct {
		Ver      int    `json:"ver"`
		Type     string `json:"type"`
		Sequence uint64 `json:"sequence"`
		Reason   string `json:"reason"`
		Resync   bool   `json:"resync,omitempty"`
	}{
		Ver:      Version,
		Type:     typeKeyframeNack,
		Sequence: msg.Sequence,
		Reason:   msg.Reason,
		Resync:   msg.Resync,
	}
	return codec.Marshal(frame)
}

// MessageType peeks at the type field of a server or client payload.
func MessageType(payload []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := codec.Unmarshal(payload, &envelope); err != nil {
		return "", err
	}
	return envelope.Type, nil
}
