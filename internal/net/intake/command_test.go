package intake

import (
	"testing"
	"time"

	"github.com/ddm94/SlimyKitchenOnline/internal/net/proto"
	"github.com/ddm94/SlimyKitchenOnline/internal/session"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
)

type fakeEngine struct {
	enqueueOK     bool
	enqueueReason string
	commands      []sim.Command
}

func (f *fakeEngine) Enqueue(cmd sim.Command) (bool, string) {
	f.commands = append(f.commands, cmd)
	if f.enqueueOK {
		return true, ""
	}
	if f.enqueueReason == "" {
		f.enqueueReason = sim.CommandRejectQueueLimit
	}
	return false, f.enqueueReason
}
func (f *fakeEngine) EnqueueLifecycle(cmd sim.Command) { f.commands = append(f.commands, cmd) }
func (f *fakeEngine) Pending() int                     { return len(f.commands) }
func (f *fakeEngine) Advance(sim.LoopTickContext) sim.LoopStepResult {
	return sim.LoopStepResult{}
}
func (f *fakeEngine) Run(<-chan struct{}) {}

func acceptingContext(engine sim.Engine) CommandContext {
	return CommandContext{
		Engine:    engine,
		HasPlayer: func(id string) bool { return id == "player-1" },
		Tick:      func() uint64 { return 1 },
		Now:       func() time.Time { return time.Unix(0, 0) },
	}
}

func TestStageClientCommandAcceptsInteract(t *testing.T) {
	engine := &fakeEngine{enqueueOK: true}
	issuedAt := time.Unix(100, 0)
	ctx := CommandContext{
		Engine:    engine,
		HasPlayer: func(id string) bool { return id == "player-1" },
		Tick:      func() uint64 { return 42 },
		Now:       func() time.Time { return issuedAt },
	}

	msg := proto.ClientMessage{Type: proto.TypeInteract, Target: "container-tomato"}
	cmd, ok, reason := StageClientCommand(ctx, "player-1", msg)
	if !ok {
		t.Fatalf("expected command to be accepted, got reason %q", reason)
	}
	if cmd.ActorID != "player-1" {
		t.Fatalf("expected ActorID to be set, got %q", cmd.ActorID)
	}
	if cmd.OriginTick != 42 {
		t.Fatalf("expected OriginTick to be 42, got %d", cmd.OriginTick)
	}
	if !cmd.IssuedAt.Equal(issuedAt) {
		t.Fatalf("expected IssuedAt %v, got %v", issuedAt, cmd.IssuedAt)
	}
	if len(engine.commands) != 1 || engine.commands[0].Interact.Target != "container-tomato" {
		t.Fatalf("expected engine to record the interact command, got %+v", engine.commands)
	}
}

func TestStageClientCommandRejectsUnknownPlayer(t *testing.T) {
	engine := &fakeEngine{enqueueOK: true}
	_, ok, reason := StageClientCommand(acceptingContext(engine), "missing", proto.ClientMessage{Type: proto.TypeReady})
	if ok {
		t.Fatalf("expected rejection for missing player")
	}
	if reason != session.RejectUnknownActor {
		t.Fatalf("expected reason %q, got %q", session.RejectUnknownActor, reason)
	}
	if len(engine.commands) != 0 {
		t.Fatalf("expected nothing staged, got %d", len(engine.commands))
	}
}

func TestStageClientCommandRejectsInvalidMessages(t *testing.T) {
	engine := &fakeEngine{enqueueOK: true}
	for _, msg := range []proto.ClientMessage{
		{Type: "teleport"},
		{Type: proto.TypeInteractAlternate},
		{Type: proto.TypeHeartbeat},
	} {
		_, ok, reason := StageClientCommand(acceptingContext(engine), "player-1", msg)
		if ok {
			t.Fatalf("expected rejection for %q", msg.Type)
		}
		if reason != session.RejectInvalidCommand {
			t.Fatalf("expected reason %q for %q, got %q", session.RejectInvalidCommand, msg.Type, reason)
		}
	}
}

func TestStageClientCommandPropagatesEngineReason(t *testing.T) {
	engine := &fakeEngine{enqueueOK: false, enqueueReason: sim.CommandRejectQueueLimit}
	_, ok, reason := StageClientCommand(acceptingContext(engine), "player-1", proto.ClientMessage{Type: proto.TypeDeliver})
	if ok {
		t.Fatalf("expected rejection from engine")
	}
	if reason != sim.CommandRejectQueueLimit {
		t.Fatalf("expected engine reason %q, got %q", sim.CommandRejectQueueLimit, reason)
	}
}

func TestStageClientCommandHandlesNilEngine(t *testing.T) {
	_, ok, reason := StageClientCommand(acceptingContext(nil), "player-1", proto.ClientMessage{Type: proto.TypePause})
	if ok {
		t.Fatalf("expected rejection when engine is nil")
	}
	if reason != sim.CommandRejectQueueFull {
		t.Fatalf("expected reason %q, got %q", sim.CommandRejectQueueFull, reason)
	}
}
