package intake

import (
	"time"

	"github.com/ddm94/SlimyKitchenOnline/internal/net/proto"
	"github.com/ddm94/SlimyKitchenOnline/internal/session"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
)

// CommandContext supplies what staging needs from the hub.
type CommandContext struct {
	Engine    sim.Engine
	HasPlayer func(string) bool
	Tick      func() uint64
	Now       func() time.Time
}

// StageClientCommand validates msg, stamps origin metadata and enqueues the
// resulting command. The reason is empty when ok is true.
func StageClientCommand(ctx CommandContext, playerID string, msg proto.ClientMessage) (sim.Command, bool, string) {
	var zero sim.Command

	command, ok := proto.ClientCommand(msg)
	if !ok {
		return zero, false, session.RejectInvalidCommand
	}

	switch command.Type {
	case sim.CommandInteract, sim.CommandInteractAlternate:
		if command.Interact == nil || command.Interact.Target == "" {
			return zero, false, session.RejectInvalidCommand
		}
	case sim.CommandReady, sim.CommandPause, sim.CommandUnpause, sim.CommandDeliver:
	default:
		return zero, false, session.RejectInvalidCommand
	}

	if ctx.HasPlayer != nil && !ctx.HasPlayer(playerID) {
		return zero, false, session.RejectUnknownActor
	}

	command.ActorID = playerID
	if ctx.Tick != nil {
		command.OriginTick = ctx.Tick()
	}
	if ctx.Now != nil {
		command.IssuedAt = ctx.Now()
	} else {
		command.IssuedAt = time.Now()
	}

	if ctx.Engine == nil {
		return zero, false, sim.CommandRejectQueueFull
	}
	if ok, reason := ctx.Engine.Enqueue(command); !ok {
		return zero, false, reason
	}

	return command, true, ""
}
