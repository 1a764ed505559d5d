package sim

import (
	"testing"
	"time"
)

type recordingCore struct {
	applied [][]Command
	steps   []LoopTickContext
	pending []Patch
}

func (c *recordingCore) Deps() Deps { return Deps{} }

func (c *recordingCore) Apply(cmds []Command) error {
	c.applied = append(c.applied, cmds)
	for _, cmd := range cmds {
		c.pending = append(c.pending, Patch{Kind: PatchReadiness, EntityID: cmd.ActorID, Payload: FlagPayload{Value: true}})
	}
	return nil
}

func (c *recordingCore) Step(ctx LoopTickContext) { c.steps = append(c.steps, ctx) }

func (c *recordingCore) Snapshot() Keyframe {
	return Keyframe{Tick: uint64(len(c.steps))}
}

func (c *recordingCore) DrainPatches() []Patch {
	out := c.pending
	c.pending = nil
	return out
}

func TestLoopAdvanceAppliesCommandsInOrder(t *testing.T) {
	core := &recordingCore{}
	loop := NewLoop(core, LoopConfig{CommandCapacity: 8}, LoopHooks{})

	loop.Enqueue(Command{ActorID: "p1", Type: CommandReady})
	loop.Enqueue(Command{ActorID: "p2", Type: CommandReady})

	result := loop.Advance(LoopTickContext{Tick: 1, Now: time.Unix(0, 0), Delta: 0.1})
	if len(result.Commands) != 2 || result.Commands[0].ActorID != "p1" {
		t.Fatalf("unexpected commands: %+v", result.Commands)
	}
	if len(result.Patches) != 2 {
		t.Fatalf("expected patches drained into the result, got %d", len(result.Patches))
	}
	if result.Snapshot.Tick != 1 {
		t.Fatalf("expected snapshot after the step, got tick %d", result.Snapshot.Tick)
	}
	if len(core.steps) != 1 || core.steps[0].Delta != 0.1 {
		t.Fatalf("expected one step with the tick delta, got %+v", core.steps)
	}
	if loop.Pending() != 0 {
		t.Fatalf("expected queue empty after advance")
	}
}

func TestLoopPerActorLimit(t *testing.T) {
	var drops []string
	loop := NewLoop(&recordingCore{}, LoopConfig{CommandCapacity: 8, PerActorLimit: 2}, LoopHooks{
		OnCommandDrop: func(reason string, _ Command) { drops = append(drops, reason) },
	})

	for i := 0; i < 3; i++ {
		loop.Enqueue(Command{ActorID: "p1", Type: CommandInteract})
	}
	ok, reason := loop.Enqueue(Command{ActorID: "p2", Type: CommandInteract})
	if !ok || reason != "" {
		t.Fatalf("expected other actors unaffected, got %v %q", ok, reason)
	}
	if len(drops) != 1 || drops[0] != CommandRejectQueueLimit {
		t.Fatalf("expected one queue_limit drop, got %v", drops)
	}

	loop.Advance(LoopTickContext{Tick: 1})
	if ok, _ := loop.Enqueue(Command{ActorID: "p1", Type: CommandInteract}); !ok {
		t.Fatalf("expected limit to reset after a tick")
	}
}

func TestLoopBufferFullRejects(t *testing.T) {
	loop := NewLoop(&recordingCore{}, LoopConfig{CommandCapacity: 1}, LoopHooks{})
	loop.Enqueue(Command{ActorID: "p1", Type: CommandPause})
	ok, reason := loop.Enqueue(Command{ActorID: "p2", Type: CommandPause})
	if ok || reason != CommandRejectQueueFull {
		t.Fatalf("expected queue_full, got %v %q", ok, reason)
	}
}

func TestLoopLifecycleCommandsBypassLimitsAndRunFirst(t *testing.T) {
	core := &recordingCore{}
	loop := NewLoop(core, LoopConfig{CommandCapacity: 1, PerActorLimit: 1}, LoopHooks{})

	loop.Enqueue(Command{ActorID: "p1", Type: CommandReady})
	if ok, _ := loop.Enqueue(Command{ActorID: "p1", Type: CommandDisconnect}); !ok {
		t.Fatalf("expected disconnect to be accepted despite limits")
	}
	loop.EnqueueLifecycle(Command{ActorID: "p2", Type: CommandConnect})
	if loop.Pending() != 3 {
		t.Fatalf("expected 3 pending, got %d", loop.Pending())
	}

	result := loop.Advance(LoopTickContext{Tick: 1})
	types := []CommandType{}
	for _, cmd := range result.Commands {
		types = append(types, cmd.Type)
	}
	want := []CommandType{CommandDisconnect, CommandConnect, CommandReady}
	if len(types) != len(want) {
		t.Fatalf("unexpected commands %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}
}

func TestLoopQueueWarning(t *testing.T) {
	var warnings []int
	loop := NewLoop(&recordingCore{}, LoopConfig{CommandCapacity: 8, WarningStep: 2}, LoopHooks{
		OnQueueWarning: func(length int) { warnings = append(warnings, length) },
	})
	for i := 0; i < 4; i++ {
		loop.Enqueue(Command{Type: CommandInteract})
	}
	if len(warnings) != 2 || warnings[0] != 2 || warnings[1] != 4 {
		t.Fatalf("unexpected warnings %v", warnings)
	}
}

func TestLoopRunStopsAndReportsSteps(t *testing.T) {
	core := &recordingCore{}
	steps := make(chan LoopStepResult, 16)
	loop, err := NewEngine(core, WithLoopConfig(LoopConfig{TickRate: 200, CommandCapacity: 4}), WithLoopHooks(LoopHooks{
		AfterStep: func(result LoopStepResult) {
			select {
			case steps <- result:
			default:
			}
		},
	}))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		loop.Run(stop)
		close(done)
	}()

	select {
	case result := <-steps:
		if result.Tick != 1 || result.Budget != 5*time.Millisecond {
			t.Fatalf("unexpected first step: tick=%d budget=%s", result.Tick, result.Budget)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop never stepped")
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
}

func TestNewEngineRequiresCore(t *testing.T) {
	if _, err := NewEngine(nil); err != ErrMissingEngineCore {
		t.Fatalf("expected ErrMissingEngineCore, got %v", err)
	}
}
