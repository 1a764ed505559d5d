package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/kitchen"
	"github.com/ddm94/SlimyKitchenOnline/internal/match"
	"github.com/ddm94/SlimyKitchenOnline/internal/orders"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
	"github.com/ddm94/SlimyKitchenOnline/logging"
	loggingorders "github.com/ddm94/SlimyKitchenOnline/logging/orders"
	"github.com/ddm94/SlimyKitchenOnline/logging/sinks"
)

type rejection struct {
	cmd    sim.Command
	reason string
}

// harness drives an Authority the way the loop does and feeds every patch
// batch to the attached replicas.
type harness struct {
	t         *testing.T
	authority *Authority
	replicas  map[string]*Replica
	queued    []sim.Command
	rejects   []rejection
	results   []Result
	tick      uint64
	seq       uint64
}

func testConfig() Config {
	return Config{
		Match:   match.Config{CountdownSeconds: 1, PlaySeconds: 100},
		Orders:  orders.Config{Capacity: 4, SpawnInterval: 1},
		Kitchen: kitchen.Config{PlateSpawnSeconds: 1, MaxPlates: 4},
	}
}

func newHarness(t *testing.T, cat *catalog.Catalog, cfg Config, publisher logging.Publisher) *harness {
	t.Helper()
	if cat == nil {
		var err error
		cat, err = catalog.Default()
		require.NoError(t, err)
	}
	h := &harness{t: t, replicas: make(map[string]*Replica)}
	authority, err := NewAuthority(AuthorityConfig{
		SessionID: "session-test",
		Catalog:   cat,
		Session:   cfg,
		Deps:      sim.Deps{RNG: sim.NewRNG(7, nil)},
		Publisher: publisher,
		Hooks: Hooks{
			OnReject:    func(cmd sim.Command, reason string) { h.rejects = append(h.rejects, rejection{cmd, reason}) },
			OnMatchOver: func(r Result) { h.results = append(h.results, r) },
		},
	})
	require.NoError(t, err)
	h.authority = authority
	return h
}

// join connects id on the authority and attaches a replica restored from
// the latest state.
func (h *harness) join(id string) *Replica {
	h.step(0, connect(id))
	replica := NewReplica(id, h.authority.Catalog(), h.authority.cfg.Match, SenderFunc(func(req Request) error {
		cmd := sim.Command{ActorID: id, Type: req.Type}
		if req.Target != "" {
			cmd.Interact = &sim.InteractCommand{Target: req.Target}
		}
		h.queued = append(h.queued, cmd)
		return nil
	}))
	frame := h.authority.Snapshot()
	frame.Sequence = h.seq
	require.NoError(h.t, replica.Restore(frame))
	h.replicas[id] = replica
	return replica
}

func (h *harness) step(dt float64, cmds ...sim.Command) []sim.Patch {
	h.t.Helper()
	all := append(h.queued, cmds...)
	h.queued = nil
	require.NoError(h.t, h.authority.Apply(all))
	h.tick++
	h.authority.Step(sim.LoopTickContext{Tick: h.tick, Delta: dt})
	patches := h.authority.DrainPatches()
	h.seq++
	for id, replica := range h.replicas {
		require.NoError(h.t, replica.ApplyBatch(h.seq, patches), "replica %s", id)
	}
	return patches
}

func (h *harness) stepUntil(dt float64, limit int, done func() bool) {
	h.t.Helper()
	for i := 0; i < limit && !done(); i++ {
		h.step(dt)
	}
	require.True(h.t, done(), "condition not reached after %d steps", limit)
}

func connect(id string) sim.Command {
	return sim.Command{ActorID: id, Type: sim.CommandConnect}
}

func disconnect(id string) sim.Command {
	return sim.Command{ActorID: id, Type: sim.CommandDisconnect, Disconnect: &sim.DisconnectCommand{Reason: "test"}}
}

func command(id string, typ sim.CommandType) sim.Command {
	return sim.Command{ActorID: id, Type: typ}
}

func interact(id, target string) sim.Command {
	return sim.Command{ActorID: id, Type: sim.CommandInteract, Interact: &sim.InteractCommand{Target: target}}
}

func alternate(id, target string) sim.Command {
	return sim.Command{ActorID: id, Type: sim.CommandInteractAlternate, Interact: &sim.InteractCommand{Target: target}}
}

func countState(patches []sim.Patch, state match.State) int {
	n := 0
	for _, p := range patches {
		if p.Kind == sim.PatchMatchState && p.Payload.(sim.MatchStatePayload).State == state.String() {
			n++
		}
	}
	return n
}

func (h *harness) assertConverged() {
	h.t.Helper()
	a := h.authority
	require.NoError(h.t, a.registry.Verify())
	for id, r := range h.replicas {
		require.Equal(h.t, a.match.State(), r.MatchState(), "replica %s state", id)
		require.Equal(h.t, a.pause.Paused(), r.IsGamePaused(), "replica %s pause", id)
		require.Equal(h.t, a.orders.Pending(), r.PendingOrders(), "replica %s orders", id)
		require.Equal(h.t, a.orders.Completed(), r.CompletedOrderCount(), "replica %s completed", id)
		require.Equal(h.t, a.registry.Objects(), r.Objects(), "replica %s objects", id)
		require.Equal(h.t, a.Participants(), r.Participants(), "replica %s participants", id)
		for _, c := range a.kitchen.Counters() {
			frame, ok := r.Counter(string(c.ID))
			require.True(h.t, ok)
			require.Equal(h.t, c.Plates, frame.Plates, "replica %s counter %s plates", id, c.ID)
			require.Equal(h.t, c.Progress, frame.Progress, "replica %s counter %s progress", id, c.ID)
		}
	}
}

func TestReadyQuorumStartsCountdownThenPlay(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	p1 := h.join("p1")
	h.join("p2")

	require.NoError(t, p1.RequestReady())
	h.step(0.1)
	require.True(t, h.authority.match.IsWaitingToStart())
	require.True(t, p1.IsLocalPlayerReady())
	require.False(t, h.replicas["p2"].IsLocalPlayerReady())

	require.NoError(t, h.replicas["p2"].RequestReady())
	h.step(0.1)
	require.True(t, h.authority.match.IsCountdownActive())
	require.True(t, p1.IsCountdownActive())
	require.InDelta(t, 0.9, p1.CountdownRemaining(), 1e-9)

	h.stepUntil(0.5, 10, h.authority.match.IsPlaying)
	require.True(t, p1.IsPlaying())
	require.Zero(t, p1.PlayTimeNormalized())
	h.assertConverged()
}

func TestSimultaneousReadyTransitionsOnce(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	h.join("p2")

	patches := h.step(0.1, command("p1", sim.CommandReady), command("p2", sim.CommandReady))
	require.Equal(t, 1, countState(patches, match.CountdownToStart))

	patches = h.step(0.1, command("p1", sim.CommandReady))
	require.Zero(t, countState(patches, match.CountdownToStart))
	require.Equal(t, []rejection{{command("p1", sim.CommandReady), RejectIneligible}}, h.rejects)
}

func TestPauseAggregatesAcrossParticipants(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	p1 := h.join("p1")
	p2 := h.join("p2")

	require.NoError(t, p1.RequestPause())
	h.step(0.1)
	require.True(t, p2.IsGamePaused())
	require.True(t, p1.IsLocalPaused())
	require.False(t, p2.IsLocalPaused())

	require.NoError(t, p2.TogglePause())
	h.step(0.1)
	require.NoError(t, p1.TogglePause())
	h.step(0.1)
	require.True(t, h.authority.pause.Paused(), "p2 still asks for a pause")
	require.False(t, p1.IsLocalPaused())

	require.NoError(t, p2.RequestUnpause())
	h.step(0.1)
	require.False(t, p1.IsGamePaused())
	h.assertConverged()
}

func TestPauseFreezesTimers(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	h.step(0.1, command("p1", sim.CommandReady))
	before := h.authority.match.CountdownRemaining()

	h.step(0.1, command("p1", sim.CommandPause))
	h.step(0.5)
	require.Equal(t, before, h.authority.match.CountdownRemaining())

	h.step(0.1, command("p1", sim.CommandUnpause))
	require.InDelta(t, before-0.1, h.authority.match.CountdownRemaining(), 1e-9)
}

func TestDisconnectWhilePausedRecomputesOnNextTick(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	p2 := h.join("p2")

	h.step(0.1, command("p1", sim.CommandPause))
	require.True(t, p2.IsGamePaused())

	h.step(0.1, disconnect("p1"))
	require.Equal(t, []string{"p2"}, h.authority.Participants())
	require.True(t, h.authority.pause.Paused(), "aggregate is stale until the following tick")

	h.step(0.1)
	require.False(t, h.authority.pause.Paused())
	require.False(t, p2.IsGamePaused())
}

func TestDepartureOfUnreadyParticipantStartsCountdown(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	h.join("p2")
	h.step(0.1, command("p1", sim.CommandReady))

	h.step(0.1, disconnect("p2"))
	require.True(t, h.authority.match.IsWaitingToStart())
	h.step(0.1)
	require.True(t, h.authority.match.IsCountdownActive())
}

func TestEmptySessionNeverStarts(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	h.step(0.1, disconnect("p1"))
	h.step(0.1)
	h.step(0.1)
	require.True(t, h.authority.match.IsWaitingToStart())
}

func TestUnknownActorAndInvalidCommandsAreRejected(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")

	h.step(0.1,
		command("ghost", sim.CommandReady),
		sim.Command{ActorID: "p1", Type: sim.CommandInteract},
		disconnect("ghost"),
		command("", sim.CommandReady),
	)
	reasons := make([]string, len(h.rejects))
	for i, r := range h.rejects {
		reasons[i] = r.reason
	}
	require.Equal(t, []string{RejectUnknownActor, RejectInvalidCommand, RejectUnknownActor, RejectInvalidCommand}, reasons)
}

func TestInteractionOutsidePlayIsIneligible(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	h.step(0.1, interact("p1", "container-bread"))
	require.Len(t, h.rejects, 1)
	require.Equal(t, RejectIneligible, h.rejects[0].reason)
	require.Zero(t, h.authority.registry.Len())
}

func cheeseSandwichCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	def, err := catalog.Default()
	require.NoError(t, err)
	doc := def.Document()
	var recipes []catalog.Recipe
	for _, r := range doc.Recipes {
		if r.ID == "cheese-sandwich" {
			recipes = append(recipes, r)
		}
	}
	require.Len(t, recipes, 1)
	doc.Recipes = recipes
	cat, err := catalog.New(doc)
	require.NoError(t, err)
	return cat
}

func TestKitchenFlowDeliversOrder(t *testing.T) {
	memory := sinks.NewMemorySink()
	h := newHarness(t, cheeseSandwichCatalog(t), testConfig(), logging.PublisherFunc(func(_ context.Context, e logging.Event) {
		_ = memory.Write(e)
	}))
	p1 := h.join("p1")
	var events []Event
	p1.Subscribe(func(e Event) { events = append(events, e) })

	h.step(0.1, command("p1", sim.CommandReady))
	h.stepUntil(0.6, 10, h.authority.match.IsPlaying)
	h.stepUntil(0.6, 10, func() bool {
		plates, _ := p1.Counter("plates-1")
		return plates.Plates > 0 && len(p1.PendingOrders()) > 0
	})

	h.step(0.1,
		interact("p1", "container-cheese"),
		interact("p1", "cutting-1"),
		alternate("p1", "cutting-1"),
		alternate("p1", "cutting-1"),
		alternate("p1", "cutting-1"),
		interact("p1", "container-bread"),
		interact("p1", "clear-1"),
		interact("p1", "plates-1"),
		interact("p1", "clear-1"),
		interact("p1", "cutting-1"),
	)
	require.Empty(t, h.rejects)
	held, ok := p1.HeldObject("p1")
	require.True(t, ok)
	require.Equal(t, []catalog.IngredientID{"bread", "cheese-slices"}, p1.PlateIngredients(string(held.ID)))
	h.assertConverged()

	pendingBefore := len(p1.PendingOrders())
	require.NoError(t, p1.RequestDeliver())
	h.step(0)
	require.Equal(t, 1, p1.CompletedOrderCount())
	require.Len(t, p1.PendingOrders(), pendingBefore-1)
	_, ok = p1.HeldObject("p1")
	require.False(t, ok)
	h.assertConverged()

	kinds := make(map[EventKind]int)
	for _, e := range events {
		kinds[e.Kind]++
	}
	require.Equal(t, 1, kinds[EventOrderSucceeded])
	require.Equal(t, 1, kinds[EventOrderCompleted])
	require.Equal(t, 2, kinds[EventIngredientAdded])
	require.NotZero(t, kinds[EventCuttingProgress])
	require.NotZero(t, kinds[EventObjectPickedUp])
	require.NotZero(t, kinds[EventObjectPlaced])
	require.NotEmpty(t, memory.OfType(loggingorders.EventDelivered))
}

func TestDeliveryWithoutMatchFails(t *testing.T) {
	h := newHarness(t, cheeseSandwichCatalog(t), testConfig(), nil)
	p1 := h.join("p1")
	h.step(0.1, command("p1", sim.CommandReady))
	h.stepUntil(0.6, 10, func() bool {
		plates, _ := p1.Counter("plates-1")
		return plates.Plates > 0
	})

	var failed []Event
	p1.Subscribe(func(e Event) {
		if e.Kind == EventOrderFailed {
			failed = append(failed, e)
		}
	})
	h.step(0.1, interact("p1", "plates-1"), command("p1", sim.CommandDeliver))
	require.Len(t, failed, 1)
	require.Equal(t, "p1", failed[0].Participant)
	require.Zero(t, p1.CompletedOrderCount())
	require.Equal(t, 1, h.authority.orders.Failed())
}

func TestDisconnectDestroysHeldObject(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	p2 := h.join("p2")
	h.step(0.1, command("p1", sim.CommandReady), command("p2", sim.CommandReady))
	h.stepUntil(0.6, 10, h.authority.match.IsPlaying)

	h.step(0.1, interact("p1", "container-tomato"))
	_, ok := p2.HeldObject("p1")
	require.True(t, ok)

	h.step(0.1, disconnect("p1"))
	require.Zero(t, h.authority.registry.Len())
	require.Empty(t, p2.Objects())
	h.assertConverged()
}

func TestMatchOverReportsResultOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Match.PlaySeconds = 1
	h := newHarness(t, nil, cfg, nil)
	p1 := h.join("p1")
	h.step(0.1, command("p1", sim.CommandReady))
	h.stepUntil(0.5, 20, h.authority.match.IsOver)
	h.step(0.5)

	require.Len(t, h.results, 1)
	require.Equal(t, "session-test", h.results[0].SessionID)
	require.Equal(t, []string{"p1"}, h.results[0].Participants)
	require.True(t, p1.IsGameOver())
	require.Equal(t, 1.0, p1.PlayTimeNormalized())
}

func TestLateJoinerConvergesFromKeyframe(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	h.step(0.1, command("p1", sim.CommandReady))
	h.stepUntil(0.6, 10, h.authority.match.IsPlaying)
	h.step(0.1, interact("p1", "container-bread"), interact("p1", "clear-2"))
	h.stepUntil(0.6, 10, func() bool { return len(h.authority.orders.Pending()) > 1 })

	late := h.join("p2")
	require.True(t, late.IsPlaying())
	held, ok := late.HeldObject("clear-2")
	require.True(t, ok)
	require.Equal(t, catalog.IngredientID("bread"), held.Definition)
	h.step(0.6)
	h.step(0.6)
	h.assertConverged()
}

func TestReplicaIgnoresStaleBatches(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	r := NewReplica("p1", cat, match.DefaultConfig(), nil)

	require.NoError(t, r.ApplyBatch(2, []sim.Patch{{Kind: sim.PatchParticipantJoined, EntityID: "p1"}}))
	require.NoError(t, r.ApplyBatch(2, []sim.Patch{{Kind: sim.PatchParticipantJoined, EntityID: "p9"}}))
	require.NoError(t, r.ApplyBatch(1, []sim.Patch{{Kind: sim.PatchParticipantJoined, EntityID: "p8"}}))
	require.Equal(t, []string{"p1"}, r.Participants())
	require.Equal(t, uint64(2), r.LastSequence())
}

func TestReplicaRejectsForeignCatalog(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	r := NewReplica("p1", cat, match.DefaultConfig(), nil)
	err = r.Restore(sim.Keyframe{CatalogFingerprint: "0000000000000000", MatchState: "waiting_to_start"})
	require.ErrorIs(t, err, catalog.ErrFingerprintMismatch)
}

func TestTeardownMakesReplicasTerminal(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	p1 := h.join("p1")
	var lost []Event
	p1.Subscribe(func(e Event) {
		if e.Kind == EventHostLost {
			lost = append(lost, e)
		}
	})

	require.NoError(t, h.authority.Teardown("shutdown"))
	require.ErrorIs(t, h.authority.Teardown("again"), ErrSessionClosed)
	h.step(0.1, command("p1", sim.CommandReady))

	require.True(t, p1.IsHostLost())
	require.Len(t, lost, 1)
	require.Equal(t, "shutdown", lost[0].Reason)
	require.ErrorIs(t, p1.RequestReady(), ErrHostLost)
	require.ErrorIs(t, p1.RequestInteract("clear-1"), ErrHostLost)
	require.ErrorIs(t, p1.ApplyBatch(99, nil), ErrHostLost)
	require.Equal(t, RejectSessionClosed, h.rejects[len(h.rejects)-1].reason)
}

func TestObserversFireOnUnchangedAggregateWrites(t *testing.T) {
	h := newHarness(t, nil, testConfig(), nil)
	h.join("p1")
	h.join("p2")

	count := func(patches []sim.Patch) int {
		n := 0
		for _, p := range patches {
			if p.Kind == sim.PatchGamePaused {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, count(h.step(0.1, command("p1", sim.CommandPause))))
	require.Equal(t, 1, count(h.step(0.1, command("p2", sim.CommandPause))), "value stays true but the write is still broadcast")
}

func TestFullOrderListSuppressesSpawnsUntilDelivery(t *testing.T) {
	h := newHarness(t, cheeseSandwichCatalog(t), testConfig(), nil)
	p1 := h.join("p1")
	h.step(0.1, command("p1", sim.CommandReady))
	h.stepUntil(0.6, 10, h.authority.match.IsPlaying)
	h.stepUntil(1, 10, func() bool { return len(p1.PendingOrders()) == 4 })
	require.Len(t, p1.PendingOrders(), 4)

	spawned := 0
	p1.Subscribe(func(e Event) {
		if e.Kind == EventOrderSpawned {
			spawned++
		}
	})
	for i := 0; i < 5; i++ {
		h.step(1)
	}
	require.Zero(t, spawned)
	require.Len(t, p1.PendingOrders(), 4)

	h.step(0.1,
		interact("p1", "container-cheese"),
		interact("p1", "cutting-1"),
		alternate("p1", "cutting-1"),
		alternate("p1", "cutting-1"),
		alternate("p1", "cutting-1"),
		interact("p1", "container-bread"),
		interact("p1", "clear-1"),
		interact("p1", "plates-1"),
		interact("p1", "clear-1"),
		interact("p1", "cutting-1"),
	)
	require.Empty(t, h.rejects)
	require.NoError(t, p1.RequestDeliver())
	h.step(0)
	require.Equal(t, 1, p1.CompletedOrderCount())
	require.Len(t, p1.PendingOrders(), 3)

	h.step(1)
	require.Equal(t, 1, spawned)
	require.Len(t, p1.PendingOrders(), 4)
	h.assertConverged()
}
