package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/journal"
	"github.com/ddm94/SlimyKitchenOnline/internal/kitchen"
	"github.com/ddm94/SlimyKitchenOnline/internal/match"
	"github.com/ddm94/SlimyKitchenOnline/internal/orders"
	"github.com/ddm94/SlimyKitchenOnline/internal/ownership"
	"github.com/ddm94/SlimyKitchenOnline/internal/readiness"
	"github.com/ddm94/SlimyKitchenOnline/internal/replicated"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
	"github.com/ddm94/SlimyKitchenOnline/logging"
	loggingkitchen "github.com/ddm94/SlimyKitchenOnline/logging/kitchen"
	logginglifecycle "github.com/ddm94/SlimyKitchenOnline/logging/lifecycle"
	loggingmatch "github.com/ddm94/SlimyKitchenOnline/logging/match"
)

// Hooks are invoked on the simulation goroutine.
type Hooks struct {
	// OnReject reports a command that was drained but not applied.
	OnReject func(cmd sim.Command, reason string)
	// OnMatchOver fires once, at the end of the step that reached GameOver.
	OnMatchOver func(Result)
}

// AuthorityConfig wires an Authority. Catalog is required.
type AuthorityConfig struct {
	SessionID string
	Catalog   *catalog.Catalog
	Session   Config
	Deps      sim.Deps
	Journal   *journal.Journal
	Publisher logging.Publisher
	Hooks     Hooks
}

type deferredTask struct {
	due uint64
	run func()
}

// Authority is the single writer of session state. It implements
// sim.EngineCore and is not safe for concurrent use: only the loop goroutine
// may call it while the loop runs.
type Authority struct {
	id        string
	cfg       Config
	catalog   *catalog.Catalog
	deps      sim.Deps
	logger    telemetry.Logger
	publisher logging.Publisher
	hooks     Hooks
	journal   *journal.Journal

	match     *match.Machine
	readiness *readiness.Readiness
	pause     *readiness.Pause
	orders    *orders.Engine
	registry  *ownership.Registry
	kitchen   *kitchen.Kitchen

	participants []string
	deferred     *queue.Queue
	steps        uint64
	tick         uint64
	elapsed      float64
	playSeconds  float64
	matchOver    bool
	closed       bool
}

func NewAuthority(cfg AuthorityConfig) (*Authority, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("session: catalog is required")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.New(0, 0)
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.Deps.Logger == nil {
		cfg.Deps.Logger = telemetry.Discard
	}
	if cfg.Deps.RNG == nil {
		cfg.Deps.RNG = sim.NewRNG(0, cfg.Deps.Clock)
	}

	a := &Authority{
		id:        cfg.SessionID,
		cfg:       cfg.Session,
		catalog:   cfg.Catalog,
		deps:      cfg.Deps,
		logger:    cfg.Deps.Logger,
		publisher: cfg.Publisher,
		hooks:     cfg.Hooks,
		journal:   cfg.Journal,
		match:     match.NewMachine(cfg.Session.Match, replicated.RoleAuthority),
		readiness: readiness.NewReadiness(),
		pause:     readiness.NewPause(replicated.RoleAuthority),
		orders:    orders.NewEngine(cfg.Catalog.Recipes(), cfg.Session.Orders, cfg.Deps.RNG),
		registry:  ownership.NewRegistry(),
		deferred:  queue.New(),
	}
	k, err := kitchen.New(a.registry, cfg.Catalog, cfg.Session.Kitchen, a)
	if err != nil {
		return nil, fmt.Errorf("session: build kitchen: %w", err)
	}
	a.kitchen = k
	a.observe()
	return a, nil
}

func (a *Authority) ID() string {
	return a.id
}

func (a *Authority) Catalog() *catalog.Catalog {
	return a.catalog
}

func (a *Authority) Deps() sim.Deps {
	return a.deps
}

// Participants lists the connected universe in join order.
func (a *Authority) Participants() []string {
	return slices.Clone(a.participants)
}

func (a *Authority) hasParticipant(id string) bool {
	return slices.Contains(a.participants, id)
}

// Apply consumes the commands drained for this tick in order. Rejections are
// reported through Hooks.OnReject; only internal failures are returned.
func (a *Authority) Apply(cmds []sim.Command) error {
	var errs []error
	for _, cmd := range cmds {
		reason, err := a.applyCommand(cmd)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", cmd.Type, cmd.ActorID, err))
		}
		if reason != "" {
			a.reject(cmd, reason)
		}
	}
	return errors.Join(errs...)
}

func (a *Authority) reject(cmd sim.Command, reason string) {
	if a.hooks.OnReject != nil {
		a.hooks.OnReject(cmd, reason)
	}
}

func (a *Authority) applyCommand(cmd sim.Command) (string, error) {
	if a.closed {
		return RejectSessionClosed, nil
	}
	if cmd.ActorID == "" {
		return RejectInvalidCommand, nil
	}
	switch cmd.Type {
	case sim.CommandConnect:
		return a.connect(cmd.ActorID)
	case sim.CommandDisconnect:
		reason := "disconnect"
		if cmd.Disconnect != nil && cmd.Disconnect.Reason != "" {
			reason = cmd.Disconnect.Reason
		}
		return a.disconnect(cmd.ActorID, reason)
	}

	if !a.hasParticipant(cmd.ActorID) {
		return RejectUnknownActor, nil
	}
	switch cmd.Type {
	case sim.CommandReady:
		return a.ready(cmd.ActorID)
	case sim.CommandPause:
		return "", a.signalPause(cmd.ActorID, true)
	case sim.CommandUnpause:
		return "", a.signalPause(cmd.ActorID, false)
	case sim.CommandInteract, sim.CommandInteractAlternate:
		if cmd.Interact == nil || cmd.Interact.Target == "" {
			return RejectInvalidCommand, nil
		}
		return a.interact(cmd)
	case sim.CommandDeliver:
		return a.interact(cmd)
	}
	return RejectInvalidCommand, nil
}

func (a *Authority) connect(id string) (string, error) {
	if a.hasParticipant(id) {
		return "", nil
	}
	if err := a.kitchen.AddPlayer(id); err != nil {
		return "", err
	}
	a.participants = append(a.participants, id)
	a.journal.AppendPatch(sim.Patch{Kind: sim.PatchParticipantJoined, EntityID: id})
	logginglifecycle.ParticipantJoined(
		context.Background(),
		a.publisher,
		a.tick,
		logging.Participant(id),
		logginglifecycle.ParticipantJoinedPayload{Participants: len(a.participants)},
		nil,
	)
	return "", nil
}

// disconnect removes id from the universe at once. The pause aggregate and
// the ready quorum are re-evaluated on the following tick.
func (a *Authority) disconnect(id, reason string) (string, error) {
	index := slices.Index(a.participants, id)
	if index < 0 {
		return RejectUnknownActor, nil
	}
	a.participants = slices.Delete(a.participants, index, index+1)
	dropped, err := a.kitchen.RemovePlayer(id)
	a.journal.AppendPatch(sim.Patch{Kind: sim.PatchParticipantLeft, EntityID: id})
	logginglifecycle.ParticipantLeft(
		context.Background(),
		a.publisher,
		a.tick,
		logging.Participant(id),
		logginglifecycle.ParticipantLeftPayload{
			Reason:        reason,
			Participants:  len(a.participants),
			DroppedObject: string(dropped),
		},
		nil,
	)
	a.defer1(a.reconcileDeparture)
	return "", err
}

// defer1 schedules fn for the step after the one currently being applied.
func (a *Authority) defer1(fn func()) {
	a.deferred.Add(deferredTask{due: a.steps + 2, run: fn})
}

func (a *Authority) runDeferred() {
	for a.deferred.Length() > 0 {
		task := a.deferred.Peek().(deferredTask)
		if task.due > a.steps {
			return
		}
		a.deferred.Remove()
		task.run()
	}
}

func (a *Authority) reconcileDeparture() {
	if err := a.pause.Recompute(a.participants); err != nil {
		a.logger.Printf("[session] recompute pause: %v", err)
	}
	if len(a.participants) > 0 && a.match.IsWaitingToStart() && a.readiness.Quorum(a.participants) {
		if _, err := a.match.StartCountdown(); err != nil {
			a.logger.Printf("[session] start countdown: %v", err)
		}
	}
}

func (a *Authority) ready(id string) (string, error) {
	if !a.match.IsWaitingToStart() {
		return RejectIneligible, nil
	}
	quorum := a.readiness.SetReady(id, a.participants)
	a.journal.AppendPatch(sim.Patch{Kind: sim.PatchReadiness, EntityID: id, Payload: sim.FlagPayload{Value: true}})
	loggingmatch.ReadySignaled(
		context.Background(),
		a.publisher,
		a.tick,
		logging.Participant(id),
		loggingmatch.ReadySignaledPayload{QuorumReached: quorum, Participants: len(a.participants)},
		nil,
	)
	if !quorum {
		return "", nil
	}
	_, err := a.match.StartCountdown()
	return "", err
}

func (a *Authority) signalPause(id string, paused bool) error {
	a.journal.AppendPatch(sim.Patch{Kind: sim.PatchPauseEntry, EntityID: id, Payload: sim.FlagPayload{Value: paused}})
	return a.pause.Signal(id, paused, a.participants)
}

func (a *Authority) interact(cmd sim.Command) (string, error) {
	if !a.match.IsPlaying() || a.pause.Paused() {
		return RejectIneligible, nil
	}
	var (
		target string
		err    error
	)
	switch cmd.Type {
	case sim.CommandInteract:
		target = cmd.Interact.Target
		err = a.kitchen.Interact(cmd.ActorID, target)
	case sim.CommandInteractAlternate:
		target = cmd.Interact.Target
		err = a.kitchen.InteractAlternate(cmd.ActorID, target)
	default:
		err = a.kitchen.Deliver(cmd.ActorID)
	}
	if err == nil {
		return "", nil
	}
	loggingkitchen.InteractionRejected(
		context.Background(),
		a.publisher,
		a.tick,
		logging.Participant(cmd.ActorID),
		loggingkitchen.InteractionRejectedPayload{Counter: target, Reason: err.Error()},
		nil,
	)
	switch {
	case errors.Is(err, kitchen.ErrUnknownCounter), errors.Is(err, kitchen.ErrUnknownPlayer):
		return RejectInvalidCommand, nil
	case errors.Is(err, kitchen.ErrIneligible),
		errors.Is(err, kitchen.ErrEmptyHands),
		errors.Is(err, kitchen.ErrNotPlate),
		errors.Is(err, ownership.ErrAlreadyOccupied):
		return RejectIneligible, nil
	}
	return RejectIneligible, err
}

// Deliver matches a handed-in plate against the pending orders. It is called
// by the kitchen from within an interaction.
func (a *Authority) Deliver(actor string, ingredients []catalog.IngredientID) {
	index, ok := a.orders.Match(ingredients)
	if !ok {
		a.orders.ApplyFailed(actor)
		return
	}
	if err := a.orders.ApplyDelivered(index, actor); err != nil {
		a.logger.Printf("[session] deliver order %d: %v", index, err)
	}
}

// Step advances timers by ctx.Delta. Nothing but deferred work runs while the
// game is paused.
func (a *Authority) Step(ctx sim.LoopTickContext) {
	a.steps++
	a.tick = ctx.Tick
	a.runDeferred()
	if a.closed || a.pause.Paused() {
		return
	}
	dt := ctx.Delta
	a.elapsed += dt
	if a.match.IsPlaying() {
		a.playSeconds += dt
	}
	if err := a.match.Tick(dt); err != nil {
		a.logger.Printf("[session] match tick: %v", err)
	}

	playing := a.match.IsPlaying()
	if index, ok := a.orders.Tick(dt, playing); ok {
		if err := a.orders.ApplySpawn(index, a.elapsed); err != nil {
			a.logger.Printf("[session] spawn order: %v", err)
		}
	}
	for _, index := range a.orders.Expired(a.elapsed) {
		if err := a.orders.ApplyExpired(index); err != nil {
			a.logger.Printf("[session] expire order: %v", err)
		}
	}
	a.kitchen.Tick(dt, playing)

	if a.matchOver {
		a.matchOver = false
		if a.hooks.OnMatchOver != nil {
			a.hooks.OnMatchOver(a.result())
		}
	}
}

func (a *Authority) result() Result {
	now := a.deps.Clock
	r := Result{
		SessionID:    a.id,
		Completed:    a.orders.Completed(),
		Failed:       a.orders.Failed(),
		Participants: a.Participants(),
		PlaySeconds:  a.playSeconds,
	}
	if now != nil {
		r.EndedAt = now.Now()
	} else {
		r.EndedAt = logging.SystemClock{}.Now()
	}
	return r
}

// DrainPatches returns the patches produced since the last drain.
func (a *Authority) DrainPatches() []sim.Patch {
	return a.journal.DrainPatches()
}

// Teardown closes the session. A host_lost patch is queued for the final
// broadcast and every later command is rejected with session_closed.
func (a *Authority) Teardown(reason string) error {
	if a.closed {
		return ErrSessionClosed
	}
	a.closed = true
	a.journal.AppendPatch(sim.Patch{Kind: sim.PatchHostLost, Payload: sim.HostLostPayload{Reason: reason}})
	logginglifecycle.SessionClosed(
		context.Background(),
		a.publisher,
		a.tick,
		logging.Session(a.id),
		logginglifecycle.SessionClosedPayload{Reason: reason},
		nil,
	)
	a.readiness.Set().Reset()
	a.pause.Entries().Reset()
	for a.deferred.Length() > 0 {
		a.deferred.Remove()
	}
	return nil
}

func (a *Authority) Closed() bool {
	return a.closed
}

var (
	_ sim.EngineCore    = (*Authority)(nil)
	_ kitchen.Deliverer = (*Authority)(nil)
)
