package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/match"
	"github.com/ddm94/SlimyKitchenOnline/internal/orders"
	"github.com/ddm94/SlimyKitchenOnline/internal/ownership"
	"github.com/ddm94/SlimyKitchenOnline/internal/readiness"
	"github.com/ddm94/SlimyKitchenOnline/internal/replicated"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
)

// Request is an intent a replica forwards to the authority.
type Request struct {
	Type   sim.CommandType
	Target string
}

// Sender carries replica requests to the authority.
type Sender interface {
	SendRequest(Request) error
}

type SenderFunc func(Request) error

func (f SenderFunc) SendRequest(req Request) error {
	if f == nil {
		return nil
	}
	return f(req)
}

// mirror is the replicated state of one replica. Restore swaps it wholesale.
type mirror struct {
	match        *match.Machine
	paused       *replicated.Value[bool]
	localReady   *replicated.Value[bool]
	localPause   *replicated.Value[bool]
	ready        *readiness.Set
	pauses       *readiness.Set
	orders       *orders.Engine
	registry     *ownership.Registry
	counters     map[string]*sim.CounterFrame
	counterOrder []string
	participants []string
}

func newMirror(cat *catalog.Catalog, cfg match.Config) *mirror {
	m := &mirror{
		match:      match.NewMachine(cfg, replicated.RoleReplica),
		paused:     replicated.New(replicated.RoleReplica, false),
		localReady: replicated.New(replicated.RoleReplica, false),
		localPause: replicated.New(replicated.RoleReplica, false),
		ready:      readiness.NewSet(),
		pauses:     readiness.NewSet(),
		orders:     orders.NewEngine(cat.Recipes(), orders.Config{}, nil),
		registry:   ownership.NewRegistry(),
		counters:   make(map[string]*sim.CounterFrame),
	}
	for _, def := range cat.Counters() {
		m.counters[def.ID] = &sim.CounterFrame{ID: def.ID, Kind: string(def.Kind)}
		m.counterOrder = append(m.counterOrder, def.ID)
		// Catalog validation guarantees unique counter ids.
		_ = m.registry.AddHolder(ownership.HolderID(def.ID), ownership.HolderCounter)
	}
	return m
}

type replicaObserver struct {
	id uint64
	fn func(Event)
}

// Replica mirrors the authority for the participant localID. It never
// mutates state on its own: requests go to the authority and the local view
// changes when the echo arrives.
type Replica struct {
	mu        sync.Mutex
	localID   string
	catalog   *catalog.Catalog
	matchCfg  match.Config
	sender    Sender
	state     *mirror
	lastSeq   uint64
	hostLost  bool
	pending   []Event
	observers []replicaObserver
	nextObsID uint64
}

// NewReplica builds an empty replica. It is normally initialised from a
// keyframe with Restore before patches are applied.
func NewReplica(localID string, cat *catalog.Catalog, cfg match.Config, sender Sender) *Replica {
	r := &Replica{
		localID:  localID,
		catalog:  cat,
		matchCfg: cfg,
		sender:   sender,
	}
	r.state = newMirror(cat, cfg)
	r.attach(r.state)
	return r
}

func (r *Replica) LocalID() string {
	return r.localID
}

// Subscribe registers fn for replica events. Events are delivered after the
// replica's lock is released, in the order they were produced.
func (r *Replica) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextObsID++
	id := r.nextObsID
	r.observers = append(r.observers, replicaObserver{id: id, fn: fn})
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.observers = slices.DeleteFunc(r.observers, func(o replicaObserver) bool { return o.id == id })
	}
}

func (r *Replica) emitLocked(event Event) {
	r.pending = append(r.pending, event)
}

// unlockAndDispatch releases r.mu and delivers queued events.
func (r *Replica) unlockAndDispatch() {
	events := r.pending
	r.pending = nil
	observers := slices.Clone(r.observers)
	r.mu.Unlock()
	for _, event := range events {
		for _, o := range observers {
			o.fn(event)
		}
	}
}

// attach subscribes the replica to the components of m.
func (r *Replica) attach(m *mirror) {
	m.match.StateValue().Subscribe(func(_, next match.State) {
		r.emitLocked(Event{Kind: EventMatchStateChanged, State: next})
	})
	m.paused.Subscribe(func(_, next bool) {
		r.emitLocked(Event{Kind: EventPauseStateChanged, Paused: next})
	})
	m.localPause.Subscribe(func(_, next bool) {
		r.emitLocked(Event{Kind: EventLocalPauseChanged, Participant: r.localID, Paused: next})
	})
	m.localReady.Subscribe(func(_, next bool) {
		r.emitLocked(Event{Kind: EventLocalReadyChanged, Participant: r.localID, Ready: next})
	})
	m.orders.Subscribe(func(e orders.Event) {
		switch e.Kind {
		case orders.EventSpawned:
			r.emitLocked(Event{Kind: EventOrderSpawned, OrderIndex: e.Index, Order: e.Order, Completed: e.Completed})
		case orders.EventDelivered:
			r.emitLocked(Event{Kind: EventOrderCompleted, OrderIndex: e.Index, Order: e.Order, Completed: e.Completed})
			r.emitLocked(Event{Kind: EventOrderSucceeded, Participant: e.Actor, OrderIndex: e.Index, Order: e.Order, Completed: e.Completed})
		case orders.EventFailed:
			r.emitLocked(Event{Kind: EventOrderFailed, Participant: e.Actor, OrderIndex: -1, Completed: e.Completed})
		case orders.EventExpired:
			r.emitLocked(Event{Kind: EventOrderExpired, OrderIndex: e.Index, Order: e.Order, Completed: e.Completed})
		}
	})
	m.registry.Subscribe(func(e ownership.Event) {
		switch e.Kind {
		case ownership.EventSpawned, ownership.EventAttached:
			h, ok := m.registry.Holder(e.To)
			if !ok {
				return
			}
			switch h.Kind {
			case ownership.HolderPlayer:
				r.emitLocked(Event{Kind: EventObjectPickedUp, Participant: string(e.To), Object: e.Object.ID, Holder: e.To, Ingredient: e.Object.Definition})
			case ownership.HolderCounter:
				if e.Kind == ownership.EventAttached {
					r.emitLocked(Event{Kind: EventObjectPlaced, Participant: string(e.From), Object: e.Object.ID, Holder: e.To, Ingredient: e.Object.Definition})
				}
			}
		case ownership.EventIngredientAdded:
			r.emitLocked(Event{Kind: EventIngredientAdded, Object: e.Object.ID, Holder: e.To, Ingredient: e.Ingredient})
		}
	})
}

// Restore replaces the replica state with frame. Patches with a sequence at
// or below the frame's are ignored afterwards.
func (r *Replica) Restore(frame sim.Keyframe) error {
	if frame.CatalogFingerprint != "" {
		if err := r.catalog.CheckFingerprint(frame.CatalogFingerprint); err != nil {
			return err
		}
	}
	cfg := r.matchCfg
	if frame.PlayMax > 0 {
		cfg.PlaySeconds = frame.PlayMax
	}
	m, err := buildMirror(r.catalog, cfg, r.localID, frame)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.hostLost {
		r.mu.Unlock()
		return ErrHostLost
	}
	r.attach(m)
	r.state = m
	r.lastSeq = frame.Sequence
	r.emitLocked(Event{Kind: EventMatchStateChanged, State: m.match.State()})
	r.emitLocked(Event{Kind: EventPauseStateChanged, Paused: m.paused.Get()})
	r.unlockAndDispatch()
	return nil
}

func buildMirror(cat *catalog.Catalog, cfg match.Config, localID string, frame sim.Keyframe) (*mirror, error) {
	m := newMirror(cat, cfg)
	state, err := match.ParseState(frame.MatchState)
	if err != nil {
		return nil, err
	}
	if err := m.match.StateValue().Apply(state); err != nil {
		return nil, err
	}
	if err := m.match.CountdownValue().Apply(frame.Countdown); err != nil {
		return nil, err
	}
	if err := m.match.PlayTimerValue().Apply(frame.PlayTimer); err != nil {
		return nil, err
	}
	if err := m.paused.Apply(frame.Paused); err != nil {
		return nil, err
	}
	m.participants = slices.Clone(frame.Participants)
	m.ready.Restore(frame.Ready)
	m.pauses.Restore(frame.PauseRequests)
	if err := m.localReady.Apply(frame.Ready[localID]); err != nil {
		return nil, err
	}
	if err := m.localPause.Apply(frame.PauseRequests[localID]); err != nil {
		return nil, err
	}

	indices := make([]int, len(frame.Orders))
	created := make([]float64, len(frame.Orders))
	for i, o := range frame.Orders {
		indices[i] = o.CatalogIndex
		created[i] = o.CreatedAt
	}
	if err := m.orders.Restore(indices, created, frame.Completed); err != nil {
		return nil, err
	}

	for _, h := range frame.Holders {
		if _, exists := m.registry.Holder(ownership.HolderID(h.ID)); exists {
			continue
		}
		kind, err := ownership.ParseHolderKind(h.Kind)
		if err != nil {
			return nil, err
		}
		if err := m.registry.AddHolder(ownership.HolderID(h.ID), kind); err != nil {
			return nil, err
		}
	}
	for _, obj := range frame.Objects {
		kind, err := ownership.ParseObjectKind(obj.Kind)
		if err != nil {
			return nil, err
		}
		if err := m.registry.SpawnWithID(ownership.ObjectID(obj.ID), catalog.IngredientID(obj.Definition), kind, ingredientIDs(obj.Accepts), ownership.HolderID(obj.Holder)); err != nil {
			return nil, fmt.Errorf("restore object %s: %w", obj.ID, err)
		}
		for _, ingredient := range obj.Ingredients {
			if !m.registry.TryAddIngredient(ownership.ObjectID(obj.ID), catalog.IngredientID(ingredient)) {
				return nil, fmt.Errorf("restore object %s: plate refused %s", obj.ID, ingredient)
			}
		}
	}
	for _, c := range frame.Counters {
		if existing, ok := m.counters[c.ID]; ok {
			*existing = c
		}
	}
	return m, nil
}

// Apply installs a single authority patch.
func (r *Replica) Apply(patch sim.Patch) error {
	r.mu.Lock()
	if r.hostLost {
		r.mu.Unlock()
		return ErrHostLost
	}
	err := r.applyLocked(patch)
	r.unlockAndDispatch()
	return err
}

// ApplyBatch installs the patches broadcast for one tick. Batches at or
// below the last applied sequence are ignored.
func (r *Replica) ApplyBatch(sequence uint64, patches []sim.Patch) error {
	r.mu.Lock()
	if r.hostLost {
		r.mu.Unlock()
		return ErrHostLost
	}
	if sequence != 0 && sequence <= r.lastSeq {
		r.mu.Unlock()
		return nil
	}
	var errs []error
	for _, patch := range patches {
		if err := r.applyLocked(patch); err != nil {
			errs = append(errs, err)
		}
	}
	if sequence != 0 {
		r.lastSeq = sequence
	}
	r.unlockAndDispatch()
	return errors.Join(errs...)
}

func payloadAs[T any](patch sim.Patch) (T, error) {
	switch v := patch.Payload.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("patch %s: unexpected payload %T", patch.Kind, patch.Payload)
}

func (r *Replica) applyLocked(patch sim.Patch) error {
	m := r.state
	switch patch.Kind {
	case sim.PatchMatchState:
		p, err := payloadAs[sim.MatchStatePayload](patch)
		if err != nil {
			return err
		}
		state, err := match.ParseState(p.State)
		if err != nil {
			return err
		}
		return m.match.StateValue().Apply(state)
	case sim.PatchCountdown, sim.PatchPlayTimer:
		p, err := payloadAs[sim.TimerPayload](patch)
		if err != nil {
			return err
		}
		if patch.Kind == sim.PatchCountdown {
			return m.match.CountdownValue().Apply(p.Remaining)
		}
		return m.match.PlayTimerValue().Apply(p.Remaining)
	case sim.PatchGamePaused:
		p, err := payloadAs[sim.FlagPayload](patch)
		if err != nil {
			return err
		}
		return m.paused.Apply(p.Value)
	case sim.PatchReadiness, sim.PatchPauseEntry:
		p, err := payloadAs[sim.FlagPayload](patch)
		if err != nil {
			return err
		}
		if patch.Kind == sim.PatchPauseEntry {
			m.pauses.Mark(patch.EntityID, p.Value)
			if patch.EntityID == r.localID {
				return m.localPause.Apply(p.Value)
			}
			return nil
		}
		m.ready.Mark(patch.EntityID, p.Value)
		r.emitLocked(Event{Kind: EventReadinessChanged, Participant: patch.EntityID, Ready: p.Value})
		if patch.EntityID == r.localID {
			return m.localReady.Apply(p.Value)
		}
		return nil
	case sim.PatchParticipantJoined:
		if slices.Contains(m.participants, patch.EntityID) {
			return nil
		}
		m.participants = append(m.participants, patch.EntityID)
		if err := m.registry.AddHolder(ownership.HolderID(patch.EntityID), ownership.HolderPlayer); err != nil {
			return err
		}
		r.emitLocked(Event{Kind: EventParticipantJoined, Participant: patch.EntityID})
		return nil
	case sim.PatchParticipantLeft:
		m.participants = slices.DeleteFunc(m.participants, func(id string) bool { return id == patch.EntityID })
		if _, err := m.registry.RemoveHolder(ownership.HolderID(patch.EntityID)); err != nil && !errors.Is(err, ownership.ErrUnknownHolder) {
			return err
		}
		r.emitLocked(Event{Kind: EventParticipantLeft, Participant: patch.EntityID})
		return nil
	case sim.PatchOrderSpawned:
		p, err := payloadAs[sim.OrderSpawnPayload](patch)
		if err != nil {
			return err
		}
		return m.orders.ApplySpawn(p.CatalogIndex, p.CreatedAt)
	case sim.PatchOrderDelivered, sim.PatchOrderFailed, sim.PatchOrderExpired:
		p, err := payloadAs[sim.OrderIndexPayload](patch)
		if err != nil {
			return err
		}
		switch patch.Kind {
		case sim.PatchOrderDelivered:
			return m.orders.ApplyDelivered(p.Index, patch.EntityID)
		case sim.PatchOrderFailed:
			m.orders.ApplyFailed(patch.EntityID)
			return nil
		default:
			return m.orders.ApplyExpired(p.Index)
		}
	case sim.PatchObjectSpawned:
		p, err := payloadAs[sim.ObjectSpawnPayload](patch)
		if err != nil {
			return err
		}
		kind, err := ownership.ParseObjectKind(p.Kind)
		if err != nil {
			return err
		}
		return m.registry.SpawnWithID(ownership.ObjectID(patch.EntityID), catalog.IngredientID(p.Definition), kind, ingredientIDs(p.Accepts), ownership.HolderID(p.Holder))
	case sim.PatchObjectAttached:
		p, err := payloadAs[sim.ObjectMovePayload](patch)
		if err != nil {
			return err
		}
		return m.registry.Attach(ownership.ObjectID(patch.EntityID), ownership.HolderID(p.To))
	case sim.PatchObjectDetached:
		return m.registry.Detach(ownership.ObjectID(patch.EntityID))
	case sim.PatchObjectDestroyed:
		return m.registry.Destroy(ownership.ObjectID(patch.EntityID))
	case sim.PatchPlateIngredient:
		p, err := payloadAs[sim.IngredientPayload](patch)
		if err != nil {
			return err
		}
		if !m.registry.TryAddIngredient(ownership.ObjectID(patch.EntityID), catalog.IngredientID(p.Ingredient)) {
			return fmt.Errorf("patch %s: plate %s refused %s", patch.Kind, patch.EntityID, p.Ingredient)
		}
		return nil
	case sim.PatchCuttingProgress, sim.PatchCounterTrashed, sim.PatchPlatesCount, sim.PatchContainerGrab:
		p, err := payloadAs[sim.CounterPayload](patch)
		if err != nil {
			return err
		}
		return r.applyCounterLocked(patch.Kind, patch.EntityID, p)
	case sim.PatchHostLost:
		reason := ""
		if p, err := payloadAs[sim.HostLostPayload](patch); err == nil {
			reason = p.Reason
		}
		r.markHostLostLocked(reason)
		return nil
	}
	return fmt.Errorf("patch %s: unknown kind", patch.Kind)
}

func (r *Replica) applyCounterLocked(kind sim.PatchKind, id string, p sim.CounterPayload) error {
	c, ok := r.state.counters[id]
	if !ok {
		return fmt.Errorf("patch %s: unknown counter %s", kind, id)
	}
	switch kind {
	case sim.PatchCuttingProgress:
		c.Progress = p.Progress
		c.ProgressMax = p.ProgressMax
		r.emitLocked(Event{
			Kind:        EventCuttingProgress,
			Participant: p.Actor,
			Holder:      ownership.HolderID(id),
			Ingredient:  catalog.IngredientID(p.Ingredient),
			Progress:    p.Progress,
			ProgressMax: p.ProgressMax,
		})
	case sim.PatchCounterTrashed:
		r.emitLocked(Event{Kind: EventObjectTrashed, Participant: p.Actor, Holder: ownership.HolderID(id), Ingredient: catalog.IngredientID(p.Ingredient)})
	case sim.PatchPlatesCount:
		c.Plates = p.Plates
	}
	return nil
}

// HostLost marks the authority as gone. The replica stops applying patches
// and every request fails with ErrHostLost.
func (r *Replica) HostLost(reason string) {
	r.mu.Lock()
	r.markHostLostLocked(reason)
	r.unlockAndDispatch()
}

func (r *Replica) markHostLostLocked(reason string) {
	if r.hostLost {
		return
	}
	r.hostLost = true
	r.emitLocked(Event{Kind: EventHostLost, Reason: reason})
}

func (r *Replica) send(req Request) error {
	r.mu.Lock()
	lost := r.hostLost
	r.mu.Unlock()
	if lost {
		return ErrHostLost
	}
	if r.sender == nil {
		return nil
	}
	return r.sender.SendRequest(req)
}

// RequestReady asks the authority to mark the local participant ready. It is
// ignored once the match has left WaitingToStart.
func (r *Replica) RequestReady() error {
	if r.IsHostLost() {
		return ErrHostLost
	}
	if !r.IsWaitingToStart() {
		return nil
	}
	return r.send(Request{Type: sim.CommandReady})
}

func (r *Replica) RequestPause() error {
	return r.send(Request{Type: sim.CommandPause})
}

func (r *Replica) RequestUnpause() error {
	return r.send(Request{Type: sim.CommandUnpause})
}

// TogglePause requests the opposite of the local pause flag last echoed by
// the authority.
func (r *Replica) TogglePause() error {
	if r.IsLocalPaused() {
		return r.RequestUnpause()
	}
	return r.RequestPause()
}

func (r *Replica) RequestInteract(target string) error {
	return r.send(Request{Type: sim.CommandInteract, Target: target})
}

func (r *Replica) RequestInteractAlternate(target string) error {
	return r.send(Request{Type: sim.CommandInteractAlternate, Target: target})
}

func (r *Replica) RequestDeliver() error {
	return r.send(Request{Type: sim.CommandDeliver})
}

func (r *Replica) read(fn func(m *mirror)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.state)
}

func (r *Replica) MatchState() (s match.State) {
	r.read(func(m *mirror) { s = m.match.State() })
	return s
}

func (r *Replica) IsPlaying() (ok bool) {
	r.read(func(m *mirror) { ok = m.match.IsPlaying() })
	return ok
}

func (r *Replica) IsWaitingToStart() (ok bool) {
	r.read(func(m *mirror) { ok = m.match.IsWaitingToStart() })
	return ok
}

func (r *Replica) IsCountdownActive() (ok bool) {
	r.read(func(m *mirror) { ok = m.match.IsCountdownActive() })
	return ok
}

func (r *Replica) IsGameOver() (ok bool) {
	r.read(func(m *mirror) { ok = m.match.IsOver() })
	return ok
}

func (r *Replica) CountdownRemaining() (v float64) {
	r.read(func(m *mirror) { v = m.match.CountdownRemaining() })
	return v
}

func (r *Replica) PlayTimeNormalized() (v float64) {
	r.read(func(m *mirror) { v = m.match.PlayTimeNormalized() })
	return v
}

func (r *Replica) IsLocalPlayerReady() (ok bool) {
	r.read(func(m *mirror) { ok = m.localReady.Get() })
	return ok
}

func (r *Replica) IsLocalPaused() (ok bool) {
	r.read(func(m *mirror) { ok = m.localPause.Get() })
	return ok
}

func (r *Replica) IsGamePaused() (ok bool) {
	r.read(func(m *mirror) { ok = m.paused.Get() })
	return ok
}

func (r *Replica) PendingOrders() (out []orders.PendingOrder) {
	r.read(func(m *mirror) { out = m.orders.Pending() })
	return out
}

func (r *Replica) CompletedOrderCount() (n int) {
	r.read(func(m *mirror) { n = m.orders.Completed() })
	return n
}

func (r *Replica) Participants() (out []string) {
	r.read(func(m *mirror) { out = slices.Clone(m.participants) })
	return out
}

// HeldObject returns what holder currently carries.
func (r *Replica) HeldObject(holder string) (view ownership.ObjectView, ok bool) {
	r.read(func(m *mirror) { view, ok = m.registry.HeldBy(ownership.HolderID(holder)) })
	return view, ok
}

// PlateIngredients lists a plate's ingredients in the order they were added.
func (r *Replica) PlateIngredients(object string) (out []catalog.IngredientID) {
	r.read(func(m *mirror) {
		if view, ok := m.registry.Object(ownership.ObjectID(object)); ok {
			out = view.Ingredients
		}
	})
	return out
}

// Counters lists station state in layout order.
func (r *Replica) Counters() (out []sim.CounterFrame) {
	r.read(func(m *mirror) {
		for _, id := range m.counterOrder {
			out = append(out, *m.counters[id])
		}
	})
	return out
}

// Counter returns the station state of a counter.
func (r *Replica) Counter(id string) (frame sim.CounterFrame, ok bool) {
	r.read(func(m *mirror) {
		if c, exists := m.counters[id]; exists {
			frame, ok = *c, true
		}
	})
	return frame, ok
}

func (r *Replica) IsHostLost() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostLost
}

func (r *Replica) LastSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

// Objects lists the mirrored kitchen objects in spawn order.
func (r *Replica) Objects() (out []ownership.ObjectView) {
	r.read(func(m *mirror) { out = m.registry.Objects() })
	return out
}
