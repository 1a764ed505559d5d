// Package kitchen implements the counters players interact with. It turns an
// interaction into ownership registry mutations and emits counter events for
// the things the registry cannot express, like cutting progress.
package kitchen

import (
	"errors"
	"fmt"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/ownership"
)

var (
	ErrUnknownCounter = errors.New("kitchen: unknown counter")
	ErrUnknownPlayer  = errors.New("kitchen: unknown player")
	ErrEmptyHands     = errors.New("kitchen: player holds nothing")
	ErrNotPlate       = errors.New("kitchen: only plates can be delivered")
	// ErrIneligible marks an interaction that was valid to ask for but had
	// nothing to do, such as grabbing from an empty plates counter.
	ErrIneligible = errors.New("kitchen: interaction not applicable")
)

// Deliverer receives the ingredient set of every plate handed in.
type Deliverer interface {
	Deliver(actor string, ingredients []catalog.IngredientID)
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(actor string, ingredients []catalog.IngredientID)

func (f DelivererFunc) Deliver(actor string, ingredients []catalog.IngredientID) {
	if f != nil {
		f(actor, ingredients)
	}
}

// Config sizes the plates counter. Non-positive values fall back to
// DefaultConfig.
type Config struct {
	PlateSpawnSeconds float64
	MaxPlates         int
}

func DefaultConfig() Config {
	return Config{PlateSpawnSeconds: 4, MaxPlates: 4}
}

type EventKind int

const (
	EventContainerGrab EventKind = iota
	EventCuttingProgress
	EventCutCompleted
	EventTrashed
	EventPlatesChanged
	EventDelivered
)

func (k EventKind) String() string {
	switch k {
	case EventContainerGrab:
		return "container_grab"
	case EventCuttingProgress:
		return "cutting_progress"
	case EventCutCompleted:
		return "cut_completed"
	case EventTrashed:
		return "trashed"
	case EventPlatesChanged:
		return "plates_changed"
	case EventDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind        EventKind
	Counter     ownership.HolderID
	Actor       string
	Ingredient  catalog.IngredientID
	Progress    int
	ProgressMax int
	Plates      int
}

type counter struct {
	def         catalog.CounterDefinition
	progress    int
	progressMax int
	plates      int
	plateTimer  float64
}

// CounterView is a detached copy of a counter's station state.
type CounterView struct {
	ID          ownership.HolderID
	Kind        catalog.CounterKind
	Ingredient  catalog.IngredientID
	Progress    int
	ProgressMax int
	Plates      int
}

type Kitchen struct {
	cfg       Config
	registry  *ownership.Registry
	catalog   *catalog.Catalog
	deliverer Deliverer
	counters  map[ownership.HolderID]*counter
	order     []ownership.HolderID
	observers []func(Event)
}

// New registers every counter of the catalog layout as a holder in registry.
func New(registry *ownership.Registry, cat *catalog.Catalog, cfg Config, deliverer Deliverer) (*Kitchen, error) {
	if cfg.PlateSpawnSeconds <= 0 {
		cfg.PlateSpawnSeconds = DefaultConfig().PlateSpawnSeconds
	}
	if cfg.MaxPlates <= 0 {
		cfg.MaxPlates = DefaultConfig().MaxPlates
	}
	k := &Kitchen{
		cfg:       cfg,
		registry:  registry,
		catalog:   cat,
		deliverer: deliverer,
		counters:  make(map[ownership.HolderID]*counter),
	}
	for _, def := range cat.Counters() {
		id := ownership.HolderID(def.ID)
		if err := registry.AddHolder(id, ownership.HolderCounter); err != nil {
			return nil, fmt.Errorf("register counter %s: %w", def.ID, err)
		}
		k.counters[id] = &counter{def: def}
		k.order = append(k.order, id)
	}
	return k, nil
}

func (k *Kitchen) Subscribe(fn func(Event)) {
	if fn != nil {
		k.observers = append(k.observers, fn)
	}
}

func (k *Kitchen) emit(event Event) {
	for _, fn := range k.observers {
		fn(event)
	}
}

// AddPlayer registers a participant as an empty-handed holder.
func (k *Kitchen) AddPlayer(id string) error {
	return k.registry.AddHolder(ownership.HolderID(id), ownership.HolderPlayer)
}

// RemovePlayer destroys whatever the participant carries and unregisters it.
func (k *Kitchen) RemovePlayer(id string) (ownership.ObjectID, error) {
	return k.registry.RemoveHolder(ownership.HolderID(id))
}

func (k *Kitchen) player(actor string) (ownership.HolderID, error) {
	id := ownership.HolderID(actor)
	h, ok := k.registry.Holder(id)
	if !ok || h.Kind != ownership.HolderPlayer {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlayer, actor)
	}
	return id, nil
}

func (k *Kitchen) counter(target string) (*counter, ownership.HolderID, error) {
	id := ownership.HolderID(target)
	c, ok := k.counters[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownCounter, target)
	}
	return c, id, nil
}

func ineligible(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIneligible, fmt.Sprintf(format, args...))
}

// Interact performs the primary interaction of actor with target.
func (k *Kitchen) Interact(actor, target string) error {
	playerID, err := k.player(actor)
	if err != nil {
		return err
	}
	c, counterID, err := k.counter(target)
	if err != nil {
		return err
	}
	switch c.def.Kind {
	case catalog.CounterClear:
		return k.interactClear(playerID, counterID)
	case catalog.CounterContainer:
		return k.interactContainer(playerID, counterID, c)
	case catalog.CounterCutting:
		return k.interactCutting(playerID, counterID, c)
	case catalog.CounterTrash:
		return k.interactTrash(playerID, counterID)
	case catalog.CounterDelivery:
		return k.deliver(playerID)
	case catalog.CounterPlates:
		return k.interactPlates(playerID, counterID, c)
	}
	return ineligible("counter kind %s", c.def.Kind)
}

// InteractAlternate performs the secondary interaction, which only cutting
// counters respond to.
func (k *Kitchen) InteractAlternate(actor, target string) error {
	if _, err := k.player(actor); err != nil {
		return err
	}
	c, counterID, err := k.counter(target)
	if err != nil {
		return err
	}
	if c.def.Kind != catalog.CounterCutting {
		return ineligible("%s has no alternate interaction", target)
	}
	held, ok := k.registry.HeldBy(counterID)
	if !ok {
		return ineligible("%s is empty", target)
	}
	rule, ok := k.catalog.Cutting(held.Definition)
	if !ok {
		return ineligible("%s cannot be cut", held.Definition)
	}
	c.progress++
	c.progressMax = rule.ProgressMax
	k.emit(Event{Kind: EventCuttingProgress, Counter: counterID, Actor: actor, Ingredient: held.Definition, Progress: c.progress, ProgressMax: rule.ProgressMax})
	if c.progress < rule.ProgressMax {
		return nil
	}
	if err := k.registry.Destroy(held.ID); err != nil {
		return err
	}
	if _, err := k.registry.Spawn(rule.Output, ownership.KindIngredient, nil, counterID); err != nil {
		return err
	}
	c.progress = 0
	k.emit(Event{Kind: EventCutCompleted, Counter: counterID, Actor: actor, Ingredient: rule.Output, ProgressMax: rule.ProgressMax})
	return nil
}

// Deliver hands the actor's plate in without walking to a delivery counter.
func (k *Kitchen) Deliver(actor string) error {
	playerID, err := k.player(actor)
	if err != nil {
		return err
	}
	return k.deliver(playerID)
}

func (k *Kitchen) deliver(playerID ownership.HolderID) error {
	held, ok := k.registry.HeldBy(playerID)
	if !ok {
		return ErrEmptyHands
	}
	if held.Kind != ownership.KindPlate {
		return fmt.Errorf("%w: holding %s", ErrNotPlate, held.Definition)
	}
	if k.deliverer != nil {
		k.deliverer.Deliver(string(playerID), held.Ingredients)
	}
	if err := k.registry.Destroy(held.ID); err != nil {
		return err
	}
	k.emit(Event{Kind: EventDelivered, Actor: string(playerID)})
	return nil
}

// combine moves the ingredient held by one side onto the plate held by the
// other. It reports false when neither side holds a plate that accepts the
// ingredient.
func (k *Kitchen) combine(a, b ownership.ObjectView) bool {
	plate, ingredient := a, b
	if plate.Kind != ownership.KindPlate {
		plate, ingredient = b, a
	}
	if plate.Kind != ownership.KindPlate || ingredient.Kind == ownership.KindPlate {
		return false
	}
	if !k.registry.TryAddIngredient(plate.ID, ingredient.Definition) {
		return false
	}
	return k.registry.Destroy(ingredient.ID) == nil
}

func (k *Kitchen) interactClear(playerID, counterID ownership.HolderID) error {
	onCounter, counterFull := k.registry.HeldBy(counterID)
	inHand, handsFull := k.registry.HeldBy(playerID)
	switch {
	case !counterFull && handsFull:
		return k.registry.Transfer(inHand.ID, playerID, counterID)
	case counterFull && !handsFull:
		return k.registry.Transfer(onCounter.ID, counterID, playerID)
	case counterFull && handsFull:
		if k.combine(inHand, onCounter) {
			return nil
		}
		return ineligible("cannot combine %s with %s", inHand.Definition, onCounter.Definition)
	}
	return ineligible("nothing to move")
}

func (k *Kitchen) interactContainer(playerID, counterID ownership.HolderID, c *counter) error {
	if _, full := k.registry.HeldBy(playerID); full {
		return ineligible("hands full")
	}
	if _, err := k.registry.Spawn(c.def.Ingredient, ownership.KindIngredient, nil, playerID); err != nil {
		return err
	}
	k.emit(Event{Kind: EventContainerGrab, Counter: counterID, Actor: string(playerID), Ingredient: c.def.Ingredient})
	return nil
}

func (k *Kitchen) interactCutting(playerID, counterID ownership.HolderID, c *counter) error {
	onCounter, counterFull := k.registry.HeldBy(counterID)
	inHand, handsFull := k.registry.HeldBy(playerID)
	switch {
	case !counterFull && handsFull:
		rule, ok := k.catalog.Cutting(inHand.Definition)
		if !ok {
			return ineligible("%s cannot be cut", inHand.Definition)
		}
		if err := k.registry.Transfer(inHand.ID, playerID, counterID); err != nil {
			return err
		}
		c.progress = 0
		c.progressMax = rule.ProgressMax
		k.emit(Event{Kind: EventCuttingProgress, Counter: counterID, Actor: string(playerID), Ingredient: inHand.Definition, ProgressMax: rule.ProgressMax})
		return nil
	case counterFull && !handsFull:
		if err := k.registry.Transfer(onCounter.ID, counterID, playerID); err != nil {
			return err
		}
		c.progress = 0
		k.emit(Event{Kind: EventCuttingProgress, Counter: counterID, Actor: string(playerID), ProgressMax: c.progressMax})
		return nil
	case counterFull && handsFull:
		if inHand.Kind == ownership.KindPlate && k.combine(inHand, onCounter) {
			c.progress = 0
			k.emit(Event{Kind: EventCuttingProgress, Counter: counterID, Actor: string(playerID), ProgressMax: c.progressMax})
			return nil
		}
		return ineligible("cannot combine %s with %s", inHand.Definition, onCounter.Definition)
	}
	return ineligible("nothing to move")
}

func (k *Kitchen) interactTrash(playerID, counterID ownership.HolderID) error {
	inHand, ok := k.registry.HeldBy(playerID)
	if !ok {
		return ErrEmptyHands
	}
	if err := k.registry.Destroy(inHand.ID); err != nil {
		return err
	}
	k.emit(Event{Kind: EventTrashed, Counter: counterID, Actor: string(playerID), Ingredient: inHand.Definition})
	return nil
}

func (k *Kitchen) interactPlates(playerID, counterID ownership.HolderID, c *counter) error {
	if _, full := k.registry.HeldBy(playerID); full {
		return ineligible("hands full")
	}
	if c.plates == 0 {
		return ineligible("%s is empty", counterID)
	}
	plate := k.catalog.Plate()
	if _, err := k.registry.Spawn(plate.ID, ownership.KindPlate, plate.Accepts, playerID); err != nil {
		return err
	}
	c.plates--
	k.emit(Event{Kind: EventPlatesChanged, Counter: counterID, Actor: string(playerID), Plates: c.plates})
	return nil
}

// Tick stocks plate counters while the match is playing.
func (k *Kitchen) Tick(dt float64, playing bool) {
	for _, id := range k.order {
		c := k.counters[id]
		if c.def.Kind != catalog.CounterPlates {
			continue
		}
		c.plateTimer += dt
		if c.plateTimer <= k.cfg.PlateSpawnSeconds {
			continue
		}
		c.plateTimer = 0
		if playing && c.plates < k.cfg.MaxPlates {
			c.plates++
			k.emit(Event{Kind: EventPlatesChanged, Counter: id, Plates: c.plates})
		}
	}
}

// Counters lists station state in layout order.
func (k *Kitchen) Counters() []CounterView {
	out := make([]CounterView, 0, len(k.order))
	for _, id := range k.order {
		c := k.counters[id]
		out = append(out, CounterView{
			ID:          id,
			Kind:        c.def.Kind,
			Ingredient:  c.def.Ingredient,
			Progress:    c.progress,
			ProgressMax: c.progressMax,
			Plates:      c.plates,
		})
	}
	return out
}
