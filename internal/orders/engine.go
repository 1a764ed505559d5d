// Package orders keeps the list of pending dish orders. The authority decides
// when an order spawns and which recipe it uses; every side then applies the
// same catalog index so pending lists stay identical.
package orders

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
)

var ErrIndexOutOfRange = errors.New("orders: index out of range")

type Config struct {
	// Capacity caps the number of pending orders.
	Capacity int
	// SpawnInterval is the number of seconds between spawn attempts.
	SpawnInterval float64
	// ExpirySeconds removes pending orders older than this. Zero disables
	// expiry.
	ExpirySeconds float64
}

func DefaultConfig() Config {
	return Config{Capacity: 4, SpawnInterval: 4}
}

// PendingOrder is one outstanding order.
type PendingOrder struct {
	CatalogIndex int
	Recipe       catalog.Recipe
	CreatedAt    float64
}

type EventKind int

const (
	EventSpawned EventKind = iota
	EventDelivered
	EventFailed
	EventExpired
)

func (k EventKind) String() string {
	switch k {
	case EventSpawned:
		return "spawned"
	case EventDelivered:
		return "delivered"
	case EventFailed:
		return "failed"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event reports a change to the pending list. Index is the order's position
// before removal for delivered and expired orders, and after insertion for
// spawned ones. Failed deliveries carry no order.
type Event struct {
	Kind      EventKind
	Index     int
	Order     PendingOrder
	Actor     string
	Completed int
}

type Engine struct {
	recipes    []catalog.Recipe
	cfg        Config
	rng        *rand.Rand
	pending    []PendingOrder
	completed  int
	failed     int
	spawnTimer float64
	observers  []func(Event)
}

// NewEngine builds an engine over recipes. rng is only consulted by Tick, so
// replicas may pass nil.
func NewEngine(recipes []catalog.Recipe, cfg Config, rng *rand.Rand) *Engine {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.SpawnInterval <= 0 {
		cfg.SpawnInterval = DefaultConfig().SpawnInterval
	}
	return &Engine{
		recipes:    recipes,
		cfg:        cfg,
		rng:        rng,
		spawnTimer: cfg.SpawnInterval,
	}
}

func (e *Engine) Subscribe(fn func(Event)) {
	if fn != nil {
		e.observers = append(e.observers, fn)
	}
}

func (e *Engine) emit(event Event) {
	for _, fn := range e.observers {
		fn(event)
	}
}

// Tick counts the spawn timer down. When it runs out the timer resets and,
// if the match is playing and there is room, a recipe index is chosen. The
// caller applies the index with ApplySpawn and broadcasts it.
func (e *Engine) Tick(dt float64, playing bool) (int, bool) {
	e.spawnTimer -= dt
	if e.spawnTimer > 0 {
		return 0, false
	}
	e.spawnTimer = e.cfg.SpawnInterval
	if !playing || len(e.recipes) == 0 || len(e.pending) >= e.cfg.Capacity || e.rng == nil {
		return 0, false
	}
	return e.rng.IntN(len(e.recipes)), true
}

// ApplySpawn appends the recipe at catalogIndex to the pending list.
func (e *Engine) ApplySpawn(catalogIndex int, createdAt float64) error {
	if catalogIndex < 0 || catalogIndex >= len(e.recipes) {
		return fmt.Errorf("%w: recipe %d of %d", catalog.ErrUnknownRecipe, catalogIndex, len(e.recipes))
	}
	order := PendingOrder{CatalogIndex: catalogIndex, Recipe: e.recipes[catalogIndex], CreatedAt: createdAt}
	e.pending = append(e.pending, order)
	e.emit(Event{Kind: EventSpawned, Index: len(e.pending) - 1, Order: order, Completed: e.completed})
	return nil
}

// Match returns the lowest pending index whose recipe has exactly the given
// ingredient set.
func (e *Engine) Match(ingredients []catalog.IngredientID) (int, bool) {
	for i, order := range e.pending {
		if sameSet(order.Recipe.Ingredients, ingredients) {
			return i, true
		}
	}
	return 0, false
}

// ApplyDelivered removes the order at index and counts it as completed.
func (e *Engine) ApplyDelivered(index int, actor string) error {
	order, err := e.remove(index)
	if err != nil {
		return err
	}
	e.completed++
	e.emit(Event{Kind: EventDelivered, Index: index, Order: order, Actor: actor, Completed: e.completed})
	return nil
}

// ApplyFailed records a delivery that matched nothing.
func (e *Engine) ApplyFailed(actor string) {
	e.failed++
	e.emit(Event{Kind: EventFailed, Index: -1, Actor: actor, Completed: e.completed})
}

// Expired lists indices of orders older than the expiry window, highest
// first so they can be removed in order.
func (e *Engine) Expired(now float64) []int {
	if e.cfg.ExpirySeconds <= 0 {
		return nil
	}
	var out []int
	for i := len(e.pending) - 1; i >= 0; i-- {
		if now-e.pending[i].CreatedAt >= e.cfg.ExpirySeconds {
			out = append(out, i)
		}
	}
	return out
}

// ApplyExpired drops the order at index without crediting it.
func (e *Engine) ApplyExpired(index int) error {
	order, err := e.remove(index)
	if err != nil {
		return err
	}
	e.emit(Event{Kind: EventExpired, Index: index, Order: order, Completed: e.completed})
	return nil
}

func (e *Engine) remove(index int) (PendingOrder, error) {
	if index < 0 || index >= len(e.pending) {
		return PendingOrder{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(e.pending))
	}
	order := e.pending[index]
	e.pending = append(e.pending[:index], e.pending[index+1:]...)
	return order, nil
}

// Pending returns a copy of the pending list.
func (e *Engine) Pending() []PendingOrder {
	out := make([]PendingOrder, len(e.pending))
	copy(out, e.pending)
	return out
}

func (e *Engine) Completed() int {
	return e.completed
}

func (e *Engine) Failed() int {
	return e.failed
}

func (e *Engine) Capacity() int {
	return e.cfg.Capacity
}

// Restore replaces the pending list and counters without emitting events.
// Replicas use it when installing a keyframe.
func (e *Engine) Restore(indices []int, createdAt []float64, completed int) error {
	if len(indices) != len(createdAt) {
		return fmt.Errorf("orders: restore got %d indices and %d timestamps", len(indices), len(createdAt))
	}
	pending := make([]PendingOrder, 0, len(indices))
	for i, index := range indices {
		if index < 0 || index >= len(e.recipes) {
			return fmt.Errorf("%w: recipe %d of %d", catalog.ErrUnknownRecipe, index, len(e.recipes))
		}
		pending = append(pending, PendingOrder{CatalogIndex: index, Recipe: e.recipes[index], CreatedAt: createdAt[i]})
	}
	e.pending = pending
	e.completed = completed
	return nil
}

func sameSet(recipe, delivered []catalog.IngredientID) bool {
	if len(recipe) != len(delivered) {
		return false
	}
	want := make(map[catalog.IngredientID]struct{}, len(recipe))
	for _, id := range recipe {
		want[id] = struct{}{}
	}
	for _, id := range delivered {
		if _, ok := want[id]; !ok {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}
