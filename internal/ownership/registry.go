// Package ownership tracks which holder owns which kitchen object. Every
// object has at most one holder, every holder at most one object, and the two
// directions always agree.
package ownership

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
)

var (
	ErrAlreadyOccupied = errors.New("ownership: holder already occupied")
	ErrUnknownObject   = errors.New("ownership: unknown object")
	ErrUnknownHolder   = errors.New("ownership: unknown holder")
	ErrNotHolder       = errors.New("ownership: object not held by source")
	ErrDuplicateObject = errors.New("ownership: object id already in use")
	ErrDuplicateHolder = errors.New("ownership: holder id already registered")
	ErrNotPlate        = errors.New("ownership: object is not a plate")
)

type EventKind int

const (
	EventSpawned EventKind = iota
	EventAttached
	EventDetached
	EventDestroyed
	EventIngredientAdded
)

func (k EventKind) String() string {
	switch k {
	case EventSpawned:
		return "spawned"
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	case EventDestroyed:
		return "destroyed"
	case EventIngredientAdded:
		return "ingredient_added"
	default:
		return "unknown"
	}
}

// Event describes one registry mutation. From is the previous holder (empty
// when the object was detached), To the new one.
type Event struct {
	Kind       EventKind
	Object     ObjectView
	From       HolderID
	To         HolderID
	Ingredient catalog.IngredientID
}

// Registry is not safe for concurrent use. The authority drives it from the
// simulation goroutine and each replica from its own apply path.
type Registry struct {
	holders   map[HolderID]*holder
	objects   map[ObjectID]*object
	nextID    uint64
	seq       uint64
	observers []func(Event)
}

func NewRegistry() *Registry {
	return &Registry{
		holders: make(map[HolderID]*holder),
		objects: make(map[ObjectID]*object),
	}
}

// Subscribe registers fn for every subsequent event.
func (r *Registry) Subscribe(fn func(Event)) {
	if fn != nil {
		r.observers = append(r.observers, fn)
	}
}

func (r *Registry) emit(event Event) {
	for _, fn := range r.observers {
		fn(event)
	}
}

// AddHolder registers an empty holder. Ids are unique across counters and
// players; a repeated id fails with ErrDuplicateHolder.
func (r *Registry) AddHolder(id HolderID, kind HolderKind) error {
	if _, exists := r.holders[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHolder, id)
	}
	r.seq++
	r.holders[id] = &holder{id: id, kind: kind, seq: r.seq}
	return nil
}

// RemoveHolder destroys whatever the holder carries and forgets it. The id of
// the destroyed object is returned, or "" when the holder was empty.
func (r *Registry) RemoveHolder(id HolderID) (ObjectID, error) {
	h, ok := r.holders[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownHolder, id)
	}
	dropped := h.current
	if dropped != "" {
		if err := r.Destroy(dropped); err != nil {
			return "", err
		}
	}
	delete(r.holders, id)
	return dropped, nil
}

func (r *Registry) Holder(id HolderID) (HolderView, bool) {
	h, ok := r.holders[id]
	if !ok {
		return HolderView{}, false
	}
	return HolderView{ID: h.id, Kind: h.kind, Current: h.current}, true
}

// Holders lists holders in registration order.
func (r *Registry) Holders() []HolderView {
	list := make([]*holder, 0, len(r.holders))
	for _, h := range r.holders {
		list = append(list, h)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]HolderView, len(list))
	for i, h := range list {
		out[i] = HolderView{ID: h.id, Kind: h.kind, Current: h.current}
	}
	return out
}

// Spawn creates an object directly inside holder. accepts is only read for
// plates.
func (r *Registry) Spawn(definition catalog.IngredientID, kind ObjectKind, accepts []catalog.IngredientID, holder HolderID) (ObjectID, error) {
	r.nextID++
	id := ObjectID("obj-" + strconv.FormatUint(r.nextID, 10))
	if err := r.SpawnWithID(id, definition, kind, accepts, holder); err != nil {
		r.nextID--
		return "", err
	}
	return id, nil
}

// SpawnWithID creates an object under an id chosen elsewhere, which is how
// replicas mirror authority spawns.
func (r *Registry) SpawnWithID(id ObjectID, definition catalog.IngredientID, kind ObjectKind, accepts []catalog.IngredientID, holderID HolderID) error {
	if _, exists := r.objects[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateObject, id)
	}
	h, ok := r.holders[holderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolder, holderID)
	}
	if h.current != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyOccupied, holderID)
	}
	r.seq++
	obj := &object{id: id, seq: r.seq, definition: definition, kind: kind, holder: holderID}
	if kind == KindPlate {
		obj.plate = &plateState{
			accepts:     make(map[catalog.IngredientID]struct{}, len(accepts)),
			acceptOrder: append([]catalog.IngredientID(nil), accepts...),
		}
		for _, id := range accepts {
			obj.plate.accepts[id] = struct{}{}
		}
	}
	r.objects[id] = obj
	h.current = id
	r.emit(Event{Kind: EventSpawned, Object: obj.view(), To: holderID})
	return nil
}

// Attach moves obj into dest, detaching it from its current holder first.
// Nothing changes when dest is occupied.
func (r *Registry) Attach(id ObjectID, dest HolderID) error {
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	h, ok := r.holders[dest]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolder, dest)
	}
	if h.current == id {
		return nil
	}
	if h.current != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyOccupied, dest)
	}
	from := obj.holder
	if from != "" {
		if prev, ok := r.holders[from]; ok {
			prev.current = ""
		}
	}
	obj.holder = dest
	h.current = id
	r.emit(Event{Kind: EventAttached, Object: obj.view(), From: from, To: dest})
	return nil
}

// Detach clears both directions of obj's ownership. Detaching a loose object
// is a no-op.
func (r *Registry) Detach(id ObjectID) error {
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	from := obj.holder
	if from == "" {
		return nil
	}
	if h, ok := r.holders[from]; ok {
		h.current = ""
	}
	obj.holder = ""
	r.emit(Event{Kind: EventDetached, Object: obj.view(), From: from})
	return nil
}

// Transfer moves obj from one holder to another. The destination is checked
// before anything is detached so a refused transfer leaves obj where it was.
func (r *Registry) Transfer(id ObjectID, from, to HolderID) error {
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	if obj.holder != from {
		return fmt.Errorf("%w: %s is held by %q, not %q", ErrNotHolder, id, obj.holder, from)
	}
	dest, ok := r.holders[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHolder, to)
	}
	if dest.current != "" && dest.current != id {
		return fmt.Errorf("%w: %s", ErrAlreadyOccupied, to)
	}
	return r.Attach(id, to)
}

// Destroy removes obj from the registry after detaching it.
func (r *Registry) Destroy(id ObjectID) error {
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	from := obj.holder
	if from != "" {
		if h, ok := r.holders[from]; ok {
			h.current = ""
		}
	}
	obj.holder = ""
	delete(r.objects, id)
	view := obj.view()
	view.Holder = from
	r.emit(Event{Kind: EventDestroyed, Object: view, From: from})
	return nil
}

// TryAddIngredient adds ingredient to a plate. It reports false when obj is
// not a plate, the plate does not accept the ingredient, or already has it.
func (r *Registry) TryAddIngredient(id ObjectID, ingredient catalog.IngredientID) bool {
	obj, ok := r.objects[id]
	if !ok || obj.plate == nil {
		return false
	}
	if _, accepted := obj.plate.accepts[ingredient]; !accepted {
		return false
	}
	if obj.plate.has(ingredient) {
		return false
	}
	obj.plate.ingredients = append(obj.plate.ingredients, ingredient)
	r.emit(Event{Kind: EventIngredientAdded, Object: obj.view(), To: obj.holder, Ingredient: ingredient})
	return true
}

// Accepts reports whether plate obj would take ingredient right now.
func (r *Registry) Accepts(id ObjectID, ingredient catalog.IngredientID) bool {
	obj, ok := r.objects[id]
	if !ok || obj.plate == nil {
		return false
	}
	_, accepted := obj.plate.accepts[ingredient]
	return accepted && !obj.plate.has(ingredient)
}

// Object returns a detached view of a live object.
func (r *Registry) Object(id ObjectID) (ObjectView, bool) {
	obj, ok := r.objects[id]
	if !ok {
		return ObjectView{}, false
	}
	return obj.view(), true
}

// HeldBy returns the object in holder, if any.
func (r *Registry) HeldBy(id HolderID) (ObjectView, bool) {
	h, ok := r.holders[id]
	if !ok || h.current == "" {
		return ObjectView{}, false
	}
	return r.Object(h.current)
}

// Objects lists live objects in spawn order.
func (r *Registry) Objects() []ObjectView {
	list := make([]*object, 0, len(r.objects))
	for _, obj := range r.objects {
		list = append(list, obj)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]ObjectView, len(list))
	for i, obj := range list {
		out[i] = obj.view()
	}
	return out
}

// Len counts live objects.
func (r *Registry) Len() int {
	return len(r.objects)
}

// Verify checks that holder and object links agree in both directions.
func (r *Registry) Verify() error {
	for id, obj := range r.objects {
		if obj.holder == "" {
			continue
		}
		h, ok := r.holders[obj.holder]
		if !ok {
			return fmt.Errorf("object %s points at missing holder %s", id, obj.holder)
		}
		if h.current != id {
			return fmt.Errorf("object %s points at %s which holds %q", id, obj.holder, h.current)
		}
	}
	for id, h := range r.holders {
		if h.current == "" {
			continue
		}
		obj, ok := r.objects[h.current]
		if !ok {
			return fmt.Errorf("holder %s points at missing object %s", id, h.current)
		}
		if obj.holder != id {
			return fmt.Errorf("holder %s points at %s which is held by %q", id, h.current, obj.holder)
		}
	}
	return nil
}
