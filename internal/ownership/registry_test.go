package ownership

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
)

var plateAccepts = []catalog.IngredientID{"bread", "tomato-slices", "cheese-slices"}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.AddHolder("counter-a", HolderCounter))
	require.NoError(t, r.AddHolder("counter-b", HolderCounter))
	require.NoError(t, r.AddHolder("p1", HolderPlayer))
	return r
}

func TestSpawnPlacesObjectInHolder(t *testing.T) {
	r := newRegistry(t)
	var events []Event
	r.Subscribe(func(e Event) { events = append(events, e) })

	id, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)

	held, ok := r.HeldBy("p1")
	require.True(t, ok)
	assert.Equal(t, id, held.ID)
	assert.Equal(t, HolderID("p1"), held.Holder)
	require.Len(t, events, 1)
	assert.Equal(t, EventSpawned, events[0].Kind)
	require.NoError(t, r.Verify())
}

func TestSpawnIntoOccupiedHolderFails(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)

	_, err = r.Spawn("bread", KindIngredient, nil, "p1")
	assert.ErrorIs(t, err, ErrAlreadyOccupied)
	assert.Equal(t, 1, r.Len())
}

func TestTransferMovesBothLinks(t *testing.T) {
	r := newRegistry(t)
	id, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)

	var events []Event
	r.Subscribe(func(e Event) { events = append(events, e) })
	require.NoError(t, r.Transfer(id, "p1", "counter-a"))

	_, ok := r.HeldBy("p1")
	assert.False(t, ok)
	held, ok := r.HeldBy("counter-a")
	require.True(t, ok)
	assert.Equal(t, id, held.ID)
	require.Len(t, events, 1)
	assert.Equal(t, HolderID("p1"), events[0].From)
	assert.Equal(t, HolderID("counter-a"), events[0].To)
	require.NoError(t, r.Verify())
}

func TestAttachFromHolderEmitsSingleMove(t *testing.T) {
	r := newRegistry(t)
	id, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)

	var events []Event
	r.Subscribe(func(e Event) { events = append(events, e) })
	require.NoError(t, r.Attach(id, "counter-a"))

	require.Len(t, events, 1)
	assert.Equal(t, EventAttached, events[0].Kind)
	assert.Equal(t, HolderID("p1"), events[0].From)
	assert.Equal(t, HolderID("counter-a"), events[0].To)
	require.NoError(t, r.Verify())
}

func TestTransferToOccupiedLeavesStateUntouched(t *testing.T) {
	r := newRegistry(t)
	held, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)
	_, err = r.Spawn("bread", KindIngredient, nil, "counter-a")
	require.NoError(t, err)

	err = r.Transfer(held, "p1", "counter-a")
	assert.ErrorIs(t, err, ErrAlreadyOccupied)

	still, ok := r.HeldBy("p1")
	require.True(t, ok)
	assert.Equal(t, held, still.ID)
	require.NoError(t, r.Verify())
}

func TestTransferFromWrongSource(t *testing.T) {
	r := newRegistry(t)
	id, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)
	assert.ErrorIs(t, r.Transfer(id, "counter-a", "counter-b"), ErrNotHolder)
	assert.ErrorIs(t, r.Transfer("obj-99", "p1", "counter-b"), ErrUnknownObject)
	assert.ErrorIs(t, r.Transfer(id, "p1", "nowhere"), ErrUnknownHolder)
}

func TestDetachAndDestroy(t *testing.T) {
	r := newRegistry(t)
	id, err := r.Spawn("tomato", KindIngredient, nil, "counter-a")
	require.NoError(t, err)

	require.NoError(t, r.Detach(id))
	require.NoError(t, r.Detach(id), "detaching a loose object is a no-op")
	_, ok := r.HeldBy("counter-a")
	assert.False(t, ok)
	require.NoError(t, r.Verify())

	require.NoError(t, r.Destroy(id))
	_, ok = r.Object(id)
	assert.False(t, ok)
	assert.ErrorIs(t, r.Destroy(id), ErrUnknownObject)
}

func TestDestroyClearsHolder(t *testing.T) {
	r := newRegistry(t)
	id, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)

	var destroyed Event
	r.Subscribe(func(e Event) {
		if e.Kind == EventDestroyed {
			destroyed = e
		}
	})
	require.NoError(t, r.Destroy(id))
	assert.Equal(t, HolderID("p1"), destroyed.From)

	_, err = r.Spawn("bread", KindIngredient, nil, "p1")
	require.NoError(t, err, "holder is free again after destroy")
	require.NoError(t, r.Verify())
}

func TestPlateAcceptsEachIngredientOnce(t *testing.T) {
	r := newRegistry(t)
	plate, err := r.Spawn("plate", KindPlate, plateAccepts, "p1")
	require.NoError(t, err)

	assert.True(t, r.TryAddIngredient(plate, "bread"))
	assert.False(t, r.TryAddIngredient(plate, "bread"), "duplicates are refused")
	assert.False(t, r.TryAddIngredient(plate, "cabbage"), "unlisted ingredients are refused")
	assert.True(t, r.TryAddIngredient(plate, "cheese-slices"))

	view, ok := r.Object(plate)
	require.True(t, ok)
	assert.Equal(t, []catalog.IngredientID{"bread", "cheese-slices"}, view.Ingredients)
}

func TestTryAddIngredientOnNonPlate(t *testing.T) {
	r := newRegistry(t)
	id, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)
	assert.False(t, r.TryAddIngredient(id, "bread"))
	assert.False(t, r.TryAddIngredient("obj-404", "bread"))
}

func TestRemoveHolderDropsHeldObject(t *testing.T) {
	r := newRegistry(t)
	id, err := r.Spawn("tomato", KindIngredient, nil, "p1")
	require.NoError(t, err)

	dropped, err := r.RemoveHolder("p1")
	require.NoError(t, err)
	assert.Equal(t, id, dropped)
	_, ok := r.Object(id)
	assert.False(t, ok)
	_, ok = r.Holder("p1")
	assert.False(t, ok)
	require.NoError(t, r.Verify())
}

func TestSpawnWithIDRejectsDuplicates(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.SpawnWithID("obj-7", "tomato", KindIngredient, nil, "counter-a"))
	assert.ErrorIs(t, r.SpawnWithID("obj-7", "bread", KindIngredient, nil, "counter-b"), ErrDuplicateObject)
}

func TestRandomOperationsPreserveBidirectionalLinks(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	r := NewRegistry()
	holders := []HolderID{"c1", "c2", "c3", "p1", "p2"}
	for i, id := range holders {
		kind := HolderCounter
		if i >= 3 {
			kind = HolderPlayer
		}
		require.NoError(t, r.AddHolder(id, kind))
	}

	for step := 0; step < 2000; step++ {
		objects := r.Objects()
		pickHolder := holders[rng.IntN(len(holders))]
		switch op := rng.IntN(5); {
		case op == 0 || len(objects) == 0:
			_, _ = r.Spawn("bread", KindPlate, plateAccepts, pickHolder)
		case op == 1:
			obj := objects[rng.IntN(len(objects))]
			_ = r.Attach(obj.ID, pickHolder)
		case op == 2:
			obj := objects[rng.IntN(len(objects))]
			_ = r.Transfer(obj.ID, obj.Holder, pickHolder)
		case op == 3:
			obj := objects[rng.IntN(len(objects))]
			_ = r.Detach(obj.ID)
		default:
			obj := objects[rng.IntN(len(objects))]
			_ = r.Destroy(obj.ID)
		}
		require.NoErrorf(t, r.Verify(), "step %d", step)
	}
}
