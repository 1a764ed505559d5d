package kitchen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/ownership"
)

type recordingDeliverer struct {
	deliveries [][]catalog.IngredientID
}

func (r *recordingDeliverer) Deliver(_ string, ingredients []catalog.IngredientID) {
	r.deliveries = append(r.deliveries, ingredients)
}

type fixture struct {
	kitchen   *Kitchen
	registry  *ownership.Registry
	deliverer *recordingDeliverer
	events    []Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	f := &fixture{registry: ownership.NewRegistry(), deliverer: &recordingDeliverer{}}
	f.kitchen, err = New(f.registry, cat, Config{PlateSpawnSeconds: 1, MaxPlates: 2}, f.deliverer)
	require.NoError(t, err)
	f.kitchen.Subscribe(func(e Event) { f.events = append(f.events, e) })
	require.NoError(t, f.kitchen.AddPlayer("p1"))
	return f
}

func (f *fixture) held(t *testing.T, holder string) ownership.ObjectView {
	t.Helper()
	view, ok := f.registry.HeldBy(ownership.HolderID(holder))
	require.Truef(t, ok, "%s should hold an object", holder)
	return view
}

func (f *fixture) stockPlate(t *testing.T) {
	t.Helper()
	f.kitchen.Tick(1.5, true)
}

func TestContainerSpawnsIntoEmptyHands(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kitchen.Interact("p1", "container-tomato"))
	assert.Equal(t, catalog.IngredientID("tomato"), f.held(t, "p1").Definition)

	err := f.kitchen.Interact("p1", "container-tomato")
	assert.ErrorIs(t, err, ErrIneligible)
	assert.Equal(t, 1, f.registry.Len())
}

func TestClearCounterPlaceAndPickUp(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kitchen.Interact("p1", "container-bread"))
	require.NoError(t, f.kitchen.Interact("p1", "clear-1"))
	assert.Equal(t, catalog.IngredientID("bread"), f.held(t, "clear-1").Definition)
	_, ok := f.registry.HeldBy("p1")
	assert.False(t, ok)

	require.NoError(t, f.kitchen.Interact("p1", "clear-1"))
	assert.Equal(t, catalog.IngredientID("bread"), f.held(t, "p1").Definition)
	require.NoError(t, f.registry.Verify())
}

func TestCuttingTurnsIngredientIntoSlices(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kitchen.Interact("p1", "container-tomato"))
	require.NoError(t, f.kitchen.Interact("p1", "cutting-1"))

	for i := 0; i < 3; i++ {
		require.NoError(t, f.kitchen.InteractAlternate("p1", "cutting-1"))
	}
	assert.Equal(t, catalog.IngredientID("tomato-slices"), f.held(t, "cutting-1").Definition)

	err := f.kitchen.InteractAlternate("p1", "cutting-1")
	assert.ErrorIs(t, err, ErrIneligible, "slices cannot be cut again")

	var progress []int
	for _, e := range f.events {
		if e.Kind == EventCuttingProgress {
			progress = append(progress, e.Progress)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3}, progress)
}

func TestCuttingRefusesUncuttable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kitchen.Interact("p1", "container-bread"))
	assert.ErrorIs(t, f.kitchen.Interact("p1", "cutting-1"), ErrIneligible)
	assert.Equal(t, catalog.IngredientID("bread"), f.held(t, "p1").Definition)
}

func TestPlateCombinesWithCounterIngredient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kitchen.Interact("p1", "container-bread"))
	require.NoError(t, f.kitchen.Interact("p1", "clear-1"))

	f.stockPlate(t)
	require.NoError(t, f.kitchen.Interact("p1", "plates-1"))
	plate := f.held(t, "p1")
	assert.Equal(t, ownership.KindPlate, plate.Kind)

	require.NoError(t, f.kitchen.Interact("p1", "clear-1"))
	plate = f.held(t, "p1")
	assert.Equal(t, []catalog.IngredientID{"bread"}, plate.Ingredients)
	_, ok := f.registry.HeldBy("clear-1")
	assert.False(t, ok, "ingredient is consumed by the plate")
}

func TestDeliveryForwardsPlateIngredients(t *testing.T) {
	f := newFixture(t)
	f.stockPlate(t)
	require.NoError(t, f.kitchen.Interact("p1", "plates-1"))
	plate := f.held(t, "p1")
	require.True(t, f.registry.TryAddIngredient(plate.ID, "bread"))

	require.NoError(t, f.kitchen.Interact("p1", "delivery-1"))
	require.Len(t, f.deliverer.deliveries, 1)
	assert.Equal(t, []catalog.IngredientID{"bread"}, f.deliverer.deliveries[0])
	assert.Equal(t, 0, f.registry.Len())
}

func TestDeliverRejectsNonPlate(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.kitchen.Deliver("p1"), ErrEmptyHands)
	require.NoError(t, f.kitchen.Interact("p1", "container-tomato"))
	assert.ErrorIs(t, f.kitchen.Deliver("p1"), ErrNotPlate)
	assert.Empty(t, f.deliverer.deliveries)
	assert.Equal(t, 1, f.registry.Len())
}

func TestTrashDestroysHeldObject(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kitchen.Interact("p1", "container-cabbage"))
	require.NoError(t, f.kitchen.Interact("p1", "trash-1"))
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, EventTrashed, f.events[len(f.events)-1].Kind)
}

func TestPlatesStockOnlyWhilePlayingUpToMax(t *testing.T) {
	f := newFixture(t)
	f.kitchen.Tick(1.5, false)
	assert.ErrorIs(t, f.kitchen.Interact("p1", "plates-1"), ErrIneligible)

	for i := 0; i < 5; i++ {
		f.kitchen.Tick(1.5, true)
	}
	for _, view := range f.kitchen.Counters() {
		if view.ID == "plates-1" {
			assert.Equal(t, 2, view.Plates)
		}
	}
}

func TestUnknownTargets(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.kitchen.Interact("p1", "stove-1"), ErrUnknownCounter)
	assert.ErrorIs(t, f.kitchen.Interact("ghost", "clear-1"), ErrUnknownPlayer)
	assert.ErrorIs(t, f.kitchen.Interact("clear-2", "clear-1"), ErrUnknownPlayer, "counters cannot act")
}

func TestRemovePlayerDropsHeldObject(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kitchen.Interact("p1", "container-tomato"))
	dropped, err := f.kitchen.RemovePlayer("p1")
	require.NoError(t, err)
	assert.NotEmpty(t, dropped)
	assert.Equal(t, 0, f.registry.Len())
}
