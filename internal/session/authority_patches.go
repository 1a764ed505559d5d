package session

import (
	"context"

	"github.com/ddm94/SlimyKitchenOnline/internal/kitchen"
	"github.com/ddm94/SlimyKitchenOnline/internal/match"
	"github.com/ddm94/SlimyKitchenOnline/internal/orders"
	"github.com/ddm94/SlimyKitchenOnline/internal/ownership"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
	"github.com/ddm94/SlimyKitchenOnline/logging"
	loggingkitchen "github.com/ddm94/SlimyKitchenOnline/logging/kitchen"
	loggingmatch "github.com/ddm94/SlimyKitchenOnline/logging/match"
	loggingorders "github.com/ddm94/SlimyKitchenOnline/logging/orders"
)

// observe turns every component notification into a broadcast patch. Each
// accepted write produces exactly one patch, including writes that leave the
// value unchanged.
func (a *Authority) observe() {
	a.match.StateValue().Subscribe(func(previous, next match.State) {
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchMatchState, Payload: sim.MatchStatePayload{State: next.String()}})
		loggingmatch.StateChanged(
			context.Background(),
			a.publisher,
			a.tick,
			logging.Session(a.id),
			loggingmatch.StateChangedPayload{From: previous.String(), To: next.String()},
			nil,
		)
		if next == match.GameOver {
			a.matchOver = true
		}
	})
	a.match.CountdownValue().Subscribe(func(_, next float64) {
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchCountdown, Payload: sim.TimerPayload{Remaining: next, Max: a.match.Config().CountdownSeconds}})
	})
	a.match.PlayTimerValue().Subscribe(func(_, next float64) {
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchPlayTimer, Payload: sim.TimerPayload{Remaining: next, Max: a.match.Config().PlaySeconds}})
	})
	a.pause.Aggregate().Subscribe(func(_, next bool) {
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchGamePaused, Payload: sim.FlagPayload{Value: next}})
		loggingmatch.PauseChanged(
			context.Background(),
			a.publisher,
			a.tick,
			logging.Session(a.id),
			loggingmatch.PauseChangedPayload{Paused: next},
			nil,
		)
	})
	a.orders.Subscribe(a.orderPatch)
	a.registry.Subscribe(a.objectPatch)
	a.kitchen.Subscribe(a.counterPatch)
}

func (a *Authority) orderPatch(event orders.Event) {
	payload := loggingorders.OrderPayload{
		Index:     event.Index,
		Recipe:    event.Order.Recipe.ID,
		Pending:   len(a.orders.Pending()),
		Completed: event.Completed,
	}
	ctx := context.Background()
	switch event.Kind {
	case orders.EventSpawned:
		a.journal.AppendPatch(sim.Patch{
			Kind:    sim.PatchOrderSpawned,
			Payload: sim.OrderSpawnPayload{CatalogIndex: event.Order.CatalogIndex, CreatedAt: event.Order.CreatedAt},
		})
		loggingorders.Spawned(ctx, a.publisher, a.tick, payload, nil)
	case orders.EventDelivered:
		a.journal.AppendPatch(sim.Patch{
			Kind:     sim.PatchOrderDelivered,
			EntityID: event.Actor,
			Payload:  sim.OrderIndexPayload{Index: event.Index, Completed: event.Completed},
		})
		loggingorders.Delivered(ctx, a.publisher, a.tick, logging.Participant(event.Actor), payload, nil)
	case orders.EventFailed:
		a.journal.AppendPatch(sim.Patch{
			Kind:     sim.PatchOrderFailed,
			EntityID: event.Actor,
			Payload:  sim.OrderIndexPayload{Index: -1, Completed: event.Completed},
		})
		loggingorders.Failed(ctx, a.publisher, a.tick, logging.Participant(event.Actor), payload, nil)
	case orders.EventExpired:
		a.journal.AppendPatch(sim.Patch{
			Kind:    sim.PatchOrderExpired,
			Payload: sim.OrderIndexPayload{Index: event.Index, Completed: event.Completed},
		})
		loggingorders.Expired(ctx, a.publisher, a.tick, payload, nil)
	}
}

func (a *Authority) objectPatch(event ownership.Event) {
	id := string(event.Object.ID)
	switch event.Kind {
	case ownership.EventSpawned:
		a.journal.AppendPatch(sim.Patch{
			Kind:     sim.PatchObjectSpawned,
			EntityID: id,
			Payload: sim.ObjectSpawnPayload{
				Definition: string(event.Object.Definition),
				Kind:       event.Object.Kind.String(),
				Holder:     string(event.To),
				Accepts:    ingredientStrings(event.Object.Accepts),
			},
		})
	case ownership.EventAttached:
		a.journal.AppendPatch(sim.Patch{
			Kind:     sim.PatchObjectAttached,
			EntityID: id,
			Payload:  sim.ObjectMovePayload{From: string(event.From), To: string(event.To)},
		})
	case ownership.EventDetached:
		a.journal.AppendPatch(sim.Patch{
			Kind:     sim.PatchObjectDetached,
			EntityID: id,
			Payload:  sim.ObjectMovePayload{From: string(event.From)},
		})
	case ownership.EventDestroyed:
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchObjectDestroyed, EntityID: id})
	case ownership.EventIngredientAdded:
		a.journal.AppendPatch(sim.Patch{
			Kind:     sim.PatchPlateIngredient,
			EntityID: id,
			Payload:  sim.IngredientPayload{Ingredient: string(event.Ingredient)},
		})
	}
}

func (a *Authority) counterPatch(event kitchen.Event) {
	id := string(event.Counter)
	payload := sim.CounterPayload{
		Actor:       event.Actor,
		Ingredient:  string(event.Ingredient),
		Progress:    event.Progress,
		ProgressMax: event.ProgressMax,
		Plates:      event.Plates,
	}
	ctx := context.Background()
	switch event.Kind {
	case kitchen.EventContainerGrab:
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchContainerGrab, EntityID: id, Payload: payload})
	case kitchen.EventCuttingProgress:
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchCuttingProgress, EntityID: id, Payload: payload})
	case kitchen.EventCutCompleted:
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchCuttingProgress, EntityID: id, Payload: payload})
		loggingkitchen.CutCompleted(ctx, a.publisher, a.tick, logging.Participant(event.Actor), loggingkitchen.CounterPayload{Counter: id, Ingredient: payload.Ingredient}, nil)
	case kitchen.EventTrashed:
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchCounterTrashed, EntityID: id, Payload: payload})
		loggingkitchen.ObjectTrashed(ctx, a.publisher, a.tick, logging.Participant(event.Actor), loggingkitchen.CounterPayload{Counter: id, Ingredient: payload.Ingredient}, nil)
	case kitchen.EventPlatesChanged:
		a.journal.AppendPatch(sim.Patch{Kind: sim.PatchPlatesCount, EntityID: id, Payload: payload})
	case kitchen.EventDelivered:
		// The order engine reports the outcome.
	}
}
