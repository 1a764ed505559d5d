package session

import (
	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/ownership"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
)

// Snapshot captures the full replicated state after the current step.
func (a *Authority) Snapshot() sim.Keyframe {
	pending := a.orders.Pending()
	frame := sim.Keyframe{
		Tick:               a.tick,
		SessionID:          a.id,
		CatalogFingerprint: a.catalog.Fingerprint(),
		MatchState:         a.match.State().String(),
		Countdown:          a.match.CountdownRemaining(),
		PlayTimer:          a.match.PlayRemaining(),
		PlayMax:            a.match.Config().PlaySeconds,
		Paused:             a.pause.Paused(),
		Participants:       a.Participants(),
		Ready:              a.readiness.Set().Entries(),
		PauseRequests:      a.pause.Entries().Entries(),
		Orders:             make([]sim.OrderFrame, len(pending)),
		Completed:          a.orders.Completed(),
	}
	for i, order := range pending {
		frame.Orders[i] = sim.OrderFrame{CatalogIndex: order.CatalogIndex, CreatedAt: order.CreatedAt}
	}
	for _, h := range a.registry.Holders() {
		frame.Holders = append(frame.Holders, sim.HolderFrame{ID: string(h.ID), Kind: h.Kind.String()})
	}
	for _, obj := range a.registry.Objects() {
		frame.Objects = append(frame.Objects, objectFrame(obj))
	}
	for _, c := range a.kitchen.Counters() {
		frame.Counters = append(frame.Counters, sim.CounterFrame{
			ID:          string(c.ID),
			Kind:        string(c.Kind),
			Progress:    c.Progress,
			ProgressMax: c.ProgressMax,
			Plates:      c.Plates,
		})
	}
	return frame
}

func objectFrame(obj ownership.ObjectView) sim.ObjectFrame {
	return sim.ObjectFrame{
		ID:          string(obj.ID),
		Definition:  string(obj.Definition),
		Kind:        obj.Kind.String(),
		Holder:      string(obj.Holder),
		Ingredients: ingredientStrings(obj.Ingredients),
		Accepts:     ingredientStrings(obj.Accepts),
	}
}

func ingredientStrings(ids []catalog.IngredientID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func ingredientIDs(values []string) []catalog.IngredientID {
	if len(values) == 0 {
		return nil
	}
	out := make([]catalog.IngredientID, len(values))
	for i, v := range values {
		out[i] = catalog.IngredientID(v)
	}
	return out
}
