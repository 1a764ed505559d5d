// Package patches decodes wire patches back into their typed payloads.
package patches

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
)

func newPayload(kind sim.PatchKind) (any, bool) {
	switch kind {
	case sim.PatchMatchState:
		return &sim.MatchStatePayload{}, true
	case sim.PatchCountdown, sim.PatchPlayTimer:
		return &sim.TimerPayload{}, true
	case sim.PatchGamePaused, sim.PatchReadiness, sim.PatchPauseEntry:
		return &sim.FlagPayload{}, true
	case sim.PatchParticipantJoined, sim.PatchParticipantLeft, sim.PatchObjectDestroyed:
		return nil, true
	case sim.PatchOrderSpawned:
		return &sim.OrderSpawnPayload{}, true
	case sim.PatchOrderDelivered, sim.PatchOrderFailed, sim.PatchOrderExpired:
		return &sim.OrderIndexPayload{}, true
	case sim.PatchObjectSpawned:
		return &sim.ObjectSpawnPayload{}, true
	case sim.PatchObjectAttached, sim.PatchObjectDetached:
		return &sim.ObjectMovePayload{}, true
	case sim.PatchPlateIngredient:
		return &sim.IngredientPayload{}, true
	case sim.PatchCuttingProgress, sim.PatchCounterTrashed, sim.PatchPlatesCount, sim.PatchContainerGrab:
		return &sim.CounterPayload{}, true
	case sim.PatchHostLost:
		return &sim.HostLostPayload{}, true
	}
	return nil, false
}

// Decode turns a raw payload into the typed value the authority produced for
// kind. Payload structs are returned by value.
func Decode(kind sim.PatchKind, raw []byte) (any, error) {
	target, known := newPayload(kind)
	if !known {
		return nil, fmt.Errorf("decode patch: unknown kind %q", kind)
	}
	if target == nil {
		return nil, nil
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := sonic.ConfigStd.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode patch %s: %w", kind, err)
		}
	}
	switch v := target.(type) {
	case *sim.MatchStatePayload:
		return *v, nil
	case *sim.TimerPayload:
		return *v, nil
	case *sim.FlagPayload:
		return *v, nil
	case *sim.OrderSpawnPayload:
		return *v, nil
	case *sim.OrderIndexPayload:
		return *v, nil
	case *sim.ObjectSpawnPayload:
		return *v, nil
	case *sim.ObjectMovePayload:
		return *v, nil
	case *sim.IngredientPayload:
		return *v, nil
	case *sim.CounterPayload:
		return *v, nil
	case *sim.HostLostPayload:
		return *v, nil
	}
	return target, nil
}
