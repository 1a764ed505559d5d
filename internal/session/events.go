package session

import (
	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/match"
	"github.com/ddm94/SlimyKitchenOnline/internal/orders"
	"github.com/ddm94/SlimyKitchenOnline/internal/ownership"
)

// EventKind names a replica event. Presentation code reacts to these instead
// of polling state.
type EventKind string

const (
	EventMatchStateChanged EventKind = "match_state_changed"
	EventLocalPauseChanged EventKind = "local_pause_changed"
	EventPauseStateChanged EventKind = "pause_state_changed"
	EventReadinessChanged  EventKind = "readiness_changed"
	EventLocalReadyChanged EventKind = "local_ready_changed"
	EventOrderSpawned      EventKind = "order_spawned"
	// EventOrderCompleted updates the order list; EventOrderSucceeded is the
	// delivery outcome shown to players.
	EventOrderCompleted    EventKind = "order_completed"
	EventOrderSucceeded    EventKind = "order_succeeded"
	EventOrderFailed       EventKind = "order_failed"
	EventOrderExpired      EventKind = "order_expired"
	EventIngredientAdded   EventKind = "ingredient_added"
	EventObjectPlaced      EventKind = "object_placed"
	EventObjectPickedUp    EventKind = "object_picked_up"
	EventObjectTrashed     EventKind = "object_trashed"
	EventCuttingProgress   EventKind = "cutting_progress"
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventHostLost          EventKind = "host_lost"
)

// Event carries the fields relevant to its Kind; the rest are zero.
type Event struct {
	Kind        EventKind
	Participant string
	State       match.State
	Paused      bool
	Ready       bool
	OrderIndex  int
	Order       orders.PendingOrder
	Completed   int
	Object      ownership.ObjectID
	Holder      ownership.HolderID
	Ingredient  catalog.IngredientID
	Progress    int
	ProgressMax int
	Reason      string
}
