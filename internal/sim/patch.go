package sim

// PatchKind identifies the type of diff entry.
type PatchKind string

const (
	PatchMatchState PatchKind = "match_state"
	PatchCountdown  PatchKind = "match_countdown"
	PatchPlayTimer  PatchKind = "match_play_timer"
	PatchGamePaused PatchKind = "game_paused"

	PatchReadiness  PatchKind = "participant_ready"
	PatchPauseEntry PatchKind = "participant_pause"

	PatchParticipantJoined PatchKind = "participant_joined"
	PatchParticipantLeft   PatchKind = "participant_left"

	PatchOrderSpawned   PatchKind = "order_spawned"
	PatchOrderDelivered PatchKind = "order_delivered"
	PatchOrderFailed    PatchKind = "order_failed"
	PatchOrderExpired   PatchKind = "order_expired"

	PatchObjectSpawned   PatchKind = "object_spawned"
	PatchObjectAttached  PatchKind = "object_attached"
	PatchObjectDetached  PatchKind = "object_detached"
	PatchObjectDestroyed PatchKind = "object_destroyed"
	PatchPlateIngredient PatchKind = "plate_ingredient"

	PatchCuttingProgress PatchKind = "counter_cutting_progress"
	PatchCounterTrashed  PatchKind = "counter_trashed"
	PatchPlatesCount     PatchKind = "counter_plates"
	PatchContainerGrab   PatchKind = "counter_container_grab"

	PatchHostLost PatchKind = "host_lost"
)

// Patch represents a diff entry. Payloads always carry full values or
// explicit indices so a replica can apply them without knowing the prior
// value.
type Patch struct {
	Kind     PatchKind `json:"kind"`
	EntityID string    `json:"entityId"`
	Payload  any       `json:"payload,omitempty"`
}

// MatchStatePayload carries the match state name.
type MatchStatePayload struct {
	State string `json:"state"`
}

// TimerPayload carries the remaining seconds of a match timer.
type TimerPayload struct {
	Remaining float64 `json:"remaining"`
	Max       float64 `json:"max,omitempty"`
}

// FlagPayload carries a boolean. Readiness and pause entries use the
// participant id as EntityID.
type FlagPayload struct {
	Value bool `json:"value"`
}

// OrderSpawnPayload names the catalog recipe appended to the pending list.
type OrderSpawnPayload struct {
	CatalogIndex int     `json:"catalogIndex"`
	CreatedAt    float64 `json:"createdAt"`
}

// OrderIndexPayload addresses a pending order by position. For deliveries the
// EntityID is the participant that delivered.
type OrderIndexPayload struct {
	Index     int `json:"index"`
	Completed int `json:"completed"`
}

// ObjectSpawnPayload describes a new kitchen object. EntityID is the object id.
type ObjectSpawnPayload struct {
	Definition string   `json:"definition"`
	Kind       string   `json:"kind"`
	Holder     string   `json:"holder"`
	Accepts    []string `json:"accepts,omitempty"`
}

// ObjectMovePayload names the holders an object moved between. From is empty
// for a loose object and To is empty after a detach.
type ObjectMovePayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// IngredientPayload names an ingredient added to a plate.
type IngredientPayload struct {
	Ingredient string `json:"ingredient"`
}

// CounterPayload carries station state. EntityID is the counter id.
type CounterPayload struct {
	Actor       string `json:"actor,omitempty"`
	Ingredient  string `json:"ingredient,omitempty"`
	Progress    int    `json:"progress,omitempty"`
	ProgressMax int    `json:"progressMax,omitempty"`
	Plates      int    `json:"plates,omitempty"`
}

// HostLostPayload explains why the authority went away.
type HostLostPayload struct {
	Reason string `json:"reason"`
}
