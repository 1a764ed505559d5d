package sim

import "time"

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	// CommandConnect admits a participant into the session universe.
	CommandConnect CommandType = "Connect"
	// CommandDisconnect removes a participant and everything it holds.
	CommandDisconnect CommandType = "Disconnect"
	CommandReady      CommandType = "Ready"
	CommandPause      CommandType = "Pause"
	CommandUnpause    CommandType = "Unpause"
	// CommandInteract and CommandInteractAlternate target a counter.
	CommandInteract          CommandType = "Interact"
	CommandInteractAlternate CommandType = "InteractAlternate"
	CommandDeliver           CommandType = "Deliver"
)

// IsLifecycle reports whether t changes session membership. Lifecycle
// commands bypass per-actor throttling and can never be dropped.
func (t CommandType) IsLifecycle() bool {
	return t == CommandConnect || t == CommandDisconnect
}

// InteractCommand names the counter an interaction targets.
type InteractCommand struct {
	Target string `json:"target"`
}

// DisconnectCommand records why a participant left.
type DisconnectCommand struct {
	Reason string `json:"reason"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64             `json:"originTick"`
	ActorID    string             `json:"actorId"`
	Type       CommandType        `json:"type"`
	IssuedAt   time.Time          `json:"issuedAt"`
	Interact   *InteractCommand   `json:"interact,omitempty"`
	Disconnect *DisconnectCommand `json:"disconnect,omitempty"`
}
