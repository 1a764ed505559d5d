// Package session holds the explicit handles for one running kitchen session.
// Authority owns the authoritative state and is driven by the simulation
// loop. Replica mirrors authority broadcasts for a single participant and
// turns them into events for presentation.
package session

import (
	"errors"
	"time"

	"github.com/ddm94/SlimyKitchenOnline/internal/kitchen"
	"github.com/ddm94/SlimyKitchenOnline/internal/match"
	"github.com/ddm94/SlimyKitchenOnline/internal/orders"
)

var (
	// ErrHostLost is returned by replica requests once the authority is gone.
	ErrHostLost = errors.New("session: host lost")
	// ErrSessionClosed is returned by authority operations after Teardown.
	ErrSessionClosed = errors.New("session: closed")
)

const (
	RejectUnknownActor   = "unknown_actor"
	RejectInvalidCommand = "invalid_command"
	RejectSessionClosed  = "session_closed"
	// RejectIneligible covers requests that are well formed but do not apply
	// in the current state, such as interacting outside of play.
	RejectIneligible = "ineligible"
)

// Config gathers the tunables of every component a session composes.
type Config struct {
	Match   match.Config
	Orders  orders.Config
	Kitchen kitchen.Config
}

func DefaultConfig() Config {
	return Config{
		Match:   match.DefaultConfig(),
		Orders:  orders.DefaultConfig(),
		Kitchen: kitchen.DefaultConfig(),
	}
}

// Result summarises a finished match.
type Result struct {
	SessionID    string
	Completed    int
	Failed       int
	Participants []string
	PlaySeconds  float64
	EndedAt      time.Time
}
