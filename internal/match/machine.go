// Package match runs the forward-only match lifecycle: waiting for players,
// a start countdown, timed play and game over.
package match

import (
	"fmt"

	"github.com/ddm94/SlimyKitchenOnline/internal/replicated"
)

type State int

const (
	WaitingToStart State = iota
	CountdownToStart
	GamePlaying
	GameOver
)

func (s State) String() string {
	switch s {
	case WaitingToStart:
		return "waiting_to_start"
	case CountdownToStart:
		return "countdown_to_start"
	case GamePlaying:
		return "game_playing"
	case GameOver:
		return "game_over"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func ParseState(value string) (State, error) {
	for s := WaitingToStart; s <= GameOver; s++ {
		if s.String() == value {
			return s, nil
		}
	}
	return 0, fmt.Errorf("match: unknown state %q", value)
}

// Config holds the match timers in seconds. Non-positive values fall back to
// DefaultConfig.
type Config struct {
	CountdownSeconds float64
	PlaySeconds      float64
}

func DefaultConfig() Config {
	return Config{CountdownSeconds: 3, PlaySeconds: 60}
}

// Machine owns three replicated values. On the authority Tick drives them, on
// replicas they are written through Apply when patches arrive.
type Machine struct {
	cfg       Config
	state     *replicated.Value[State]
	countdown *replicated.Value[float64]
	playTimer *replicated.Value[float64]
}

func NewMachine(cfg Config, role replicated.Role) *Machine {
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = DefaultConfig().CountdownSeconds
	}
	if cfg.PlaySeconds <= 0 {
		cfg.PlaySeconds = DefaultConfig().PlaySeconds
	}
	return &Machine{
		cfg:       cfg,
		state:     replicated.New(role, WaitingToStart),
		countdown: replicated.New(role, cfg.CountdownSeconds),
		playTimer: replicated.New(role, 0.0),
	}
}

func (m *Machine) Config() Config {
	return m.cfg
}

// StateValue exposes the replicated state cell for observers.
func (m *Machine) StateValue() *replicated.Value[State] {
	return m.state
}

func (m *Machine) CountdownValue() *replicated.Value[float64] {
	return m.countdown
}

func (m *Machine) PlayTimerValue() *replicated.Value[float64] {
	return m.playTimer
}

// StartCountdown leaves WaitingToStart. It reports whether a transition
// happened; calling it in any later state is a no-op.
func (m *Machine) StartCountdown() (bool, error) {
	if m.state.Get() != WaitingToStart {
		return false, nil
	}
	if err := m.advance(CountdownToStart); err != nil {
		return false, err
	}
	return true, nil
}

// Tick advances timers by dt seconds. Transitions fire once a timer drops
// below zero.
func (m *Machine) Tick(dt float64) error {
	switch m.state.Get() {
	case CountdownToStart:
		remaining := m.countdown.Get() - dt
		if err := m.countdown.SetFromAuthority(remaining); err != nil {
			return err
		}
		if remaining < 0 {
			if err := m.playTimer.SetFromAuthority(m.cfg.PlaySeconds); err != nil {
				return err
			}
			return m.advance(GamePlaying)
		}
	case GamePlaying:
		remaining := m.playTimer.Get() - dt
		if err := m.playTimer.SetFromAuthority(remaining); err != nil {
			return err
		}
		if remaining < 0 {
			return m.advance(GameOver)
		}
	}
	return nil
}

func (m *Machine) advance(next State) error {
	if next <= m.state.Get() {
		return nil
	}
	return m.state.SetFromAuthority(next)
}

// State returns the current match state.
func (m *Machine) State() State {
	return m.state.Get()
}

func (m *Machine) IsWaitingToStart() bool { return m.state.Get() == WaitingToStart }

func (m *Machine) IsCountdownActive() bool { return m.state.Get() == CountdownToStart }

func (m *Machine) IsPlaying() bool { return m.state.Get() == GamePlaying }

func (m *Machine) IsOver() bool { return m.state.Get() == GameOver }

// CountdownRemaining is the raw countdown timer, which may be slightly
// negative on the tick the match starts.
func (m *Machine) CountdownRemaining() float64 {
	return m.countdown.Get()
}

func (m *Machine) PlayRemaining() float64 {
	return m.playTimer.Get()
}

// PlayTimeNormalized returns 1 - remaining/max clamped to [0, 1]. It is 0
// before play starts and 1 once the timer is exhausted.
func (m *Machine) PlayTimeNormalized() float64 {
	switch m.state.Get() {
	case WaitingToStart, CountdownToStart:
		return 0
	case GameOver:
		return 1
	}
	normalized := 1 - m.playTimer.Get()/m.cfg.PlaySeconds
	return min(max(normalized, 0), 1)
}
