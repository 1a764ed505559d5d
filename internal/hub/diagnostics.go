package hub

import (
	"slices"
	"strings"
)

// ParticipantDiagnostics is the heartbeat view of one participant.
type ParticipantDiagnostics struct {
	ID            string `json:"id"`
	JoinedAt      int64  `json:"joinedAt"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rtt"`
	Subscribed    bool   `json:"subscribed"`
}

// Diagnostics summarises the hub for the diagnostics endpoint.
type Diagnostics struct {
	SessionID       string                   `json:"sessionId"`
	Tick            uint64                   `json:"tick"`
	Sequence        uint64                   `json:"sequence"`
	MatchState      string                   `json:"matchState"`
	Paused          bool                     `json:"paused"`
	Closed          bool                     `json:"closed"`
	PendingCommands int                      `json:"pendingCommands"`
	KeyframeWindow  KeyframeWindow           `json:"keyframes"`
	Participants    []ParticipantDiagnostics `json:"participants"`
	Telemetry       map[string]uint64        `json:"telemetry"`
}

// KeyframeWindow describes the retained keyframe range.
type KeyframeWindow struct {
	Size   int    `json:"size"`
	Oldest uint64 `json:"oldest"`
	Newest uint64 `json:"newest"`
}

// DiagnosticsSnapshot exposes heartbeat data and loop counters.
func (h *Hub) DiagnosticsSnapshot() Diagnostics {
	size, oldest, newest := h.journal.KeyframeWindow()

	h.mu.Lock()
	diag := Diagnostics{
		SessionID:      h.SessionID(),
		Tick:           h.Tick(),
		Sequence:       h.sequence,
		MatchState:     h.lastFrame.MatchState,
		Paused:         h.lastFrame.Paused,
		Closed:         h.closed,
		KeyframeWindow: KeyframeWindow{Size: size, Oldest: oldest, Newest: newest},
		Participants:   make([]ParticipantDiagnostics, 0, len(h.participants)),
	}
	for id, state := range h.participants {
		_, subscribed := h.subscribers[id]
		diag.Participants = append(diag.Participants, ParticipantDiagnostics{
			ID:            id,
			JoinedAt:      state.joinedAt.UnixMilli(),
			LastHeartbeat: state.lastHeartbeat.UnixMilli(),
			RTTMillis:     state.lastRTT.Milliseconds(),
			Subscribed:    subscribed,
		})
	}
	h.mu.Unlock()

	slices.SortFunc(diag.Participants, func(a, b ParticipantDiagnostics) int {
		return strings.Compare(a.ID, b.ID)
	})
	diag.PendingCommands = h.loop.Pending()
	diag.Telemetry = h.metrics.Snapshot()
	return diag
}
