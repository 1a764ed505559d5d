package sim

import "time"

// ObjectFrame is the keyframe form of a kitchen object.
type ObjectFrame struct {
	ID          string   `json:"id"`
	Definition  string   `json:"definition"`
	Kind        string   `json:"kind"`
	Holder      string   `json:"holder,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
	Accepts     []string `json:"accepts,omitempty"`
}

// HolderFrame is the keyframe form of an ownership holder.
type HolderFrame struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// CounterFrame is the station state of one counter.
type CounterFrame struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Progress    int    `json:"progress,omitempty"`
	ProgressMax int    `json:"progressMax,omitempty"`
	Plates      int    `json:"plates,omitempty"`
}

// OrderFrame is a pending order.
type OrderFrame struct {
	CatalogIndex int     `json:"catalogIndex"`
	CreatedAt    float64 `json:"createdAt"`
}

// Keyframe captures the full replicated state at the end of a tick. Late
// joiners install it before applying patch batches with a higher sequence.
type Keyframe struct {
	Tick               uint64          `json:"tick"`
	Sequence           uint64          `json:"sequence"`
	SessionID          string          `json:"sessionId"`
	CatalogFingerprint string          `json:"catalogFingerprint"`
	MatchState         string          `json:"matchState"`
	Countdown          float64         `json:"countdown"`
	PlayTimer          float64         `json:"playTimer"`
	PlayMax            float64         `json:"playMax"`
	Paused             bool            `json:"paused"`
	Participants       []string        `json:"participants,omitempty"`
	Ready              map[string]bool `json:"ready,omitempty"`
	PauseRequests      map[string]bool `json:"pauseRequests,omitempty"`
	Orders             []OrderFrame    `json:"orders,omitempty"`
	Completed          int             `json:"completed"`
	Holders            []HolderFrame   `json:"holders,omitempty"`
	Objects            []ObjectFrame   `json:"objects,omitempty"`
	Counters           []CounterFrame  `json:"counters,omitempty"`
	RecordedAt         time.Time       `json:"recordedAt"`
}

// KeyframeEviction describes a keyframe removed from the buffer and why it was dropped.
type KeyframeEviction struct {
	Sequence uint64 `json:"sequence"`
	Tick     uint64 `json:"tick"`
	Reason   string `json:"reason,omitempty"`
}

// KeyframeRecordResult reports journal state after storing a keyframe.
type KeyframeRecordResult struct {
	Size           int                `json:"size"`
	OldestSequence uint64             `json:"oldestSequence"`
	NewestSequence uint64             `json:"newestSequence"`
	Evicted        []KeyframeEviction `json:"evicted,omitempty"`
}
