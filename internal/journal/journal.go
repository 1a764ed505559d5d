package journal

import (
	"maps"
	"sync"
	"time"

	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
	"github.com/ddm94/SlimyKitchenOnline/logging"
)

const (
	keyframeEvictedMetric  = "journal_keyframes_evicted_total"
	keyframeRecordedMetric = "journal_keyframes_recorded_total"
)

// Telemetry receives journal counters.
type Telemetry interface {
	Add(key string, delta uint64)
}

// Journal accumulates patches generated during a tick and keeps a rolling
// buffer of recent keyframes so reconnecting replicas can resynchronise.
type Journal struct {
	mu        sync.RWMutex
	patches   []sim.Patch
	keyframes []sim.Keyframe
	maxFrames int
	maxAge    time.Duration
	clock     logging.Clock
	telemetry Telemetry
}

// New constructs a journal retaining at most keyframeCapacity keyframes no
// older than maxAge. A zero maxAge keeps frames until they are pushed out by
// count.
func New(keyframeCapacity int, maxAge time.Duration) *Journal {
	return &Journal{
		keyframes: make([]sim.Keyframe, 0, max(keyframeCapacity, 0)),
		maxFrames: max(keyframeCapacity, 0),
		maxAge:    max(maxAge, 0),
		clock:     logging.SystemClock{},
	}
}

// SetClock overrides the clock used to stamp keyframes.
func (j *Journal) SetClock(clock logging.Clock) {
	if clock == nil {
		return
	}
	j.mu.Lock()
	j.clock = clock
	j.mu.Unlock()
}

func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}

// AppendPatch records a patch for the current tick.
func (j *Journal) AppendPatch(p sim.Patch) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.patches = append(j.patches, p)
}

// DrainPatches returns the accumulated patches and clears the buffer.
func (j *Journal) DrainPatches() []sim.Patch {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.patches) == 0 {
		return nil
	}
	out := j.patches
	j.patches = make([]sim.Patch, 0, cap(out))
	return out
}

// SnapshotPatches copies the accumulated patches without clearing them.
func (j *Journal) SnapshotPatches() []sim.Patch {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.patches) == 0 {
		return nil
	}
	return append([]sim.Patch(nil), j.patches...)
}

// RecordKeyframe stores frame and evicts frames beyond the age and count
// limits, oldest first.
func (j *Journal) RecordKeyframe(frame sim.Keyframe) sim.KeyframeRecordResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxFrames == 0 {
		j.keyframes = j.keyframes[:0]
		return sim.KeyframeRecordResult{}
	}

	frame.RecordedAt = j.clock.Now()
	j.keyframes = append(j.keyframes, cloneKeyframe(frame))

	var evicted []sim.KeyframeEviction
	if j.maxAge > 0 {
		cutoff := frame.RecordedAt.Add(-j.maxAge)
		expired := 0
		for expired < len(j.keyframes) && j.keyframes[expired].RecordedAt.Before(cutoff) {
			evicted = append(evicted, eviction(j.keyframes[expired], "expired"))
			expired++
		}
		j.keyframes = j.keyframes[expired:]
	}
	if overflow := len(j.keyframes) - j.maxFrames; overflow > 0 {
		for _, old := range j.keyframes[:overflow] {
			evicted = append(evicted, eviction(old, "count"))
		}
		j.keyframes = j.keyframes[overflow:]
	}

	if j.telemetry != nil {
		j.telemetry.Add(keyframeRecordedMetric, 1)
		if len(evicted) > 0 {
			j.telemetry.Add(keyframeEvictedMetric, uint64(len(evicted)))
		}
	}

	result := sim.KeyframeRecordResult{Size: len(j.keyframes), Evicted: evicted}
	if result.Size > 0 {
		result.OldestSequence = j.keyframes[0].Sequence
		result.NewestSequence = j.keyframes[result.Size-1].Sequence
	}
	return result
}

func eviction(frame sim.Keyframe, reason string) sim.KeyframeEviction {
	return sim.KeyframeEviction{Sequence: frame.Sequence, Tick: frame.Tick, Reason: reason}
}

// Keyframes returns the buffered frames in chronological order.
func (j *Journal) Keyframes() []sim.Keyframe {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]sim.Keyframe, len(j.keyframes))
	for i, frame := range j.keyframes {
		out[i] = cloneKeyframe(frame)
	}
	return out
}

// KeyframeBySequence returns the keyframe matching sequence.
func (j *Journal) KeyframeBySequence(sequence uint64) (sim.Keyframe, bool) {
	if sequence == 0 {
		return sim.Keyframe{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, frame := range j.keyframes {
		if frame.Sequence == sequence {
			return cloneKeyframe(frame), true
		}
	}
	return sim.Keyframe{}, false
}

// LatestKeyframe returns the newest buffered keyframe.
func (j *Journal) LatestKeyframe() (sim.Keyframe, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.keyframes) == 0 {
		return sim.Keyframe{}, false
	}
	return cloneKeyframe(j.keyframes[len(j.keyframes)-1]), true
}

// KeyframeWindow reports the buffer size and its sequence range.
func (j *Journal) KeyframeWindow() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.keyframes)
	if size == 0 {
		return 0, 0, 0
	}
	return size, j.keyframes[0].Sequence, j.keyframes[size-1].Sequence
}

func cloneKeyframe(frame sim.Keyframe) sim.Keyframe {
	cloned := frame
	cloned.Participants = append([]string(nil), frame.Participants...)
	cloned.Ready = maps.Clone(frame.Ready)
	cloned.PauseRequests = maps.Clone(frame.PauseRequests)
	cloned.Orders = append([]sim.OrderFrame(nil), frame.Orders...)
	cloned.Holders = append([]sim.HolderFrame(nil), frame.Holders...)
	cloned.Counters = append([]sim.CounterFrame(nil), frame.Counters...)
	if frame.Objects != nil {
		cloned.Objects = make([]sim.ObjectFrame, len(frame.Objects))
		for i, obj := range frame.Objects {
			obj.Ingredients = append([]string(nil), obj.Ingredients...)
			obj.Accepts = append([]string(nil), obj.Accepts...)
			cloned.Objects[i] = obj
		}
	}
	return cloned
}
