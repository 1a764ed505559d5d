// Package hub connects websocket participants to one authoritative kitchen
// session. It owns the simulation loop, stages client intent as commands and
// fans the patches produced each tick out to every subscriber.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/journal"
	"github.com/ddm94/SlimyKitchenOnline/internal/net/proto"
	"github.com/ddm94/SlimyKitchenOnline/internal/session"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
	"github.com/ddm94/SlimyKitchenOnline/logging"
	loggingnetwork "github.com/ddm94/SlimyKitchenOnline/logging/network"
	loggingsimulation "github.com/ddm94/SlimyKitchenOnline/logging/simulation"
)

var (
	// ErrClosed is returned once the hub has shut down.
	ErrClosed = errors.New("hub: closed")
	// ErrUnknownParticipant is returned for ids that never joined or already left.
	ErrUnknownParticipant = errors.New("hub: unknown participant")
)

const tracerName = "github.com/ddm94/SlimyKitchenOnline/internal/hub"

// Config sizes the loop, the keyframe window and the connection policy.
type Config struct {
	Session           session.Config
	Loop              sim.LoopConfig
	KeyframeCapacity  int
	KeyframeMaxAge    time.Duration
	HeartbeatInterval time.Duration
	DisconnectAfter   time.Duration
	WriteWait         time.Duration
	ResultsBuffer     int
}

// DefaultConfig returns the settings used by the server binary.
func DefaultConfig() Config {
	return Config{
		Session:           session.DefaultConfig(),
		Loop:              sim.DefaultLoopConfig(),
		KeyframeCapacity:  64,
		KeyframeMaxAge:    10 * time.Second,
		HeartbeatInterval: 2 * time.Second,
		DisconnectAfter:   6 * time.Second,
		WriteWait:         10 * time.Second,
		ResultsBuffer:     8,
	}
}

// Dependencies carries the collaborators the hub is wired with.
type Dependencies struct {
	Catalog   *catalog.Catalog
	SessionID string
	Logger    telemetry.Logger
	Metrics   *logging.Metrics
	Clock     logging.Clock
	Seed      uint64
	Publisher logging.Publisher
	Tracer    trace.Tracer
}

// Conn is the slice of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type participant struct {
	id            string
	joinedAt      time.Time
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

// Hub owns the participants, subscribers and the simulation loop of one session.
type Hub struct {
	cfg       Config
	catalog   *catalog.Catalog
	authority *session.Authority
	loop      *sim.Loop
	journal   *journal.Journal
	logger    telemetry.Logger
	metrics   *logging.Metrics
	telemetry telemetry.Metrics
	clock     logging.Clock
	publisher logging.Publisher
	tracer    trace.Tracer
	results   chan session.Result

	mu           sync.Mutex
	participants map[string]*participant
	subscribers  map[string]*Subscriber
	sequence     uint64
	lastFrame    sim.Keyframe
	closed       bool

	nextID        atomic.Uint64
	tick          atomic.Uint64
	overrunStreak uint64
}

// New wires an Authority behind a fixed-tick loop.
func New(cfg Config, deps Dependencies) (*Hub, error) {
	if deps.Catalog == nil {
		return nil, errors.New("hub: catalog is required")
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.Discard
	}
	if deps.Metrics == nil {
		deps.Metrics = &logging.Metrics{}
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if cfg.Loop.TickRate <= 0 {
		cfg.Loop = sim.DefaultLoopConfig()
	}

	metrics := telemetry.WrapMetrics(deps.Metrics)
	j := journal.New(cfg.KeyframeCapacity, cfg.KeyframeMaxAge)
	j.SetClock(deps.Clock)
	j.AttachTelemetry(metrics)

	h := &Hub{
		cfg:          cfg,
		catalog:      deps.Catalog,
		journal:      j,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		telemetry:    metrics,
		clock:        deps.Clock,
		publisher:    deps.Publisher,
		tracer:       deps.Tracer,
		results:      make(chan session.Result, max(cfg.ResultsBuffer, 1)),
		participants: make(map[string]*participant),
		subscribers:  make(map[string]*Subscriber),
	}

	authority, err := session.NewAuthority(session.AuthorityConfig{
		SessionID: deps.SessionID,
		Catalog:   deps.Catalog,
		Session:   cfg.Session,
		Deps: sim.Deps{
			Logger:  deps.Logger,
			Metrics: metrics,
			Clock:   deps.Clock,
			RNG:     sim.NewRNG(deps.Seed, deps.Clock),
		},
		Journal:   j,
		Publisher: deps.Publisher,
		Hooks: session.Hooks{
			OnReject:    h.onReject,
			OnMatchOver: h.onMatchOver,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	h.authority = authority
	loop, err := sim.NewEngine(authority, sim.WithLoopConfig(cfg.Loop), sim.WithLoopHooks(sim.LoopHooks{
		Prepare:        h.prepare,
		AfterStep:      h.afterStep,
		OnQueueWarning: h.onQueueWarning,
		OnCommandDrop:  h.onCommandDrop,
	}))
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	h.loop = loop
	h.lastFrame = authority.Snapshot()
	return h, nil
}

// SessionID identifies the session the hub serves.
func (h *Hub) SessionID() string {
	return h.authority.ID()
}

// Catalog returns the content the session was built from.
func (h *Hub) Catalog() *catalog.Catalog {
	return h.catalog
}

// Engine exposes the command intake of the loop.
func (h *Hub) Engine() sim.Engine {
	return h.loop
}

// Tick reports the most recently started tick.
func (h *Hub) Tick() uint64 {
	return h.tick.Load()
}

// TickRate reports the loop frequency in ticks per second.
func (h *Hub) TickRate() int {
	return h.cfg.Loop.TickRate
}

// HeartbeatInterval is the cadence clients are asked to ping at.
func (h *Hub) HeartbeatInterval() time.Duration {
	return h.cfg.HeartbeatInterval
}

// Results delivers one Result per finished match.
func (h *Hub) Results() <-chan session.Result {
	return h.results
}

// Join registers a participant and stages its connect command. A non-empty
// fingerprint must match the session catalog.
func (h *Hub) Join(fingerprint string) (proto.JoinResponseV1, error) {
	if fingerprint != "" {
		if err := h.catalog.CheckFingerprint(fingerprint); err != nil {
			loggingnetwork.JoinRejected(
				context.Background(),
				h.publisher,
				h.Tick(),
				loggingnetwork.JoinRejectedPayload{Reason: "catalog_mismatch"},
				map[string]any{"fingerprint": fingerprint},
			)
			return proto.JoinResponseV1{}, err
		}
	}

	id := fmt.Sprintf("%s%d", catalog.ParticipantPrefix, h.nextID.Add(1))
	now := h.clock.Now()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return proto.JoinResponseV1{}, ErrClosed
	}
	h.participants[id] = &participant{id: id, joinedAt: now, lastHeartbeat: now}
	h.mu.Unlock()

	h.loop.EnqueueLifecycle(sim.Command{
		OriginTick: h.Tick(),
		ActorID:    id,
		Type:       sim.CommandConnect,
		IssuedAt:   now,
	})
	h.telemetry.Add("hub_joins_total", 1)

	return proto.JoinResponseV1{
		Ver:                proto.Version,
		ID:                 id,
		SessionID:          h.SessionID(),
		CatalogFingerprint: h.catalog.Fingerprint(),
		TickRate:           h.TickRate(),
		HeartbeatMillis:    h.cfg.HeartbeatInterval.Milliseconds(),
	}, nil
}

// HasParticipant reports whether id joined and has not left.
func (h *Hub) HasParticipant(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.participants[id]
	return ok
}

// Subscribe associates a connection with a joined participant and writes the
// latest keyframe to it. Any previous connection for the same id is closed.
// The keyframe is written before any patch batch can reach the new subscriber.
func (h *Hub) Subscribe(id string, conn Conn) (*Subscriber, error) {
	sub := newSubscriber(conn, h.cfg.WriteWait)
	sub.mu.Lock()
	defer sub.mu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	state, ok := h.participants[id]
	if !ok {
		h.mu.Unlock()
		return nil, ErrUnknownParticipant
	}
	state.lastHeartbeat = h.clock.Now()
	previous := h.subscribers[id]
	h.subscribers[id] = sub
	frame := h.lastFrame
	h.mu.Unlock()

	if previous != nil {
		previous.conn.Close()
	}

	data, err := proto.EncodeKeyframe(frame)
	if err != nil {
		return nil, fmt.Errorf("encode keyframe: %w", err)
	}
	if err := sub.writeLocked(data); err != nil {
		return nil, err
	}
	h.telemetry.Add("hub_keyframes_sent_total", 1)
	return sub, nil
}

// Disconnect removes a participant, closes its connection and stages its
// disconnect command. It reports whether the participant was known.
func (h *Hub) Disconnect(id, reason string) bool {
	h.mu.Lock()
	sub := h.subscribers[id]
	delete(h.subscribers, id)
	_, known := h.participants[id]
	delete(h.participants, id)
	h.mu.Unlock()

	if sub != nil {
		sub.conn.Close()
	}
	if !known {
		return false
	}
	h.loop.EnqueueLifecycle(sim.Command{
		OriginTick: h.Tick(),
		ActorID:    id,
		Type:       sim.CommandDisconnect,
		IssuedAt:   h.clock.Now(),
		Disconnect: &sim.DisconnectCommand{Reason: reason},
	})
	return true
}

// Release disconnects id only while sub is still its active subscriber, so a
// connection replaced by a newer Subscribe does not evict the participant.
func (h *Hub) Release(id string, sub *Subscriber, reason string) bool {
	h.mu.Lock()
	current, ok := h.subscribers[id]
	h.mu.Unlock()
	if !ok || current != sub {
		return false
	}
	return h.Disconnect(id, reason)
}

// UpdateHeartbeat records the most recent heartbeat time and RTT for a participant.
func (h *Hub) UpdateHeartbeat(id string, receivedAt time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.participants[id]
	if !ok {
		return 0, false
	}

	state.lastHeartbeat = receivedAt

	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			state.lastRTT = max(receivedAt.Sub(clientTime), 0)
		}
	}

	return state.lastRTT, true
}

// HandleKeyframeRequest returns the keyframe with the given sequence, or the
// latest one for sequence zero. A nack is returned when the frame is gone.
func (h *Hub) HandleKeyframeRequest(id string, sequence uint64) (sim.Keyframe, *proto.KeyframeNack, bool) {
	if !h.HasParticipant(id) {
		return sim.Keyframe{}, nil, false
	}
	if sequence == 0 {
		h.mu.Lock()
		frame := h.lastFrame
		h.mu.Unlock()
		return frame, nil, true
	}
	if frame, ok := h.journal.KeyframeBySequence(sequence); ok {
		return frame, nil, true
	}

	_, oldest, newest := h.journal.KeyframeWindow()
	reason := "expired"
	if sequence > newest {
		reason = "unknown"
	}
	loggingnetwork.KeyframeNack(
		context.Background(),
		h.publisher,
		h.Tick(),
		logging.Participant(id),
		loggingnetwork.KeyframeNackPayload{Sequence: sequence, Reason: reason},
		map[string]any{"oldest": oldest, "newest": newest},
	)
	h.telemetry.Add("hub_keyframe_nacks_total", 1)
	return sim.Keyframe{}, &proto.KeyframeNack{Sequence: sequence, Reason: reason, Resync: true}, true
}

// Step advances the session by one tick of dt seconds and broadcasts the
// result. It must not run concurrently with Run.
func (h *Hub) Step(now time.Time, dt float64) sim.LoopStepResult {
	start := h.clock.Now()
	result := h.loop.Advance(sim.LoopTickContext{Tick: h.tick.Load() + 1, Now: now, Delta: dt})
	result.Duration = h.clock.Now().Sub(start)
	h.afterStep(result)
	return result
}

// Run drives the loop until ctx is cancelled, then tears the session down and
// tells every subscriber the host is gone.
func (h *Hub) Run(ctx context.Context) error {
	h.loop.Run(ctx.Done())
	h.Shutdown("server_shutdown")
	return nil
}

// Shutdown closes the session. It must not run concurrently with Run or Step.
func (h *Hub) Shutdown(reason string) {
	if err := h.authority.Teardown(reason); err != nil {
		return
	}
	h.mu.Lock()
	h.sequence++
	sequence := h.sequence
	h.closed = true
	subs := h.subscribersLocked()
	h.subscribers = make(map[string]*Subscriber)
	h.mu.Unlock()

	h.broadcast(subs, proto.PatchBatch{
		Tick:       h.Tick(),
		Sequence:   sequence,
		ServerTime: h.clock.Now().UnixMilli(),
		Patches:    h.authority.DrainPatches(),
	})
	for _, sub := range subs {
		sub.conn.Close()
	}
	close(h.results)
	h.logger.Printf("[hub] session %s closed: %s", h.SessionID(), reason)
}

func (h *Hub) prepare(ctx sim.LoopTickContext) {
	h.tick.Store(ctx.Tick)
	h.reapStale(ctx.Now)
}

// reapStale disconnects participants whose heartbeats stopped.
func (h *Hub) reapStale(now time.Time) {
	if h.cfg.DisconnectAfter <= 0 {
		return
	}
	var stale []string
	var silences []time.Duration
	h.mu.Lock()
	for id, state := range h.participants {
		if silence := now.Sub(state.lastHeartbeat); silence > h.cfg.DisconnectAfter {
			stale = append(stale, id)
			silences = append(silences, silence)
		}
	}
	h.mu.Unlock()

	for i, id := range stale {
		h.logger.Printf("disconnecting %s due to heartbeat timeout", id)
		loggingnetwork.HeartbeatTimeout(
			context.Background(),
			h.publisher,
			h.Tick(),
			logging.Participant(id),
			loggingnetwork.HeartbeatTimeoutPayload{SilenceMillis: silences[i].Milliseconds()},
			nil,
		)
		h.Disconnect(id, "heartbeat_timeout")
	}
}

func (h *Hub) afterStep(result sim.LoopStepResult) {
	_, span := h.tracer.Start(
		context.Background(),
		"hub.tick",
		trace.WithTimestamp(result.Now),
		trace.WithAttributes(
			attribute.Int64("tick", int64(result.Tick)),
			attribute.Int("commands", len(result.Commands)),
			attribute.Int("patches", len(result.Patches)),
		),
	)
	defer span.End()

	h.checkBudget(result)

	h.mu.Lock()
	h.sequence++
	frame := result.Snapshot
	frame.Sequence = h.sequence
	recorded := h.journal.RecordKeyframe(frame)
	frame.RecordedAt = h.clock.Now()
	h.lastFrame = frame
	subs := h.subscribersLocked()
	h.mu.Unlock()

	h.telemetry.Store("hub_keyframe_window", uint64(recorded.Size))
	if len(result.Patches) == 0 {
		return
	}
	h.broadcast(subs, proto.PatchBatch{
		Tick:       result.Tick,
		Sequence:   frame.Sequence,
		ServerTime: result.Now.UnixMilli(),
		Patches:    result.Patches,
	})
}

func (h *Hub) checkBudget(result sim.LoopStepResult) {
	if result.Budget <= 0 || result.Duration <= result.Budget {
		h.overrunStreak = 0
		return
	}
	h.overrunStreak++
	h.telemetry.Add("sim_tick_budget_overrun_total", 1)
	loggingsimulation.TickBudgetOverrun(
		context.Background(),
		h.publisher,
		result.Tick,
		loggingsimulation.TickBudgetOverrunPayload{
			DurationMillis: result.Duration.Milliseconds(),
			BudgetMillis:   result.Budget.Milliseconds(),
			Ratio:          float64(result.Duration) / float64(result.Budget),
			Streak:         h.overrunStreak,
		},
		nil,
	)
}

func (h *Hub) subscribersLocked() map[string]*Subscriber {
	subs := make(map[string]*Subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	return subs
}

// broadcast sends one patch batch to every subscriber. Subscribers whose
// write fails are disconnected.
func (h *Hub) broadcast(subs map[string]*Subscriber, batch proto.PatchBatch) {
	if len(subs) == 0 {
		return
	}
	data, err := proto.EncodePatchBatch(batch)
	if err != nil {
		h.logger.Printf("failed to marshal patch batch: %v", err)
		return
	}
	for id, sub := range subs {
		if err := sub.Write(data); err != nil {
			h.logger.Printf("failed to send update to %s: %v", id, err)
			h.Disconnect(id, "write_failed")
			continue
		}
	}
	h.telemetry.Add("hub_broadcast_bytes_total", uint64(len(data)*len(subs)))
	h.telemetry.Add("hub_broadcasts_total", 1)
}

func (h *Hub) onReject(cmd sim.Command, reason string) {
	h.telemetry.Add("hub_command_rejected_"+reason, 1)
	loggingnetwork.CommandRejected(
		context.Background(),
		h.publisher,
		h.Tick(),
		logging.Participant(cmd.ActorID),
		loggingnetwork.CommandRejectedPayload{Command: string(cmd.Type), Reason: reason},
		nil,
	)
}

func (h *Hub) onMatchOver(result session.Result) {
	select {
	case h.results <- result:
	default:
		h.logger.Printf("[hub] dropping result for session %s: results buffer full", result.SessionID)
	}
}

func (h *Hub) onQueueWarning(length int) {
	h.logger.Printf("[backpressure] command queue length=%d", length)
}

func (h *Hub) onCommandDrop(reason string, cmd sim.Command) {
	loggingsimulation.CommandDropped(
		context.Background(),
		h.publisher,
		h.Tick(),
		logging.Participant(cmd.ActorID),
		loggingsimulation.CommandDroppedPayload{Command: string(cmd.Type), Reason: reason, Count: 1},
		nil,
	)
}
