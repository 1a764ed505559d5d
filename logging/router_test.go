package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/ddm94/SlimyKitchenOnline/logging"
	"github.com/ddm94/SlimyKitchenOnline/logging/sinks"
)

func newTestRouter(t *testing.T, cfg logging.Config) (*logging.Router, *sinks.MemorySink) {
	t.Helper()
	memory := sinks.NewMemorySink()
	clock := logging.ClockFunc(func() time.Time { return time.Unix(100, 0) })
	router, err := logging.NewRouter(clock, cfg, []logging.NamedSink{{Name: logging.SinkMemory, Sink: memory}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router, memory
}

func TestRouterDeliversAndStampsEvents(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"session": "abc"}
	router, memory := newTestRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{Type: "test.event", Tick: 7, Severity: logging.SeverityInfo})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].Time.Equal(time.Unix(100, 0)) {
		t.Fatalf("expected clock stamp, got %v", events[0].Time)
	}
	if events[0].Extra["session"] != "abc" {
		t.Fatalf("expected router fields merged, got %v", events[0].Extra)
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("expected 1 routed event, got %d", stats.EventsTotal)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.MinimumSeverity = logging.SeverityWarn
	router, memory := newTestRouter(t, cfg)

	router.Publish(context.Background(), logging.Event{Type: "debug.event", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "warn.event", Severity: logging.SeverityWarn})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 || events[0].Type != "warn.event" {
		t.Fatalf("expected only the warn event, got %+v", events)
	}
}

func TestRouterIgnoresPublishAfterClose(t *testing.T) {
	router, memory := newTestRouter(t, logging.DefaultConfig())
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	router.Publish(context.Background(), logging.Event{Type: "late.event", Severity: logging.SeverityError})
	if got := len(memory.Events()); got != 0 {
		t.Fatalf("expected no events after close, got %d", got)
	}
}

func TestWithFieldsDoesNotOverrideEventExtra(t *testing.T) {
	var captured logging.Event
	base := logging.PublisherFunc(func(_ context.Context, event logging.Event) { captured = event })
	pub := logging.WithFields(base, map[string]any{"region": "eu", "tick": "field"})

	pub.Publish(context.Background(), logging.Event{Type: "x", Extra: map[string]any{"tick": "event"}})

	if captured.Extra["region"] != "eu" {
		t.Fatalf("expected region field, got %v", captured.Extra)
	}
	if captured.Extra["tick"] != "event" {
		t.Fatalf("expected event extra to win, got %v", captured.Extra["tick"])
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]logging.Severity{"debug": logging.SeverityDebug, "": logging.SeverityInfo, "WARN": logging.SeverityWarn, "error": logging.SeverityError}
	for input, want := range cases {
		got, err := logging.ParseSeverity(input)
		if err != nil || got != want {
			t.Fatalf("ParseSeverity(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := logging.ParseSeverity("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
