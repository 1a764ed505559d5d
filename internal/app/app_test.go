package app

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ddm94/SlimyKitchenOnline/internal/config"
	"github.com/ddm94/SlimyKitchenOnline/internal/session"
	"github.com/ddm94/SlimyKitchenOnline/internal/store"
	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
	"github.com/ddm94/SlimyKitchenOnline/logging"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestHubConfigMapsSettings(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.TickRate = 20
	cfg.PlaySeconds = 90
	cfg.OrderCapacity = 6
	cfg.MaxPlates = 2
	cfg.HeartbeatInterval = time.Second

	hubCfg := HubConfig(cfg)
	if hubCfg.Loop.TickRate != 20 {
		t.Fatalf("expected tick rate 20, got %d", hubCfg.Loop.TickRate)
	}
	if hubCfg.Session.Match.PlaySeconds != 90 {
		t.Fatalf("expected play seconds 90, got %v", hubCfg.Session.Match.PlaySeconds)
	}
	if hubCfg.Session.Orders.Capacity != 6 {
		t.Fatalf("expected order capacity 6, got %d", hubCfg.Session.Orders.Capacity)
	}
	if hubCfg.Session.Kitchen.MaxPlates != 2 {
		t.Fatalf("expected max plates 2, got %d", hubCfg.Session.Kitchen.MaxPlates)
	}
	if hubCfg.DisconnectAfter != 3*time.Second {
		t.Fatalf("expected disconnect after 3s, got %v", hubCfg.DisconnectAfter)
	}
}

func TestNewRouterRequiresJSONPath(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.LogSinks = []string{logging.SinkJSON}
	if _, err := newRouter(cfg, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected json sink without a path to fail")
	}

	cfg.LogJSONPath = filepath.Join(t.TempDir(), "events.jsonl")
	router, err := newRouter(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	if router.Sink(logging.SinkJSON) == nil {
		t.Fatalf("expected json sink to be registered")
	}
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close router: %v", err)
	}
}

type recorderFunc func(context.Context, session.Result) (store.MatchRecord, error)

func (f recorderFunc) RecordMatch(ctx context.Context, result session.Result) (store.MatchRecord, error) {
	return f(ctx, result)
}

func TestRecordResultsDrainsUntilClosed(t *testing.T) {
	results := make(chan session.Result, 2)
	results <- session.Result{SessionID: "a", Completed: 1}
	results <- session.Result{SessionID: "b"}
	close(results)

	var seen []string
	recorder := recorderFunc(func(_ context.Context, result session.Result) (store.MatchRecord, error) {
		seen = append(seen, result.SessionID)
		if result.SessionID == "b" {
			return store.MatchRecord{}, errors.New("disk full")
		}
		return store.MatchRecord{ID: "m-" + result.SessionID, Completed: result.Completed}, nil
	})

	var buf bytes.Buffer
	logger := telemetry.WrapLogger(log.New(&buf, "", 0))
	if err := recordResults(context.Background(), results, recorder, logger); err != nil {
		t.Fatalf("record results: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected both results recorded, got %v", seen)
	}
	if !strings.Contains(buf.String(), "recorded match m-a") {
		t.Fatalf("expected success log, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Fatalf("expected failure log, got %q", buf.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "matches.db")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{Logger: telemetry.Discard, Stdout: &bytes.Buffer{}})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
