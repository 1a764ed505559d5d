package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ddm94/SlimyKitchenOnline/internal/catalog"
	"github.com/ddm94/SlimyKitchenOnline/internal/config"
	"github.com/ddm94/SlimyKitchenOnline/internal/hub"
	"github.com/ddm94/SlimyKitchenOnline/internal/kitchen"
	"github.com/ddm94/SlimyKitchenOnline/internal/match"
	servernet "github.com/ddm94/SlimyKitchenOnline/internal/net"
	"github.com/ddm94/SlimyKitchenOnline/internal/observability"
	"github.com/ddm94/SlimyKitchenOnline/internal/orders"
	"github.com/ddm94/SlimyKitchenOnline/internal/session"
	"github.com/ddm94/SlimyKitchenOnline/internal/sim"
	"github.com/ddm94/SlimyKitchenOnline/internal/store"
	"github.com/ddm94/SlimyKitchenOnline/internal/telemetry"
	"github.com/ddm94/SlimyKitchenOnline/logging"
	loggingSinks "github.com/ddm94/SlimyKitchenOnline/logging/sinks"
)

const shutdownGrace = 5 * time.Second

// Options carries process-level collaborators that do not come from the
// environment.
type Options struct {
	Logger telemetry.Logger
	Stdout io.Writer
}

// Run starts the session, the HTTP server and the match recorder, and blocks
// until ctx is cancelled or one of them fails.
func Run(ctx context.Context, cfg config.Config, opts Options) error {
	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	shutdownObservability, err := observability.Setup(ctx, observability.Config{
		ServiceName:      "slimy-kitchen",
		OTLPEndpoint:     cfg.OTLPEndpoint,
		PyroscopeAddress: cfg.PyroscopeAddress,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownObservability(flushCtx); err != nil {
			telemetryLogger.Printf("observability shutdown: %v", err)
		}
	}()

	router, err := newRouter(cfg, stdout)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	matches, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open match store: %w", err)
	}
	defer func() {
		if err := matches.Close(); err != nil {
			telemetryLogger.Printf("close match store: %v", err)
		}
	}()

	h, err := hub.New(HubConfig(cfg), hub.Dependencies{
		Catalog:   cat,
		SessionID: cfg.SessionID,
		Logger:    telemetryLogger,
		Metrics:   &logging.Metrics{},
		Clock:     logging.SystemClock{},
		Seed:      cfg.Seed,
		Publisher: router,
	})
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}

	handler := servernet.NewHTTPHandler(h, servernet.HTTPHandlerConfig{
		ClientDir: cfg.ClientDir,
		Logger:    telemetryLogger,
		Matches:   matches,
	})
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return h.Run(groupCtx)
	})

	group.Go(func() error {
		return recordResults(groupCtx, h.Results(), matches, telemetryLogger)
	})

	group.Go(func() error {
		telemetryLogger.Printf("server listening on %s (session %s, catalog %s)", srv.Addr, h.SessionID(), cat.Fingerprint())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// HubConfig maps process settings onto the hub and session layers.
func HubConfig(cfg config.Config) hub.Config {
	hubCfg := hub.DefaultConfig()
	hubCfg.Loop = sim.DefaultLoopConfig()
	hubCfg.Loop.TickRate = cfg.TickRate
	hubCfg.Loop.CommandCapacity = cfg.CommandCapacity
	hubCfg.Loop.PerActorLimit = cfg.PerActorLimit
	hubCfg.Session = session.Config{
		Match: match.Config{
			CountdownSeconds: cfg.CountdownSeconds,
			PlaySeconds:      cfg.PlaySeconds,
		},
		Orders: orders.Config{
			Capacity:      cfg.OrderCapacity,
			SpawnInterval: cfg.OrderInterval,
			ExpirySeconds: cfg.OrderExpirySeconds,
		},
		Kitchen: kitchen.Config{
			PlateSpawnSeconds: cfg.PlateSpawnSeconds,
			MaxPlates:         cfg.MaxPlates,
		},
	}
	hubCfg.KeyframeCapacity = cfg.KeyframeCapacity
	hubCfg.KeyframeMaxAge = cfg.KeyframeMaxAge
	hubCfg.HeartbeatInterval = cfg.HeartbeatInterval
	hubCfg.DisconnectAfter = 3 * cfg.HeartbeatInterval
	return hubCfg
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("load embedded catalog: %w", err)
		}
		return cat, nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

func newRouter(cfg config.Config, stdout io.Writer) (*logging.Router, error) {
	logConfig := logging.DefaultConfig()
	logConfig.EnabledSinks = cfg.LogSinks
	severity, err := logging.ParseSeverity(cfg.LogMinSeverity)
	if err != nil {
		return nil, err
	}
	logConfig.MinimumSeverity = severity
	logConfig.JSON.FilePath = cfg.LogJSONPath

	var sinks []logging.NamedSink
	if logConfig.HasSink(logging.SinkConsole) {
		sinks = append(sinks, logging.NamedSink{
			Name: logging.SinkConsole,
			Sink: loggingSinks.NewConsoleSink(stdout, logConfig.Console),
		})
	}
	if logConfig.HasSink(logging.SinkJSON) {
		if logConfig.JSON.FilePath == "" {
			return nil, fmt.Errorf("json sink enabled without a file path")
		}
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log: %w", err)
		}
		sinks = append(sinks, logging.NamedSink{
			Name: logging.SinkJSON,
			Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval),
		})
	}
	if logConfig.HasSink(logging.SinkMemory) {
		sinks = append(sinks, logging.NamedSink{
			Name: logging.SinkMemory,
			Sink: loggingSinks.NewMemorySink(),
		})
	}
	return logging.NewRouter(logging.SystemClock{}, logConfig, sinks)
}

// ResultRecorder persists finished matches.
type ResultRecorder interface {
	RecordMatch(ctx context.Context, result session.Result) (store.MatchRecord, error)
}

// recordResults drains match results until the hub closes the channel.
func recordResults(ctx context.Context, results <-chan session.Result, recorder ResultRecorder, logger telemetry.Logger) error {
	for result := range results {
		record, err := recorder.RecordMatch(context.WithoutCancel(ctx), result)
		if err != nil {
			logger.Printf("failed to record match for session %s: %v", result.SessionID, err)
			continue
		}
		logger.Printf("recorded match %s: completed=%d failed=%d", record.ID, record.Completed, record.Failed)
	}
	return nil
}
