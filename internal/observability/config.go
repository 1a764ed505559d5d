// Package observability wires optional tracing and continuous profiling.
package observability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pyroscope "github.com/grafana/pyroscope-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config captures opt-in observability toggles that wire into the server.
// Empty endpoints leave the matching facility disabled.
type Config struct {
	ServiceName      string
	OTLPEndpoint     string
	PyroscopeAddress string
	Tags             map[string]string
}

// ShutdownFunc flushes and stops whatever Setup started.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs the global tracer provider and starts the profiler when
// configured.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "slimy-kitchen"
	}

	var shutdowns []ShutdownFunc
	shutdownAll := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		stop, err := setupTracing(ctx, service, endpoint)
		if err != nil {
			return noop, fmt.Errorf("setup tracing: %w", err)
		}
		shutdowns = append(shutdowns, stop)
	}

	if addr := strings.TrimSpace(cfg.PyroscopeAddress); addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: service,
			ServerAddress:   addr,
			Tags:            cfg.Tags,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			_ = shutdownAll(ctx)
			return noop, fmt.Errorf("start profiler: %w", err)
		}
		shutdowns = append(shutdowns, func(context.Context) error { return profiler.Stop() })
	}

	if len(shutdowns) == 0 {
		return noop, nil
	}
	return shutdownAll, nil
}

func setupTracing(ctx context.Context, service, endpoint string) (ShutdownFunc, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
