// Package telemetry owns the one process-wide, lock-guarded, opt-in
// OTel tracer/meter provider every other package's package-level
// tracer/meter binds against (spec §9: "telemetry is a single global
// collaborator, initialized once, never threaded through call
// signatures"). Grounded on internal/hooks/hooks_otel.go's span-event
// helpers and the delegating-provider pattern internal/storage/dolt/
// store.go relies on (package-level tracers created at init time
// forward to whatever provider Init later installs).
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	mu       sync.Mutex
	provider *trace.TracerProvider
	meter    *metric.MeterProvider
)

// Config selects whether telemetry is active at all; the zero value
// leaves every tracer a no-op, matching spec §9's "tracing must be
// entirely free when not opted into."
type Config struct {
	Enabled bool
}

// Init installs the real tracer/meter providers, or leaves the
// process on otel's default no-op providers when cfg.Enabled is
// false. Safe to call once per process; a second call is a no-op
// rather than an error, since CLI commands may share an init path
// with library callers that already initialized telemetry.
func Init(_ context.Context, cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if provider != nil || !cfg.Enabled {
		return nil
	}

	tp := trace.NewTracerProvider()
	mp := metric.NewMeterProvider()
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	provider = tp
	meter = mp
	return nil
}

// Shutdown flushes and releases the installed providers, if any.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	if provider == nil {
		return nil
	}
	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	if err := meter.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
	}
	provider = nil
	meter = nil
	return nil
}
