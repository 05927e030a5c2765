package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitTelemetry initializes OpenTelemetry with OTLP exporters for metrics and
// traces. Exporter configuration is read from the standard environment
// variables:
// - OTEL_EXPORTER_OTLP_ENDPOINT: The OTLP endpoint
// - OTEL_EXPORTER_OTLP_HEADERS: Headers for authentication
// - OTEL_SERVICE_NAME: Service name override (defaults to serviceName parameter)
//
// Returns a shutdown function that should be called on graceful shutdown.
func InitTelemetry(ctx context.Context, serviceName, version string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithOSType(),
		resource.WithContainer(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// A missing collector should never stop the server from starting
	traceShutdown, err := initTraceProvider(ctx, res)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize trace provider, continuing without tracing")
		traceShutdown = func(ctx context.Context) error { return nil }
	}

	metricShutdown, err := initMeterProvider(ctx, res)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize meter provider, continuing without metrics")
		metricShutdown = func(ctx context.Context) error { return nil }
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", serviceName).
		Str("version", version).
		Msg("OpenTelemetry initialized")

	shutdown := func(ctx context.Context) error {
		var errs []error

		if err := traceShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
		}

		if err := metricShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
		}

		if len(errs) > 0 {
			return fmt.Errorf("telemetry shutdown errors: %v", errs)
		}

		return nil
	}

	return shutdown, nil
}

// HTTPMiddleware instruments inbound HTTP handlers with a span per request.
// Spans go to the global tracer provider, so without InitTelemetry this is a
// no-op.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(serviceName)
}

// initTraceProvider initializes the global trace provider with an OTLP exporter
func initTraceProvider(ctx context.Context, res *resource.Resource) (func(context.Context) error, error) {
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()), // TODO: make the sampler configurable
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// initMeterProvider initializes the global meter provider with an OTLP exporter
func initMeterProvider(ctx context.Context, res *resource.Resource) (func(context.Context) error, error) {
	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
