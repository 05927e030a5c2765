package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/replydeck/replydeck"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Scope resolution metrics
	ScopeResolveTotal    metric.Int64Counter
	ScopeResolveDuration metric.Float64Histogram

	// Secret codec metrics
	SecretsDecodeTotal metric.Int64Counter
	SecretsEncodeTotal metric.Int64Counter

	// HTTP metrics
	HTTPRequestsTotal metric.Int64Counter

	// Mailbox metrics
	MailboxesCreatedTotal metric.Int64Counter
	CredentialReadsTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Scope resolution metrics
	m.ScopeResolveTotal, _ = meter.Int64Counter(
		"replydeck.scope.resolve.total",
		metric.WithDescription("Total number of scope resolutions by outcome"),
		metric.WithUnit("{resolution}"),
	)

	m.ScopeResolveDuration, _ = meter.Float64Histogram(
		"replydeck.scope.resolve.duration",
		metric.WithDescription("Duration of scope resolutions"),
		metric.WithUnit("ms"),
	)

	// Secret codec metrics
	m.SecretsDecodeTotal, _ = meter.Int64Counter(
		"replydeck.secrets.decode.total",
		metric.WithDescription("Total number of secret decodes by storage format"),
		metric.WithUnit("{secret}"),
	)

	m.SecretsEncodeTotal, _ = meter.Int64Counter(
		"replydeck.secrets.encode.total",
		metric.WithDescription("Total number of secret encodes"),
		metric.WithUnit("{secret}"),
	)

	// HTTP metrics
	m.HTTPRequestsTotal, _ = meter.Int64Counter(
		"replydeck.http.requests.total",
		metric.WithDescription("Total number of HTTP requests by route and status"),
		metric.WithUnit("{request}"),
	)

	// Mailbox metrics
	m.MailboxesCreatedTotal, _ = meter.Int64Counter(
		"replydeck.mailboxes.created.total",
		metric.WithDescription("Total number of mailboxes connected by provider"),
		metric.WithUnit("{mailbox}"),
	)

	m.CredentialReadsTotal, _ = meter.Int64Counter(
		"replydeck.mailboxes.credential_reads.total",
		metric.WithDescription("Total number of mailbox credential reads"),
		metric.WithUnit("{read}"),
	)

	return m
}
