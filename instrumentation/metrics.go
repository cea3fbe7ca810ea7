package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments for the authorization flows, resource
// validation, storage backends, and the HTTP surface.
type Metrics struct {
	// Authorization flow metrics.
	codesIssued     metric.Int64Counter
	codesExchanged  metric.Int64Counter
	tokensRefreshed metric.Int64Counter
	tokensRevoked   metric.Int64Counter

	// Resource validation metrics.
	resourceValidations metric.Int64Counter

	// Protocol error metrics.
	protocolErrors metric.Int64Counter

	// Storage metrics.
	storageOperations metric.Int64Counter
	storageDuration   metric.Float64Histogram

	// HTTP metrics.
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	meter := inst.Meter("metrics")
	m := &Metrics{}
	var err error

	m.codesIssued, err = meter.Int64Counter(
		"helix.codes.issued",
		metric.WithDescription("Authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating codes.issued counter: %w", err)
	}

	m.codesExchanged, err = meter.Int64Counter(
		"helix.codes.exchanged",
		metric.WithDescription("Authorization code exchange attempts by result"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating codes.exchanged counter: %w", err)
	}

	m.tokensRefreshed, err = meter.Int64Counter(
		"helix.tokens.refreshed",
		metric.WithDescription("Refresh token grants by result"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tokens.refreshed counter: %w", err)
	}

	m.tokensRevoked, err = meter.Int64Counter(
		"helix.tokens.revoked",
		metric.WithDescription("Tokens revoked through the client-user index"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tokens.revoked counter: %w", err)
	}

	m.resourceValidations, err = meter.Int64Counter(
		"helix.resource.validations",
		metric.WithDescription("Bearer token validations by result"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource.validations counter: %w", err)
	}

	m.protocolErrors, err = meter.Int64Counter(
		"helix.protocol.errors",
		metric.WithDescription("Protocol errors returned to clients by kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating protocol.errors counter: %w", err)
	}

	m.storageOperations, err = meter.Int64Counter(
		"helix.storage.operations",
		metric.WithDescription("Storage backend operations by operation and result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating storage.operations counter: %w", err)
	}

	m.storageDuration, err = meter.Float64Histogram(
		"helix.storage.duration",
		metric.WithDescription("Storage backend operation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating storage.duration histogram: %w", err)
	}

	m.httpRequests, err = meter.Int64Counter(
		"helix.http.requests",
		metric.WithDescription("HTTP requests by endpoint and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http.requests counter: %w", err)
	}

	m.httpDuration, err = meter.Float64Histogram(
		"helix.http.duration",
		metric.WithDescription("HTTP request duration by endpoint"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating http.duration histogram: %w", err)
	}

	return m, nil
}

// RecordCodeIssued records an issued authorization code.
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.codesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeExchanged records an authorization code exchange attempt.
// Result is "success", "invalid_grant", or another error kind.
func (m *Metrics) RecordCodeExchanged(ctx context.Context, clientID, result string) {
	m.codesExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("result", result),
	))
}

// RecordTokenRefreshed records a refresh token grant attempt.
func (m *Metrics) RecordTokenRefreshed(ctx context.Context, clientID, result string) {
	m.tokensRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("result", result),
	))
}

// RecordTokensRevoked records tokens revoked in one bulk operation.
func (m *Metrics) RecordTokensRevoked(ctx context.Context, clientID string, count int) {
	m.tokensRevoked.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordResourceValidation records a bearer token validation.
// Result is "valid", "invalid", or "denied".
func (m *Metrics) RecordResourceValidation(ctx context.Context, result string) {
	m.resourceValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordProtocolError records a protocol error surfaced to a client.
func (m *Metrics) RecordProtocolError(ctx context.Context, kind string) {
	m.protocolErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordStorageOperation records one storage backend call with its duration.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	)
	m.storageOperations.Add(ctx, 1, attrs)
	m.storageDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHTTPRequest records one HTTP request against an endpoint.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, endpoint, method string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("method", method),
		attribute.Int("status", status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}
