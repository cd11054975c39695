package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the oauthkit library.
type Metrics struct {
	// Storage engine metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// OAuth flow metrics
	ClientsRegistered  metric.Int64Counter
	CodesIssued        metric.Int64Counter
	CodesAccepted      metric.Int64Counter
	CodesDeclined      metric.Int64Counter
	TokensIssued       metric.Int64Counter
	TokenVerifications metric.Int64Counter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	var err error

	storageMeter := inst.Meter("storage")

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"oauthkit.storage.operations.total",
		metric.WithDescription("Total number of storage engine operations"),
	)
	if err != nil {
		return nil, err
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"oauthkit.storage.operation.duration",
		metric.WithDescription("Storage engine operation duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	serverMeter := inst.Meter("server")

	m.ClientsRegistered, err = serverMeter.Int64Counter(
		"oauthkit.clients.registered.total",
		metric.WithDescription("Total number of registered OAuth clients"),
	)
	if err != nil {
		return nil, err
	}

	m.CodesIssued, err = serverMeter.Int64Counter(
		"oauthkit.codes.issued.total",
		metric.WithDescription("Total number of authorization codes issued"),
	)
	if err != nil {
		return nil, err
	}

	m.CodesAccepted, err = serverMeter.Int64Counter(
		"oauthkit.codes.accepted.total",
		metric.WithDescription("Total number of authorization codes accepted by resource owners"),
	)
	if err != nil {
		return nil, err
	}

	m.CodesDeclined, err = serverMeter.Int64Counter(
		"oauthkit.codes.declined.total",
		metric.WithDescription("Total number of authorization codes declined by resource owners"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensIssued, err = serverMeter.Int64Counter(
		"oauthkit.tokens.issued.total",
		metric.WithDescription("Total number of access tokens issued"),
	)
	if err != nil {
		return nil, err
	}

	m.TokenVerifications, err = serverMeter.Int64Counter(
		"oauthkit.tokens.verifications.total",
		metric.WithDescription("Total number of bearer token verifications"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordStorageOperation records a storage engine operation with its result
// and duration.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordClientRegistration records a successful client registration.
func (m *Metrics) RecordClientRegistration(ctx context.Context, clientType string) {
	m.ClientsRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_type", clientType),
	))
}

// RecordCodeIssued records a persisted authorization code.
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeAccepted records a code accepted by the resource owner.
func (m *Metrics) RecordCodeAccepted(ctx context.Context, clientID string) {
	m.CodesAccepted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeDeclined records a code declined by the resource owner.
func (m *Metrics) RecordCodeDeclined(ctx context.Context, clientID string) {
	m.CodesDeclined.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenIssued records an access token issued by a grant flow.
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
	))
}

// RecordTokenVerification records a bearer token verification attempt.
func (m *Metrics) RecordTokenVerification(ctx context.Context, valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.TokenVerifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}
