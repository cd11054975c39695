// Package instrumentation provides OpenTelemetry metrics and tracing for the
// oauthkit library.
//
// Instrumentation is optional: when disabled (or when a component is built
// without an Instrumentation instance) no-op providers are used and the
// overhead is zero. Storage backends record a span and a counter/duration
// pair per operation; the protocol server records flow-level counters
// (registrations, codes issued/accepted/declined, tokens issued, token
// verifications).
package instrumentation
