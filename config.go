package oauthkit

import (
	"log/slog"
	"time"

	"github.com/oauthkit/oauthkit/instrumentation"
)

const (
	// DefaultAuthorizationCodeTimeout is how long an issued authorization
	// code stays redeemable.
	DefaultAuthorizationCodeTimeout = time.Hour
)

// Config holds the authorization server configuration. The zero value is
// usable: any scope is accepted, codes live for an hour, and access tokens
// never expire unless revoked.
type Config struct {
	// Scopes is the allow-list of grantable scopes. Empty means any scope is
	// accepted.
	Scopes []string

	// AuthorizationCodeTimeout is the TTL of issued authorization codes.
	// Default: one hour.
	AuthorizationCodeTimeout time.Duration

	// AccessTokenTimeout is the TTL of issued access tokens. Zero means
	// tokens never expire unless explicitly revoked.
	AccessTokenTimeout time.Duration

	// Logger for structured logging (optional, uses slog.Default() if not
	// provided).
	Logger *slog.Logger

	// Instrumentation enables OpenTelemetry metrics and tracing (optional).
	Instrumentation *instrumentation.Instrumentation
}

// withDefaults returns the config with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.AuthorizationCodeTimeout == 0 {
		c.AuthorizationCodeTimeout = DefaultAuthorizationCodeTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
