// Package valkey provides a Valkey/Redis-compatible implementation of the
// ormstore engine.
//
// Every multi-key mutation (save with tag-delta maintenance, delete with
// index cleanup) runs as a single Lua script so the batch is atomic with
// respect to concurrent callers. ID reservation relies on SADD reporting
// whether the member was newly added, and delete relies on DEL reporting
// whether a key existed; neither is ever a check followed by a separate
// write.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/ormstore"
)

const (
	// DefaultKeyPrefix is the default prefix for all keys.
	DefaultKeyPrefix = "oauthkit:"

	// idLogLength is the number of characters of an entity ID included in
	// logs.
	idLogLength = 8

	// scanBatchSize is the number of keys fetched per SCAN iteration during
	// FullCleanup.
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection
	// verification.
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g. "localhost:6379".
	Address string

	// Password is the optional password for authentication.
	Password string

	// DB is the optional database number (default 0).
	DB int

	// KeyPrefix is the prefix for all keys (default "oauthkit:").
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections.
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of ormstore.Provider.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

var _ ormstore.Provider = (*Store)(nil)

// New creates a new Valkey-backed store. It verifies the connection before
// returning.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetInstrumentation enables metrics and tracing for the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// Engine returns the engine bound to the given kind.
func (s *Store) Engine(kind ormstore.Kind) ormstore.Engine {
	return &engine{store: s, kind: kind}
}

// startSpan opens a storage-operation span when tracing is enabled.
func (s *Store) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation))
}

// record finishes a storage-operation span and records the metrics pair.
func (s *Store) record(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	if s.instrumentation == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	durationMs := float64(time.Since(start).Milliseconds())
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

// isNilError checks if the error indicates a missing key.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// ============================================================
// Lua scripts for atomic multi-key batches
// ============================================================

// luaSaveEntity registers the entity ID, writes the attribute blob, and
// applies the tag delta against the previously saved tag snapshot as one
// atomic batch. Saving unchanged attributes leaves the indexes untouched.
//
// KEYS[1] = ID set        ({prefix}{kind}:__all__)
// KEYS[2] = object blob   ({prefix}{kind}:object:{id})
// KEYS[3] = tag snapshot  ({prefix}{kind}:object:{id}:tags)
// ARGV[1] = entity ID
// ARGV[2] = JSON blob
// ARGV[3] = deadline as Unix seconds, or 0 for no expiry
// ARGV[4] = tag index key prefix ({prefix}{kind}:tags:)
// ARGV[5..] = current tag set
const luaSaveEntity = `
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])

local deadline = tonumber(ARGV[3])
if deadline > 0 then
    redis.call('EXPIREAT', KEYS[2], deadline)
    redis.call('EXPIREAT', KEYS[3], deadline)
else
    redis.call('PERSIST', KEYS[2])
    redis.call('PERSIST', KEYS[3])
end

local fresh = {}
for i = 5, #ARGV do
    fresh[ARGV[i]] = true
end

local stale = redis.call('SMEMBERS', KEYS[3])
for _, tag in ipairs(stale) do
    if not fresh[tag] then
        redis.call('SREM', ARGV[4] .. tag, ARGV[1])
        redis.call('SREM', KEYS[3], tag)
    end
end

for i = 5, #ARGV do
    redis.call('SADD', ARGV[4] .. ARGV[i], ARGV[1])
    redis.call('SADD', KEYS[3], ARGV[i])
end

return 'OK'
`

// luaDeleteEntity removes the blob, the ID-set membership, the tag snapshot,
// and every tag index entry as one atomic batch. It returns whether the
// entity's blob actually existed, which is the sole gate for at-most-once
// redemption: when the store has already reaped an expired blob (or a
// concurrent caller deleted it), DEL reports 0.
//
// KEYS[1] = ID set
// KEYS[2] = object blob
// KEYS[3] = tag snapshot
// ARGV[1] = entity ID
// ARGV[2] = tag index key prefix
const luaDeleteEntity = `
local existed = redis.call('DEL', KEYS[2])
redis.call('SREM', KEYS[1], ARGV[1])

local tags = redis.call('SMEMBERS', KEYS[3])
for _, tag in ipairs(tags) do
    redis.call('SREM', ARGV[2] .. tag, ARGV[1])
end
redis.call('DEL', KEYS[3])

return existed
`
