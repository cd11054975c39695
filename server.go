package oauthkit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oauthkit/oauthkit/instrumentation"
	"github.com/oauthkit/oauthkit/internal/util"
	"github.com/oauthkit/oauthkit/ormstore"
)

// truncateID shortens codes and tokens for log output so full credentials
// never land in logs.
func truncateID(id string) string {
	return util.SafeTruncate(id, 8)
}

// ID and secret lengths over the alphanumeric corpus.
const (
	ClientIDLength      = 16
	ClientSecretLength  = 64
	CodeIDLength        = 32
	AccessTokenIDLength = 64
)

// Attribute names shared across entity kinds.
const (
	AttrClientType   = "client_type"
	AttrRedirectURLs = "redirect_urls"
	AttrClientSecret = "client_secret"
	AttrClientID     = "client_id"
	AttrRedirectURI  = "redirect_uri"
	AttrScope        = "scope"
	AttrState        = "state"
	AttrUserID       = "user_id"
	AttrAccepted     = "accepted"
	AttrUsername     = "username"
)

// Entity kind descriptors. Secrets and URL lists are never tagged; codes
// are never searched by attribute, so their kind carries no tag index at
// all.
var (
	KindClient = ormstore.Kind{
		Name:     "client",
		IDLength: ClientIDLength,
		Tagged:   true,
		Untagged: []string{AttrRedirectURLs, AttrClientSecret},
	}

	KindCode = ormstore.Kind{
		Name:     "code",
		IDLength: CodeIDLength,
	}

	KindAccessToken = ormstore.Kind{
		Name:     "access_token",
		IDLength: AccessTokenIDLength,
		Tagged:   true,
		Untagged: []string{AttrClientSecret},
	}
)

// Server is the OAuth authorization and token issuance engine. It is
// stateless apart from its configuration: every operation is a
// request-scoped round trip through the storage engines, so a single Server
// may be shared by any number of concurrent callers.
type Server struct {
	cfg    Config
	logger *slog.Logger

	clients ormstore.Engine
	codes   ormstore.Engine
	tokens  ormstore.Engine

	inst *instrumentation.Instrumentation

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Server on top of a storage provider.
func New(store ormstore.Provider, cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		clients: store.Engine(KindClient),
		codes:   store.Engine(KindCode),
		tokens:  store.Engine(KindAccessToken),
		inst:    cfg.Instrumentation,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the server's time source. Intended for tests.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// FullCleanup wipes every entity of every kind. Administrative and test
// tooling only; protocol logic never calls it.
func (s *Server) FullCleanup(ctx context.Context) error {
	for _, engine := range []ormstore.Engine{s.clients, s.codes, s.tokens} {
		if err := engine.FullCleanup(ctx); err != nil {
			return fmt.Errorf("full cleanup: %w", err)
		}
	}
	return nil
}
