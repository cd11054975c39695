package oauthkit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oauthkit/oauthkit/ormstore"
)

// TokenTypeBearer is the token_type of every issued access token.
const TokenTypeBearer = "bearer"

// AccessToken is an issued access token with the attributes copied from its
// grant.
type AccessToken struct {
	server *Server
	entity *ormstore.Entity
}

// ID returns the token value presented by the client.
func (t *AccessToken) ID() string {
	return t.entity.ID
}

// ClientID returns the client the token was issued to, or "" when the grant
// carried no client.
func (t *AccessToken) ClientID() string {
	return t.entity.Attrs.GetString(AttrClientID)
}

// Scope returns the space-delimited scope string granted to the token.
func (t *AccessToken) Scope() string {
	return t.entity.Attrs.GetString(AttrScope)
}

// Scopes returns the granted scopes split into a slice.
func (t *AccessToken) Scopes() []string {
	return strings.Fields(t.Scope())
}

// ExpiresAt returns the token deadline; zero means the token never expires.
func (t *AccessToken) ExpiresAt() time.Time {
	return t.entity.ExpiresAt
}

// Attr returns an arbitrary attribute of the token record, e.g. the user ID
// stored by the grant flow.
func (t *AccessToken) Attr(name string) (ormstore.Value, bool) {
	v, ok := t.entity.Attrs[name]
	return v, ok
}

// Response builds the token endpoint JSON payload for the token (RFC 6749
// §5.1). expires_in is computed against now and omitted for never-expiring
// tokens.
func (t *AccessToken) Response(now time.Time) TokenResponse {
	resp := TokenResponse{
		AccessToken: t.entity.ID,
		TokenType:   TokenTypeBearer,
		Scope:       t.Scope(),
	}
	if ttl, ok := RemainingTTL(t.entity.ExpiresAt, now); ok {
		resp.ExpiresIn = ttl
	}
	return resp
}

// Revoke deletes the token so later verifications fail.
func (t *AccessToken) Revoke(ctx context.Context) error {
	if _, err := t.server.tokens.Delete(ctx, t.entity.ID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// ExtractBearerToken pulls the bearer token out of a resource request, which
// may carry it in the Authorization header, a form field, or a query
// parameter (RFC 6750 §2). The header must be the exact two-part
// "Bearer <token>" form with a literal scheme. Exactly one source must be
// used: when several carry a token the request is ambiguous and "" is
// returned, as it is for a malformed Authorization header.
func ExtractBearerToken(authorizationHeader, formValue, queryValue string) string {
	var fromHeader string
	if authorizationHeader != "" {
		parts := strings.Fields(authorizationHeader)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		fromHeader = parts[1]
	}

	var token string
	sources := 0
	for _, candidate := range []string{fromHeader, formValue, queryValue} {
		if candidate != "" {
			token = candidate
			sources++
		}
	}
	if sources != 1 {
		return ""
	}
	return token
}

// VerifyAccessToken checks a presented bearer token and returns the token
// record. When required scopes are given, the token must hold at least one
// of them (OR semantics); with none given any live token passes. Unknown,
// expired, and under-scoped tokens all fail with ErrInvalidAccessToken.
func (s *Server) VerifyAccessToken(ctx context.Context, token string, requiredScopes ...string) (*AccessToken, error) {
	fail := func() (*AccessToken, error) {
		if s.inst != nil {
			s.inst.Metrics().RecordTokenVerification(ctx, false)
		}
		return nil, ErrInvalidAccessToken
	}

	if token == "" {
		return fail()
	}
	entity, err := s.tokens.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if entity == nil {
		return fail()
	}

	at := &AccessToken{server: s, entity: entity}
	if len(requiredScopes) > 0 {
		granted := at.Scopes()
		matched := false
		for _, required := range requiredScopes {
			if slices.Contains(granted, required) {
				matched = true
				break
			}
		}
		if !matched {
			return fail()
		}
	}

	if s.inst != nil {
		s.inst.Metrics().RecordTokenVerification(ctx, true)
	}
	return at, nil
}
