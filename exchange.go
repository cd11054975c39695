package oauthkit

import (
	"context"
	"fmt"
	"time"

	"github.com/oauthkit/oauthkit/ormstore"
	"github.com/oauthkit/oauthkit/security"
)

// Grant types accepted on the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypePassword          = "password"
)

// codeAttrsNotCopied are code attributes that never flow onto the issued
// access token.
var codeAttrsNotCopied = []string{AttrState, AttrAccepted, AttrRedirectURI}

// CodeExchangeRequest is a token request for the authorization code grant
// (RFC 6749 §4.1.3). State is an extension check: when the code was bound to
// a state, the exchange must present the same value.
type CodeExchangeRequest struct {
	GrantType    string
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	State        string

	// Expiry overrides the configured access token TTL for this exchange.
	// Zero keeps the configured default.
	Expiry time.Duration
}

// validateCodeExchange runs every check of the code exchange except
// redemption, in a fixed order so the reported error code is deterministic.
func (s *Server) validateCodeExchange(ctx context.Context, req CodeExchangeRequest) (*Code, error) {
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, invalidErr(ErrorCodeInvalidRequest)
	}
	if req.Code == "" || req.ClientID == "" || req.ClientSecret == "" {
		return nil, invalidErr(ErrorCodeInvalidRequest)
	}
	client, err := s.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, invalidErr(ErrorCodeInvalidClient)
	}
	code, err := s.GetCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, invalidErr(ErrorCodeInvalidGrant)
	}
	// The presented redirect URI goes through the same normalization as the
	// authorization request, so a client with a single registered callback
	// may omit it on both ends.
	redirectURI, err := client.CheckRedirectURI(req.RedirectURI)
	if err != nil {
		return nil, err
	}
	if !security.SecretEqual(req.ClientSecret, client.Secret()) {
		return nil, invalidErr(ErrorCodeInvalidClient)
	}
	if req.State != code.State() {
		return nil, invalidErr(ErrorCodeInvalidGrant)
	}
	if redirectURI != code.RedirectURI() {
		return nil, invalidErr(ErrorCodeInvalidGrant)
	}
	if !code.Accepted() {
		return nil, invalidErr(ErrorCodeInvalidGrant)
	}
	return code, nil
}

// ValidateCodeExchange checks a code exchange request without consuming the
// code. A nil error means ExchangeCode would proceed to redemption.
func (s *Server) ValidateCodeExchange(ctx context.Context, req CodeExchangeRequest) error {
	_, err := s.validateCodeExchange(ctx, req)
	return err
}

// ExchangeCode redeems an authorization code for an access token (RFC 6749
// §4.1.3). Redemption is at most once: the code's deletion is the gate, so
// two concurrent exchanges of the same code yield exactly one token. The
// code's attributes, minus its redirect binding and decision flags, carry
// over onto the token; extra attributes are merged on top.
func (s *Server) ExchangeCode(ctx context.Context, req CodeExchangeRequest, extra ormstore.Attrs) (*AccessToken, error) {
	code, err := s.validateCodeExchange(ctx, req)
	if err != nil {
		return nil, err
	}

	existed, err := s.codes.Delete(ctx, code.ID())
	if err != nil {
		return nil, fmt.Errorf("redeem code: %w", err)
	}
	if !existed {
		// Lost the race against a concurrent exchange or expiry.
		return nil, invalidErr(ErrorCodeInvalidGrant)
	}

	attrs := code.entity.Attrs.Without(codeAttrsNotCopied...)
	attrs.Merge(extra)

	token, err := s.issueToken(ctx, attrs, req.Expiry, GrantTypeAuthorizationCode)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// VerifyFunc authenticates a resource owner for the password grant. It
// returns the attributes to store on the token (for example the user ID) on
// success, and (nil, nil) when the credentials are wrong. A non-nil error
// reports an infrastructure failure, not bad credentials.
type VerifyFunc func(ctx context.Context, username, password string) (ormstore.Attrs, error)

// PasswordExchangeRequest is a token request for the resource owner password
// credentials grant (RFC 6749 §4.3). By default the client must identify
// itself with ID and secret; the Optional flags relax that for deployments
// that authenticate clients elsewhere.
type PasswordExchangeRequest struct {
	GrantType    string
	Username     string
	Password     string
	Scope        string
	ClientID     string
	ClientSecret string

	// ClientOptional allows anonymous requests that carry no client_id. A
	// supplied client_id is always looked up and authenticated regardless of
	// this flag.
	ClientOptional bool

	// ClientSecretOptional keeps the client_id check but skips the secret
	// for public clients. Confidential clients always present their secret.
	ClientSecretOptional bool

	// Expiry overrides the configured access token TTL for this exchange.
	Expiry time.Duration
}

// ExchangePassword issues an access token for resource owner credentials
// (RFC 6749 §4.3). The verify callback owns credential checking; its
// returned attributes land on the token together with client_id, username,
// and scope.
func (s *Server) ExchangePassword(ctx context.Context, req PasswordExchangeRequest, verify VerifyFunc, extra ormstore.Attrs) (*AccessToken, error) {
	if req.GrantType != GrantTypePassword {
		return nil, invalidErr(ErrorCodeInvalidRequest)
	}
	if req.Username == "" || req.Password == "" {
		return nil, invalidErr(ErrorCodeInvalidRequest)
	}

	if !req.ClientOptional && req.ClientID == "" {
		return nil, invalidErr(ErrorCodeInvalidRequest)
	}
	var client *Client
	if req.ClientID != "" {
		var err error
		client, err = s.GetClient(ctx, req.ClientID)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, invalidErr(ErrorCodeInvalidClient)
		}
		// A present client is always authenticated. ClientSecretOptional only
		// relaxes the secret match for public clients; a confidential client
		// authenticates with its secret no matter what.
		secretMatch := security.SecretEqual(req.ClientSecret, client.Secret())
		if !secretMatch && (!req.ClientSecretOptional || client.Confidential()) {
			return nil, invalidErr(ErrorCodeInvalidClient)
		}
	}
	if err := s.checkScope(req.Scope); err != nil {
		return nil, err
	}

	owner, err := verify(ctx, req.Username, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify resource owner: %w", err)
	}
	if owner == nil {
		return nil, invalidErr(ErrorCodeInvalidGrant)
	}

	attrs := owner.Clone()
	attrs[AttrUsername] = ormstore.String(req.Username)
	if client != nil {
		attrs[AttrClientID] = ormstore.String(client.ID())
	}
	if req.Scope != "" {
		attrs[AttrScope] = ormstore.String(req.Scope)
	}
	attrs.Merge(extra)

	token, err := s.issueToken(ctx, attrs, req.Expiry, GrantTypePassword)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// issueToken persists an access token entity with the given attributes and
// TTL override.
func (s *Server) issueToken(ctx context.Context, attrs ormstore.Attrs, expiry time.Duration, grantType string) (*AccessToken, error) {
	if expiry == 0 {
		expiry = s.cfg.AccessTokenTimeout
	}
	entity := &ormstore.Entity{
		Attrs:     attrs,
		ExpiresAt: ExpireIn(expiry).Deadline(s.now()),
	}
	if err := s.tokens.Save(ctx, entity); err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("access token issued",
		"token", truncateID(entity.ID),
		"grant_type", grantType,
		"client_id", attrs.GetString(AttrClientID))
	if s.inst != nil {
		s.inst.Metrics().RecordTokenIssued(ctx, grantType)
	}
	return &AccessToken{server: s, entity: entity}, nil
}
