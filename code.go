package oauthkit

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/oauthkit/oauthkit/ormstore"
)

// ResponseTypeCode is the only supported authorization response type
// (RFC 6749 §4.1.1).
const ResponseTypeCode = "code"

// CodeRequest is an authorization request as received on the authorization
// endpoint (RFC 6749 §4.1.1). Scope is the space-delimited scope string.
type CodeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
}

// CodeGrant is a validated authorization request: the client checked out and
// the redirect URI is safe to send the resource owner back to. A grant is
// returned even when validation fails with a redirectable (invalid) error,
// so the caller can build the error redirect.
type CodeGrant struct {
	server      *Server
	client      *Client
	redirectURI string
	req         CodeRequest
}

// Client returns the requesting client.
func (g *CodeGrant) Client() *Client {
	return g.client
}

// RedirectURI returns the resolved redirect URI.
func (g *CodeGrant) RedirectURI() string {
	return g.redirectURI
}

// ErrorRedirect builds the redirect URL that reports the given OAuth error
// code to the client, preserving the request state (RFC 6749 §4.1.2.1).
func (g *CodeGrant) ErrorRedirect(errorCode string) (string, error) {
	params := url.Values{"error": {errorCode}}
	if g.req.State != "" {
		params.Set("state", g.req.State)
	}
	return addRedirectParams(g.redirectURI, params)
}

// ValidateCodeRequest checks an authorization request in two phases. Broken
// failures (unknown client, bad redirect URI, bad response type) return a
// nil grant: the caller must render an error page. Invalid failures (scope
// problems) return both the grant and the error: the caller should redirect
// back via ErrorRedirect. A nil error means the request is fully valid.
func (s *Server) ValidateCodeRequest(ctx context.Context, req CodeRequest) (*CodeGrant, error) {
	if req.ResponseType == "" {
		return nil, brokenErr(ErrorCodeMissingResponseType)
	}
	if req.ResponseType != ResponseTypeCode {
		return nil, brokenErr(ErrorCodeInvalidResponseType)
	}
	if req.ClientID == "" {
		return nil, brokenErr(ErrorCodeMissingClientID)
	}
	client, err := s.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, brokenErr(ErrorCodeInvalidClientID)
	}
	redirectURI, err := client.CheckRedirectURI(req.RedirectURI)
	if err != nil {
		return nil, err
	}

	grant := &CodeGrant{
		server:      s,
		client:      client,
		redirectURI: redirectURI,
		req:         req,
	}
	if err := s.checkScope(req.Scope); err != nil {
		return grant, err
	}
	return grant, nil
}

// checkScope enforces the configured scope allow-list. An empty allow-list
// accepts anything, including the empty scope.
func (s *Server) checkScope(scope string) error {
	if len(s.cfg.Scopes) == 0 {
		return nil
	}
	requested := strings.Fields(scope)
	if len(requested) == 0 {
		return invalidErr(ErrorCodeMissingScope)
	}
	for _, sc := range requested {
		if !slices.Contains(s.cfg.Scopes, sc) {
			return invalidErr(ErrorCodeInvalidScope)
		}
	}
	return nil
}

// Code is a persisted authorization code awaiting the resource owner's
// decision and, after acceptance, redemption at the token endpoint.
type Code struct {
	server *Server
	entity *ormstore.Entity
}

// ID returns the code value handed to the client in the redirect.
func (c *Code) ID() string {
	return c.entity.ID
}

// ClientID returns the client the code was issued to.
func (c *Code) ClientID() string {
	return c.entity.Attrs.GetString(AttrClientID)
}

// RedirectURI returns the redirect URI bound to the code.
func (c *Code) RedirectURI() string {
	return c.entity.Attrs.GetString(AttrRedirectURI)
}

// Scope returns the space-delimited scope string requested with the code.
func (c *Code) Scope() string {
	return c.entity.Attrs.GetString(AttrScope)
}

// State returns the opaque client state bound to the code.
func (c *Code) State() string {
	return c.entity.Attrs.GetString(AttrState)
}

// Accepted reports whether the resource owner has accepted the grant.
func (c *Code) Accepted() bool {
	return c.entity.Attrs.GetBool(AttrAccepted)
}

// Attr returns an arbitrary attribute of the code record, e.g. resource
// owner attributes stored at SaveCode time.
func (c *Code) Attr(name string) (ormstore.Value, bool) {
	v, ok := c.entity.Attrs[name]
	return v, ok
}

// Accept marks the code accepted by the resource owner, persists it, and
// returns the success redirect URL carrying code and state (RFC 6749
// §4.1.2).
func (c *Code) Accept(ctx context.Context) (string, error) {
	c.entity.Attrs[AttrAccepted] = ormstore.Bool(true)
	if err := c.server.codes.Save(ctx, c.entity); err != nil {
		return "", fmt.Errorf("accept code: %w", err)
	}
	params := url.Values{ResponseTypeCode: {c.entity.ID}}
	if state := c.State(); state != "" {
		params.Set("state", state)
	}
	c.server.logger.Info("authorization code accepted",
		"code", truncateID(c.entity.ID),
		"client_id", c.ClientID())
	if c.server.inst != nil {
		c.server.inst.Metrics().RecordCodeAccepted(ctx, c.ClientID())
	}
	return addRedirectParams(c.RedirectURI(), params)
}

// Decline deletes the code and returns the error redirect URL. An empty
// reason defaults to access_denied. Declining an already deleted or expired
// code still yields the redirect: the outcome for the client is the same.
func (c *Code) Decline(ctx context.Context, reason string) (string, error) {
	if reason == "" {
		reason = ErrorCodeAccessDenied
	}
	if _, err := c.server.codes.Delete(ctx, c.entity.ID); err != nil {
		return "", fmt.Errorf("decline code: %w", err)
	}
	params := url.Values{"error": {reason}}
	if state := c.State(); state != "" {
		params.Set("state", state)
	}
	c.server.logger.Info("authorization code declined",
		"code", truncateID(c.entity.ID),
		"client_id", c.ClientID(),
		"reason", reason)
	if c.server.inst != nil {
		c.server.inst.Metrics().RecordCodeDeclined(ctx, c.ClientID())
	}
	return addRedirectParams(c.RedirectURI(), params)
}

// SaveCode validates the request again and persists a fresh authorization
// code bound to it, together with the resource owner attributes that should
// flow onto the eventual access token. Persisting a request that fails
// validation is a usage error reported as ErrRequestNotValid.
func (s *Server) SaveCode(ctx context.Context, req CodeRequest, owner ormstore.Attrs) (*Code, error) {
	grant, err := s.ValidateCodeRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestNotValid, err)
	}

	attrs := owner.Clone()
	if attrs == nil {
		attrs = ormstore.Attrs{}
	}
	attrs[AttrClientID] = ormstore.String(grant.client.ID())
	attrs[AttrRedirectURI] = ormstore.String(grant.redirectURI)
	if req.Scope != "" {
		attrs[AttrScope] = ormstore.String(req.Scope)
	}
	if req.State != "" {
		attrs[AttrState] = ormstore.String(req.State)
	}

	entity := &ormstore.Entity{
		Attrs:     attrs,
		ExpiresAt: ExpireIn(s.cfg.AuthorizationCodeTimeout).Deadline(s.now()),
	}
	if err := s.codes.Save(ctx, entity); err != nil {
		return nil, fmt.Errorf("save code: %w", err)
	}

	s.logger.Info("authorization code issued",
		"code", truncateID(entity.ID),
		"client_id", grant.client.ID())
	if s.inst != nil {
		s.inst.Metrics().RecordCodeIssued(ctx, grant.client.ID())
	}
	return &Code{server: s, entity: entity}, nil
}

// GetCode fetches a pending authorization code by value. Unknown or expired
// codes are (nil, nil).
func (s *Server) GetCode(ctx context.Context, id string) (*Code, error) {
	entity, err := s.codes.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	if entity == nil {
		return nil, nil
	}
	return &Code{server: s, entity: entity}, nil
}

// addRedirectParams appends query parameters to a redirect URL, keeping any
// query already present and leaving the fragment untouched.
func addRedirectParams(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, base, err)
	}
	q := u.Query()
	for name, values := range params {
		for _, v := range values {
			q.Set(name, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
