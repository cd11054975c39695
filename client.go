package oauthkit

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/oauthkit/oauthkit/ormstore"
	"github.com/oauthkit/oauthkit/security"
)

// Client types (RFC 6749 §2.1). Web applications run on a server and can
// keep a secret; user-agent-based and native applications cannot.
const (
	ClientTypeWeb       = "web"
	ClientTypeUserAgent = "user-agent"
	ClientTypeNative    = "native"
)

var clientTypes = []string{ClientTypeWeb, ClientTypeUserAgent, ClientTypeNative}

// Client is a registered OAuth client application.
type Client struct {
	entity *ormstore.Entity
}

// ID returns the generated client identifier.
func (c *Client) ID() string {
	return c.entity.ID
}

// Type returns the client type, one of web, user-agent, or native.
func (c *Client) Type() string {
	return c.entity.Attrs.GetString(AttrClientType)
}

// Confidential reports whether the client can keep its secret, i.e. whether
// it is a web client.
func (c *Client) Confidential() bool {
	return c.Type() == ClientTypeWeb
}

// Secret returns the client secret, or "" for public clients.
func (c *Client) Secret() string {
	return c.entity.Attrs.GetString(AttrClientSecret)
}

// RedirectURLs returns the registered redirect URLs.
func (c *Client) RedirectURLs() []string {
	return c.entity.Attrs.GetStrings(AttrRedirectURLs)
}

// Attr returns an arbitrary attribute of the client record.
func (c *Client) Attr(name string) (ormstore.Value, bool) {
	v, ok := c.entity.Attrs[name]
	return v, ok
}

// SetAttr sets an attribute on the client record. The change is not
// persisted until SaveClient.
func (c *Client) SetAttr(name string, value ormstore.Value) {
	c.entity.Attrs[name] = value
}

// CheckRedirectURI resolves the redirect URI a code request may use. An
// empty requested URI is allowed only when the client registered exactly one
// URL, which is then returned; a non-empty one must match a registered URL
// exactly. Failures are *ValidationError values with SeverityBroken since a
// bad redirect target must never be redirected to.
func (c *Client) CheckRedirectURI(requested string) (string, error) {
	registered := c.RedirectURLs()
	if requested == "" {
		if len(registered) == 1 {
			return registered[0], nil
		}
		return "", brokenErr(ErrorCodeMissingRedirectURI)
	}
	if slices.Contains(registered, requested) {
		return requested, nil
	}
	return "", brokenErr(ErrorCodeInvalidRedirectURI)
}

// ClientRegistration describes a client to register. Secret is honored only
// for confidential clients; when empty one is generated.
type ClientRegistration struct {
	// Type is one of web, user-agent, or native.
	Type string

	// RedirectURLs is the non-empty list of absolute http(s) callback URLs.
	RedirectURLs []string

	// Secret overrides the generated client secret. Ignored for public
	// clients, which never carry a secret.
	Secret string

	// Attrs are arbitrary additional attributes stored on the client record.
	Attrs ormstore.Attrs
}

// RegisterClient validates the registration, assigns an ID, generates a
// secret for confidential clients, and persists the record.
func (s *Server) RegisterClient(ctx context.Context, reg ClientRegistration) (*Client, error) {
	if !slices.Contains(clientTypes, reg.Type) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClientType, reg.Type)
	}
	if len(reg.RedirectURLs) == 0 {
		return nil, ErrMissingRedirectURL
	}
	for _, raw := range reg.RedirectURLs {
		if err := validateRedirectURL(raw); err != nil {
			return nil, err
		}
	}

	attrs := reg.Attrs.Clone()
	if attrs == nil {
		attrs = ormstore.Attrs{}
	}
	attrs[AttrClientType] = ormstore.String(reg.Type)
	attrs[AttrRedirectURLs] = ormstore.List(reg.RedirectURLs...)
	if reg.Type == ClientTypeWeb {
		secret := reg.Secret
		if secret == "" {
			secret = security.RandomString(ClientSecretLength)
		}
		attrs[AttrClientSecret] = ormstore.String(secret)
	} else {
		delete(attrs, AttrClientSecret)
	}

	entity := &ormstore.Entity{Attrs: attrs}
	if err := s.clients.Save(ctx, entity); err != nil {
		return nil, fmt.Errorf("register client: %w", err)
	}

	s.logger.Info("client registered",
		"client_id", entity.ID,
		"client_type", reg.Type)
	if s.inst != nil {
		s.inst.Metrics().RecordClientRegistration(ctx, reg.Type)
	}
	return &Client{entity: entity}, nil
}

// GetClient fetches a client by ID. An unknown ID is (nil, nil).
func (s *Server) GetClient(ctx context.Context, id string) (*Client, error) {
	entity, err := s.clients.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if entity == nil {
		return nil, nil
	}
	return &Client{entity: entity}, nil
}

// SaveClient persists attribute changes made on a fetched client.
func (s *Server) SaveClient(ctx context.Context, c *Client) error {
	if err := s.clients.Save(ctx, c.entity); err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	return nil
}

// DeleteClient removes a client registration. Codes and tokens issued to it
// remain until they expire or are revoked.
func (s *Server) DeleteClient(ctx context.Context, id string) error {
	if _, err := s.clients.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return nil
}

// FindClients returns clients whose attributes match every given equality.
func (s *Server) FindClients(ctx context.Context, attrs ormstore.Attrs) ([]*Client, error) {
	entities, err := s.clients.Find(ctx, attrs)
	if err != nil {
		return nil, fmt.Errorf("find clients: %w", err)
	}
	clients := make([]*Client, 0, len(entities))
	for _, e := range entities {
		clients = append(clients, &Client{entity: e})
	}
	return clients, nil
}

// validateRedirectURL requires an absolute http or https URL with a host.
func validateRedirectURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
