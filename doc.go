// Package oauthkit implements the core of an OAuth 2.0 authorization server:
// the Authorization Code grant and the Resource Owner Password Credentials
// grant (RFC 6749 §4.1/§4.3), backed by a tagged key-value object store.
//
// The package is transport-agnostic. Callers extract the request fields from
// their HTTP layer, hand them to the request types here (CodeRequest,
// CodeExchangeRequest, PasswordExchangeRequest), and serialize the returned
// redirect URLs and token payloads themselves. All durable state lives in an
// ormstore backend (ormstore/memory or ormstore/valkey); the protocol layer
// holds no shared mutable state beyond its configuration.
//
// Validation failures are reported as *ValidationError values carrying the
// OAuth error vocabulary (invalid_request, invalid_client, invalid_grant,
// ...). Code-request errors additionally carry a severity: broken requests
// must never be redirected, invalid requests are answered with an error
// redirect to the client's registered URI.
package oauthkit
