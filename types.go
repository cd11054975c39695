package oauthkit

// TokenResponse is the JSON payload for a successful token exchange
// (RFC 6749 §4.1.4/§4.3.3). Scope is always present, even when empty;
// ExpiresIn is omitted for never-expiring tokens.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// ErrorResponse is the JSON payload for a failed token exchange. The
// transport layer serves it with HTTP status 400.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenResponseHeaders returns the fixed response headers for token
// endpoint payloads, success and error alike (RFC 6749 §5.1: no caching).
func TokenResponseHeaders() map[string]string {
	return map[string]string{
		"Content-Type":  "application/json;charset=UTF-8",
		"Cache-Control": "no-store",
		"Pragma":        "no-cache",
	}
}
