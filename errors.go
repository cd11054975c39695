package oauthkit

import "errors"

// OAuth error codes carried by ValidationError values.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidClient       = "invalid_client"
	ErrorCodeInvalidGrant        = "invalid_grant"
	ErrorCodeInvalidScope        = "invalid_scope"
	ErrorCodeMissingScope        = "missing_scope"
	ErrorCodeMissingRedirectURI  = "missing_redirect_uri"
	ErrorCodeInvalidRedirectURI  = "invalid_redirect_uri"
	ErrorCodeMissingClientID     = "missing_client_id"
	ErrorCodeInvalidClientID     = "invalid_client_id"
	ErrorCodeMissingResponseType = "missing_response_type"
	ErrorCodeInvalidResponseType = "invalid_response_type"
	ErrorCodeAccessDenied        = "access_denied"
)

// Severity distinguishes code-request failures that must never redirect
// from those the client can be redirected back with.
type Severity int

const (
	// SeverityBroken marks a request that cannot safely be redirected: the
	// caller must render an error page instead.
	SeverityBroken Severity = iota

	// SeverityInvalid marks a request whose client and redirect URI checked
	// out; the caller should redirect back with the error code.
	SeverityInvalid
)

// ValidationError reports a user or client input problem. It always carries
// a short machine-readable OAuth error code and is recovered locally into a
// redirect or a structured error body, never propagated as a fault.
type ValidationError struct {
	// Code is the OAuth error code, e.g. "invalid_grant".
	Code string

	// Severity only matters for authorization (code request) failures;
	// token-endpoint failures are always answered with a JSON body.
	Severity Severity
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Code
}

func brokenErr(code string) *ValidationError {
	return &ValidationError{Code: code, Severity: SeverityBroken}
}

func invalidErr(code string) *ValidationError {
	return &ValidationError{Code: code, Severity: SeverityInvalid}
}

// AsValidationError unwraps err into a *ValidationError, or nil when the
// error is of another kind (store failure, programmer misuse).
func AsValidationError(err error) *ValidationError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return nil
}

var (
	// ErrInvalidClientType is returned by RegisterClient for a client type
	// outside {web, user-agent, native}.
	ErrInvalidClientType = errors.New("oauthkit: invalid client type")

	// ErrMissingRedirectURL is returned by RegisterClient when no redirect
	// URL is supplied.
	ErrMissingRedirectURL = errors.New("oauthkit: at least one redirect URL is required")

	// ErrInvalidURL is returned by RegisterClient for a redirect URL that is
	// not an absolute http(s) URL.
	ErrInvalidURL = errors.New("oauthkit: invalid redirect URL")

	// ErrInvalidAccessToken is returned by VerifyAccessToken when the token
	// is unknown, expired, or lacks every required scope.
	ErrInvalidAccessToken = errors.New("oauthkit: invalid access token")

	// ErrRequestNotValid signals a usage contract violation: exchange or
	// code persistence was attempted on a request that fails validation.
	// This is a programmer error, not a user-facing condition.
	ErrRequestNotValid = errors.New("oauthkit: request failed validation; validate before exchanging")
)
