package provider

import "fmt"

// ConfigurationError indicates the provider can't be constructed, i.e. client
// credentials are missing. Raised at construction time only, never deferred
// to the first token request.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// AuthorizationError indicates the interactive authorization flow failed or
// timed out. Fatal for the current invocation, the manager stays
// unauthenticated and a later call may retry the flow.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authorization failed: %s: %v", e.Reason, e.Err)
	}
	return "authorization failed: " + e.Reason
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// TokenRefreshError indicates the refresh-token exchange was rejected or
// failed on the wire. Recoverable on the next call.
type TokenRefreshError struct {
	Err error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }
