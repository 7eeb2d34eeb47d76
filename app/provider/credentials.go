// Package provider owns the QuickBooks OAuth2 credential set and token
// lifecycle: resolve client credentials, keep a fresh access token, refresh it
// before use, run the browser-based authorization flow when no usable refresh
// token exists, and persist long-lived tokens to the env file.
package provider

import (
	"os"

	log "github.com/go-pkgz/lgr"
)

// Environment selects the QuickBooks deployment the credentials belong to.
type Environment string

// supported environments
const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"
)

// env fallback keys, used when the matching field is not set explicitly
const (
	EnvClientID     = "QB_CLIENT_ID"
	EnvClientSecret = "QB_CLIENT_SECRET" //nolint:gosec // env var name, not a credential
	EnvRefreshToken = "QB_REFRESH_TOKEN" //nolint:gosec
	EnvRealmID      = "QB_REALM_ID"
	EnvEnvironment  = "QB_ENVIRONMENT"
	EnvRedirectURL  = "QB_REDIRECT_URL"
)

// DefaultRedirectURL is the callback the interactive flow listens on. The
// same value has to be registered in the Intuit developer console.
const DefaultRedirectURL = "http://localhost:8000/callback"

// Credentials is the full credential set for one QuickBooks company. One
// instance per TokenManager, never shared across realms.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	RealmID      string
	Environment  Environment
	RedirectURL  string
}

// ResolveCredentials fills missing fields from the process environment,
// applies defaults and validates the result. Explicit fields always win over
// env values. Fails with ConfigurationError if client id or secret can't be
// resolved from either source.
func ResolveCredentials(explicit Credentials) (Credentials, error) {
	res := explicit

	fallback := func(val, key string) string {
		if val != "" {
			return val
		}
		return os.Getenv(key)
	}

	res.ClientID = fallback(res.ClientID, EnvClientID)
	res.ClientSecret = fallback(res.ClientSecret, EnvClientSecret)
	res.RefreshToken = fallback(res.RefreshToken, EnvRefreshToken)
	res.RealmID = fallback(res.RealmID, EnvRealmID)
	if res.Environment == "" {
		res.Environment = Environment(fallback("", EnvEnvironment))
	}
	res.RedirectURL = fallback(res.RedirectURL, EnvRedirectURL)

	if res.ClientID == "" {
		return Credentials{}, &ConfigurationError{Reason: "client id not set, pass it explicitly or via " + EnvClientID}
	}
	if res.ClientSecret == "" {
		return Credentials{}, &ConfigurationError{Reason: "client secret not set, pass it explicitly or via " + EnvClientSecret}
	}

	switch res.Environment {
	case Sandbox, Production:
	case "":
		res.Environment = Sandbox
	default:
		return Credentials{}, &ConfigurationError{Reason: "unknown environment " + string(res.Environment)}
	}

	if res.RedirectURL == "" {
		res.RedirectURL = DefaultRedirectURL
	}

	// refresh token and realm id only make sense together
	if (res.RefreshToken == "") != (res.RealmID == "") {
		log.Printf("[WARN] refresh token and realm id must be set together, ignoring the partial pair")
		res.RefreshToken, res.RealmID = "", ""
	}

	return res, nil
}
