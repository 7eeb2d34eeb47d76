package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// intuit oauth2 endpoints, same pair for sandbox and production
var intuitEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appcenter.intuit.com/connect/oauth2",
	TokenURL: "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
}

const (
	defaultScope         = "com.intuit.quickbooks.accounting"
	defaultTokenLifetime = time.Hour // applied when the token endpoint omits expires_in
	defaultFlowTimeout   = 5 * time.Minute
)

// Bearer is what callers need for one backend call: the access token and the
// realm the token is scoped to.
type Bearer struct {
	AccessToken string
	RealmID     string
}

// TokenManager guarantees EnsureToken returns a usable bearer token, hiding
// whether that took a cache hit, a refresh or a full interactive flow.
// Safe for concurrent use; concurrent callers during a refresh or an
// interactive flow block until it resolves and then share the outcome.
type TokenManager struct {
	creds    Credentials
	store    TokenStore
	endpoint oauth2.Endpoint
	scopes   []string
	client   *http.Client
	now      func() time.Time

	flowTimeout  time.Duration
	pollInterval time.Duration
	graceDelay   time.Duration
	openBrowser  func(url string) error

	mu     sync.Mutex
	access string
	expiry time.Time
}

// Option modifies TokenManager on construction.
type Option func(*TokenManager)

// WithEndpoint overrides the oauth2 endpoints, used by tests to point the
// manager at a stub token server.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(m *TokenManager) { m.endpoint = ep }
}

// WithHTTPClient sets the client for token endpoint calls.
func WithHTTPClient(cl *http.Client) Option {
	return func(m *TokenManager) { m.client = cl }
}

// WithFlowTimeout bounds the wait for the interactive flow to complete.
func WithFlowTimeout(d time.Duration) Option {
	return func(m *TokenManager) { m.flowTimeout = d }
}

// WithBrowserOpener replaces the system browser launcher.
func WithBrowserOpener(fn func(url string) error) Option {
	return func(m *TokenManager) { m.openBrowser = fn }
}

// WithClock replaces time.Now, used by tests to control expiry.
func WithClock(fn func() time.Time) Option {
	return func(m *TokenManager) { m.now = fn }
}

// NewTokenManager resolves credentials and makes a manager for one realm.
// Fails with ConfigurationError if client id or secret can't be resolved,
// before any network or listener activity.
func NewTokenManager(creds Credentials, store TokenStore, opts ...Option) (*TokenManager, error) {
	resolved, err := ResolveCredentials(creds)
	if err != nil {
		return nil, err
	}

	res := &TokenManager{
		creds:        resolved,
		store:        store,
		endpoint:     intuitEndpoint,
		scopes:       []string{defaultScope},
		client:       &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
		flowTimeout:  defaultFlowTimeout,
		pollInterval: 200 * time.Millisecond,
		graceDelay:   time.Second,
		openBrowser:  openBrowser,
	}
	for _, opt := range opts {
		opt(res)
	}
	return res, nil
}

// EnsureToken returns a valid bearer token, refreshing or running the
// interactive authorization flow as needed. Never assumes a previously
// returned token is still valid.
func (m *TokenManager) EnsureToken(ctx context.Context) (Bearer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.access != "" && m.expiry.After(m.now()) {
		return Bearer{AccessToken: m.access, RealmID: m.creds.RealmID}, nil
	}

	if m.creds.RefreshToken != "" && m.creds.RealmID != "" {
		return m.refreshLocked(ctx)
	}
	return m.authorizeLocked(ctx)
}

// refreshLocked exchanges the refresh token for a new access token.
// Called with the lock held.
func (m *TokenManager) refreshLocked(ctx context.Context) (Bearer, error) {
	log.Printf("[DEBUG] refresh access token for realm %s", m.creds.RealmID)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	src := m.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: m.creds.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			// refresh token rejected, drop it so the next call starts a new flow
			log.Printf("[WARN] refresh token rejected (%d), re-authorization required", retrieveErr.Response.StatusCode)
			m.creds.RefreshToken, m.creds.RealmID = "", ""
			m.access = ""
		}
		return Bearer{}, &TokenRefreshError{Err: err}
	}

	m.applyTokenLocked(tok, m.creds.RealmID)
	return Bearer{AccessToken: m.access, RealmID: m.creds.RealmID}, nil
}

// applyTokenLocked caches the access token and persists refresh token and
// realm id when either changed. Persistence failure is logged, not fatal,
// in-memory credentials stay usable for the process lifetime.
func (m *TokenManager) applyTokenLocked(tok *oauth2.Token, realmID string) {
	m.access = tok.AccessToken
	m.expiry = tok.Expiry
	if m.expiry.IsZero() {
		m.expiry = m.now().Add(defaultTokenLifetime)
	}

	changed := realmID != m.creds.RealmID
	if tok.RefreshToken != "" && tok.RefreshToken != m.creds.RefreshToken {
		m.creds.RefreshToken = tok.RefreshToken
		changed = true
	}
	m.creds.RealmID = realmID

	if changed && m.store != nil {
		if err := m.store.Save(m.creds.RefreshToken, m.creds.RealmID); err != nil {
			log.Printf("[WARN] failed to persist tokens, %v", err)
		}
	}
}

func (m *TokenManager) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		Endpoint:     m.endpoint,
		RedirectURL:  m.creds.RedirectURL,
		Scopes:       m.scopes,
	}
}

// Environment reports which QuickBooks deployment the manager talks to.
func (m *TokenManager) Environment() Environment { return m.creds.Environment }
