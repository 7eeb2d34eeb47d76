package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// freePort grabs an ephemeral port for the callback listener
func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// fakeBrowser simulates the user completing consent: it parses the
// authorization url and hits the redirect uri with code and realmId.
func fakeBrowser(t *testing.T, code, realmID string, opened *int32) func(string) error {
	return func(authURL string) error {
		atomic.AddInt32(opened, 1)
		go func() {
			u, err := url.Parse(authURL)
			assert.NoError(t, err)
			redirect := u.Query().Get("redirect_uri")
			state := u.Query().Get("state")
			cb := fmt.Sprintf("%s?code=%s&state=%s&realmId=%s", redirect, code, state, realmID)
			resp, err := http.Get(cb) //nolint:gosec // local test url
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}

func flowManager(t *testing.T, tokenURL string, opener func(string) error) (*TokenManager, *recordingStore) {
	t.Setenv(EnvRefreshToken, "")
	t.Setenv(EnvRealmID, "")

	store := &recordingStore{}
	m, err := NewTokenManager(
		Credentials{ClientID: "cid", ClientSecret: "csec",
			RedirectURL: fmt.Sprintf("http://127.0.0.1:%d/callback", freePort(t))},
		store,
		WithEndpoint(oauth2.Endpoint{AuthURL: tokenURL + "/authorize", TokenURL: tokenURL + "/token"}),
		WithFlowTimeout(5*time.Second),
		WithBrowserOpener(opener),
	)
	require.NoError(t, err)
	m.pollInterval = 20 * time.Millisecond
	m.graceDelay = 10 * time.Millisecond
	return m, store
}

func TestTokenManager_InteractiveFlow(t *testing.T) {
	var exchanges int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		atomic.AddInt32(&exchanges, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "code-1", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"flow-access","refresh_token":"flow-refresh","token_type":"bearer","expires_in":3600}`))
	}))
	defer backend.Close()

	var opened int32
	m, store := flowManager(t, backend.URL, fakeBrowser(t, "code-1", "realm-42", &opened))

	b, err := m.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Bearer{AccessToken: "flow-access", RealmID: "realm-42"}, b)
	assert.Equal(t, int32(1), atomic.LoadInt32(&exchanges))
	assert.Equal(t, "flow-refresh", store.refresh)
	assert.Equal(t, "realm-42", store.realm)

	// listener torn down after the flow
	u, err := url.Parse(m.creds.RedirectURL)
	require.NoError(t, err)
	_, err = net.DialTimeout("tcp", u.Host, 100*time.Millisecond)
	assert.Error(t, err, "callback listener should be closed")
}

func TestTokenManager_InteractiveFlowSingleAttempt(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"flow-access","refresh_token":"flow-refresh","token_type":"bearer","expires_in":3600}`))
	}))
	defer backend.Close()

	var opened int32
	m, _ := flowManager(t, backend.URL, fakeBrowser(t, "code-1", "realm-42", &opened))

	// two concurrent callers, one flow
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := m.EnsureToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "flow-access", b.AccessToken)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&opened), "exactly one interactive flow attempt")
}

func TestTokenManager_InteractiveFlowTimeout(t *testing.T) {
	var opened int32
	m, _ := flowManager(t, "http://127.0.0.1:1", func(string) error { // browser never completes consent
		atomic.AddInt32(&opened, 1)
		return nil
	})
	m.flowTimeout = 200 * time.Millisecond

	_, err := m.EnsureToken(context.Background())
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&opened))

	// manager left unauthenticated, safe to retry later
	assert.Empty(t, m.access)
	assert.Empty(t, m.creds.RefreshToken)
}

func TestTokenManager_InteractiveFlowStateMismatch(t *testing.T) {
	badBrowser := func(t *testing.T) func(string) error {
		return func(authURL string) error {
			go func() {
				u, err := url.Parse(authURL)
				assert.NoError(t, err)
				redirect := u.Query().Get("redirect_uri")
				resp, err := http.Get(redirect + "?code=code-1&state=forged&realmId=realm-42") //nolint:gosec
				if assert.NoError(t, err) {
					assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
					_ = resp.Body.Close()
				}
			}()
			return nil
		}
	}

	m, _ := flowManager(t, "http://127.0.0.1:1", badBrowser(t))

	_, err := m.EnsureToken(context.Background())
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "state token mismatch")
}

func TestTokenManager_InteractiveFlowBrowserFailureNonFatal(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"flow-access","refresh_token":"flow-refresh","token_type":"bearer","expires_in":3600}`))
	}))
	defer backend.Close()

	var authURL string
	m, _ := flowManager(t, backend.URL, func(u string) error {
		authURL = u
		return fmt.Errorf("no browser on this host") // launch failure must not kill the flow
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		b, err := m.EnsureToken(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "flow-access", b.AccessToken)
	}()

	// complete consent manually, like a user following the logged url
	require.Eventually(t, func() bool { return authURL != "" }, time.Second, 10*time.Millisecond)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	cb := fmt.Sprintf("%s?code=code-1&state=%s&realmId=realm-42", u.Query().Get("redirect_uri"), u.Query().Get("state"))
	resp, err := http.Get(cb) //nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	<-done
}

func TestTokenManager_CallbackUnknownPath(t *testing.T) {
	var opened int32
	m, _ := flowManager(t, "http://127.0.0.1:1", func(authURL string) error {
		atomic.AddInt32(&opened, 1)
		go func() {
			u, err := url.Parse(authURL)
			assert.NoError(t, err)
			redirect, err := url.Parse(u.Query().Get("redirect_uri"))
			assert.NoError(t, err)
			resp, err := http.Get("http://" + redirect.Host + "/favicon.ico")
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusNotFound, resp.StatusCode)
				_ = resp.Body.Close()
			}
		}()
		return nil
	})
	m.flowTimeout = 300 * time.Millisecond

	_, err := m.EnsureToken(context.Background())
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr, "unrelated requests don't complete the flow")
}

func TestTokenManager_ListenerPortBusy(t *testing.T) {
	port := freePort(t)
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer ln.Close()

	t.Setenv(EnvRefreshToken, "")
	t.Setenv(EnvRealmID, "")
	m, err := NewTokenManager(
		Credentials{ClientID: "cid", ClientSecret: "csec",
			RedirectURL: fmt.Sprintf("http://127.0.0.1:%d/callback", port)},
		nil, WithBrowserOpener(func(string) error { return nil }))
	require.NoError(t, err)

	_, err = m.EnsureToken(context.Background())
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr, "port contention fails fast")
	assert.Contains(t, err.Error(), "can't bind callback listener")
}
