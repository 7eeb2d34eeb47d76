package provider

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	R "github.com/go-pkgz/rest"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

var errFlowPending = errors.New("authorization pending")

// authorizeLocked runs the browser-based authorization flow: bind the local
// callback listener, open the consent page, wait for the redirect with the
// authorization code, exchange it for tokens. Called with the lock held, so a
// second EnsureToken on the same manager blocks until this flow resolves
// instead of starting another one.
func (m *TokenManager) authorizeLocked(ctx context.Context) (Bearer, error) {
	redirect, err := url.Parse(m.creds.RedirectURL)
	if err != nil {
		return Bearer{}, &AuthorizationError{Reason: "invalid redirect url " + m.creds.RedirectURL, Err: err}
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/callback"
	}

	// a second flow in the same process contends the port and fails here,
	// fast, instead of queuing behind the first one
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return Bearer{}, &AuthorizationError{Reason: "can't bind callback listener on " + redirect.Host, Err: err}
	}

	session := &authSession{
		conf:   m.oauthConfig(),
		state:  uuid.New().String(),
		client: m.client,
	}

	router := chi.NewRouter()
	router.Use(R.Recoverer(log.Default()), R.NoCache)
	router.Get(callbackPath, session.handleCallback)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if e := srv.Serve(ln); e != nil && e != http.ErrServerClosed {
			log.Printf("[WARN] callback listener terminated, %v", e)
		}
	}()

	authURL := session.conf.AuthCodeURL(session.state)
	log.Printf("[INFO] complete authorization in the browser: %s", authURL)
	if e := m.openBrowser(authURL); e != nil {
		log.Printf("[WARN] can't launch browser, open the url above manually, %v", e)
	}

	// bounded poll for the callback to resolve
	waitCtx, cancel := context.WithTimeout(ctx, m.flowTimeout)
	defer cancel()
	attempts := int(m.flowTimeout/m.pollInterval) + 1
	waitErr := repeater.NewDefault(attempts, m.pollInterval).Do(waitCtx, func() error {
		if session.resolved() {
			return nil
		}
		return errFlowPending
	})

	tok, realmID, sessionErr := session.outcome()

	switch {
	case waitErr != nil || sessionErr != nil:
		_ = srv.Close() // no grace on failure, the error page is already written
		if sessionErr != nil {
			return Bearer{}, &AuthorizationError{Reason: "authorization flow failed", Err: sessionErr}
		}
		return Bearer{}, &AuthorizationError{Reason: "authorization not completed within " + m.flowTimeout.String(), Err: waitErr}
	default:
		// let the success page finish rendering before teardown
		time.Sleep(m.graceDelay)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	m.applyTokenLocked(tok, realmID)
	log.Printf("[INFO] authorized for realm %s", realmID)
	return Bearer{AccessToken: m.access, RealmID: m.creds.RealmID}, nil
}

// authSession is the transient state of one interactive flow. The callback
// handler performs the code exchange itself so the html page it renders
// reflects the real outcome, not just the receipt of the code.
type authSession struct {
	conf   *oauth2.Config
	state  string
	client *http.Client

	mu      sync.Mutex
	done    bool
	token   *oauth2.Token
	realmID string
	err     error
}

func (s *authSession) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if st := q.Get("state"); st != s.state {
		s.fail(w, errors.Errorf("state token mismatch"))
		return
	}

	code, realmID := q.Get("code"), q.Get("realmId")
	if code == "" || realmID == "" {
		s.fail(w, errors.Errorf("callback missing code or realmId"))
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, s.client)
	tok, err := s.conf.Exchange(ctx, code)
	if err != nil {
		s.fail(w, errors.Wrap(err, "code exchange failed"))
		return
	}

	s.mu.Lock()
	s.done, s.token, s.realmID = true, tok, realmID
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(successPage))
}

func (s *authSession) fail(w http.ResponseWriter, err error) {
	log.Printf("[WARN] authorization callback failed, %v", err)
	s.mu.Lock()
	s.done, s.err = true, err
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(errorPage))
}

func (s *authSession) resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *authSession) outcome() (tok *oauth2.Token, realmID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.realmID, s.err
}

const successPage = `<!DOCTYPE html>
<html><head><title>Authorization complete</title></head>
<body style="font-family:sans-serif;text-align:center;padding-top:4em">
<h2>QuickBooks connected</h2>
<p>Authorization completed. You can close this window and return to the terminal.</p>
</body></html>`

const errorPage = `<!DOCTYPE html>
<html><head><title>Authorization failed</title></head>
<body style="font-family:sans-serif;text-align:center;padding-top:4em">
<h2>Authorization failed</h2>
<p>Something went wrong while connecting to QuickBooks. Check the server log and retry.</p>
</body></html>`
