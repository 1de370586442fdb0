package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/eivy/smartthings-weather/tokenstore"
)

// DefaultTimeout bounds every token endpoint request.
const DefaultTimeout = 30 * time.Second

// Config describes the OAuth client registration.
type Config struct {
	ClientID string
	// ClientSecret switches client authentication to HTTP Basic and turns
	// PKCE off. Leave empty for a public PKCE client.
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	// Namespace prefixes every storage key, "smartthings" by default.
	Namespace string
}

func (c Config) usePKCE() bool {
	return c.ClientSecret == ""
}

// AuthorizationRequest is what the user has to open to grant access.
type AuthorizationRequest struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	State  string `json:"state"`
	PKCE   bool   `json:"pkce"`
}

// Observer is told about every token endpoint request.
type Observer interface {
	ObserveTokenRequest(grant string, err error)
}

// Manager owns the credential lifecycle: authorization, code exchange,
// refresh and logout. It is safe for concurrent use.
type Manager struct {
	cfg   Config
	oauth *oauth2.Config
	// token is used for token endpoint requests. It carries no client ID
	// when the client authenticates with a secret.
	token    *oauth2.Config
	store    tokenstore.Store
	client   *http.Client
	now      func() time.Time
	log      logrus.FieldLogger
	observer Observer

	// mu serializes every write of the credential record.
	mu     sync.Mutex
	flight singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// NewManager returns a Manager persisting to store.
func NewManager(cfg Config, store tokenstore.Store, opts ...Option) *Manager {
	if cfg.Namespace == "" {
		cfg.Namespace = "smartthings"
	}
	m := &Manager{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: DefaultTimeout},
		now:    time.Now,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "oauth")

	m.oauth = &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	m.token = m.oauth
	if !cfg.usePKCE() {
		// x/oauth2 form-escapes the client credentials inside the Basic
		// header, so the header is set from the raw values instead.
		token := *m.oauth
		token.ClientID = ""
		m.token = &token
		m.client = withBasicAuth(m.client, cfg.ClientID, cfg.ClientSecret)
	}
	return m
}

// basicAuth sets HTTP Basic client authentication on every request.
type basicAuth struct {
	base     http.RoundTripper
	username string
	password string
}

func (t *basicAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func withBasicAuth(c *http.Client, username, password string) *http.Client {
	authed := *c
	authed.Transport = &basicAuth{base: c.Transport, username: username, password: password}
	return &authed
}

func (m *Manager) tokenKey() string    { return m.cfg.Namespace + "_oauth_tokens" }
func (m *Manager) verifierKey() string { return m.cfg.Namespace + "_code_verifier" }
func (m *Manager) stateKey() string    { return m.cfg.Namespace + "_oauth_state" }

func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

func (m *Manager) observe(grant string, err error) {
	if m.observer != nil {
		m.observer.ObserveTokenRequest(grant, err)
	}
}

// BeginAuthorization starts a new authorization and returns the URL to
// open. Any verifier and state from an earlier attempt are replaced.
func (m *Manager) BeginAuthorization(ctx context.Context) (*AuthorizationRequest, error) {
	state, err := randomString(stateLength)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if m.cfg.usePKCE() {
		verifier, err := NewCodeVerifier()
		if err != nil {
			return nil, err
		}
		if err := m.store.Put(ctx, m.verifierKey(), verifier); err != nil {
			return nil, fmt.Errorf("store code verifier: %w", err)
		}
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", ComputeS256Challenge(verifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	} else if err := m.store.Delete(ctx, m.verifierKey()); err != nil {
		return nil, fmt.Errorf("clear code verifier: %w", err)
	}
	if err := m.store.Put(ctx, m.stateKey(), state); err != nil {
		return nil, fmt.Errorf("store authorization state: %w", err)
	}

	req := &AuthorizationRequest{
		URL:    m.oauth.AuthCodeURL(state, opts...),
		Method: http.MethodGet,
		State:  state,
		PKCE:   m.cfg.usePKCE(),
	}
	m.log.WithField("pkce", req.PKCE).Info("authorization started")
	return req, nil
}

// ValidateState checks a callback state against the one issued by
// BeginAuthorization.
func (m *Manager) ValidateState(ctx context.Context, state string) error {
	want, err := m.store.Get(ctx, m.stateKey())
	if errors.Is(err, tokenstore.ErrNotFound) {
		return ErrStateMismatch
	}
	if err != nil {
		return fmt.Errorf("load authorization state: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(state)) != 1 {
		return ErrStateMismatch
	}
	return nil
}

// CompleteAuthorization trades an authorization code for a credential and
// persists it. The stored verifier and state are removed whatever the
// outcome, so a code can only be tried once per BeginAuthorization.
func (m *Manager) CompleteAuthorization(ctx context.Context, code string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.clearTransient(context.WithoutCancel(ctx))

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &AuthExchangeError{Err: errors.New("authorization code is required")}
	}

	var opts []oauth2.AuthCodeOption
	if m.cfg.usePKCE() {
		verifier, err := m.store.Get(ctx, m.verifierKey())
		switch {
		case err == nil:
			opts = append(opts, oauth2.VerifierOption(verifier))
		case errors.Is(err, tokenstore.ErrNotFound):
			m.log.Warn("no code verifier stored, exchanging without one")
		default:
			return nil, &AuthExchangeError{Err: fmt.Errorf("load code verifier: %w", err)}
		}
	}

	tok, err := m.token.Exchange(m.clientContext(ctx), code, opts...)
	m.observe("authorization_code", err)
	if err != nil {
		status, body := tokenFailure(err)
		m.log.WithError(err).WithField("status", status).Error("token exchange failed")
		return nil, &AuthExchangeError{StatusCode: status, Body: body, Err: err}
	}

	cred := credentialFromToken(tok, m.now())
	if err := m.save(ctx, cred); err != nil {
		return nil, &AuthExchangeError{Err: err}
	}
	m.log.WithField("expires_in", cred.ExpiresIn).Info("authorization completed")
	return cred, nil
}

// IsAuthorized reports whether a credential with an access token is
// stored. Expiry is not checked.
func (m *Manager) IsAuthorized(ctx context.Context) bool {
	_, err := m.load(ctx)
	return err == nil
}

// Credential returns the stored credential or ErrNotAuthorized.
func (m *Manager) Credential(ctx context.Context) (*Credential, error) {
	return m.load(ctx)
}

// AccessToken returns a usable access token, refreshing it first when it
// expires within five minutes. A failed refresh clears the credential and
// the returned error matches ErrNotAuthorized. If ctx ends while waiting
// for the refresh, the refresh carries on and ctx's error is returned.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if !cred.NeedsRefresh(m.now()) {
		return cred.AccessToken, nil
	}

	m.log.Info("access token expired, refreshing")
	fresh, err := m.refresh(ctx, false)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		m.mu.Lock()
		if cerr := m.clear(context.WithoutCancel(ctx)); cerr != nil {
			m.log.WithError(cerr).Error("failed to clear credential")
		}
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	return fresh.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new credential. Without
// a refresh token it fails immediately. A failed request clears all stored
// credential state; it is never retried.
func (m *Manager) Refresh(ctx context.Context) (*Credential, error) {
	return m.refresh(ctx, true)
}

// refresh coalesces concurrent callers. Unless force is set, a credential
// refreshed by an earlier caller in the meantime is returned as is. The
// request runs detached from ctx, bounded by DefaultTimeout, so one
// caller giving up does not fail the others.
func (m *Manager) refresh(ctx context.Context, force bool) (*Credential, error) {
	ch := m.flight.DoChan(m.cfg.Namespace, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
		defer cancel()

		m.mu.Lock()
		defer m.mu.Unlock()

		cur, err := m.load(ctx)
		if errors.Is(err, ErrNotAuthorized) {
			return nil, &RefreshError{Err: ErrNoRefreshToken}
		}
		if err != nil {
			return nil, &RefreshError{Err: err}
		}
		if !force && !cur.NeedsRefresh(m.now()) {
			return cur, nil
		}
		return m.refreshLocked(ctx, cur)
	})

	select {
	case <-ctx.Done():
		return nil, &RefreshError{Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			m.log.Debug("joined in-flight refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	}
}

func (m *Manager) refreshLocked(ctx context.Context, cur *Credential) (*Credential, error) {
	if cur.RefreshToken == "" {
		return nil, &RefreshError{Err: ErrNoRefreshToken}
	}

	src := m.token.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: cur.RefreshToken})
	tok, err := src.Token()
	m.observe("refresh_token", err)
	if err != nil {
		status, body := tokenFailure(err)
		m.log.WithError(err).WithField("status", status).Error("token refresh failed, clearing credential")
		if cerr := m.clear(context.WithoutCancel(ctx)); cerr != nil {
			m.log.WithError(cerr).Error("failed to clear credential")
		}
		return nil, &RefreshError{StatusCode: status, Body: body, Err: err}
	}

	cred := credentialFromToken(tok, m.now())
	if err := m.save(ctx, cred); err != nil {
		return nil, &RefreshError{Err: err}
	}
	m.log.WithField("expires_in", cred.ExpiresIn).Info("token refreshed")
	return cred, nil
}

// Logout forgets the credential and any pending authorization.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.clear(ctx); err != nil {
		return err
	}
	m.log.Info("credential cleared")
	return nil
}

// Reauthorize clears everything and starts a fresh authorization.
func (m *Manager) Reauthorize(ctx context.Context) (*AuthorizationRequest, error) {
	if err := m.Logout(ctx); err != nil {
		return nil, err
	}
	return m.BeginAuthorization(ctx)
}

func (m *Manager) load(ctx context.Context) (*Credential, error) {
	raw, err := m.store.Get(ctx, m.tokenKey())
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	cred, err := decodeCredential(raw)
	if err != nil {
		m.log.WithError(err).Warn("stored credential is unreadable")
		return nil, ErrNotAuthorized
	}
	if cred.AccessToken == "" {
		return nil, ErrNotAuthorized
	}
	return cred, nil
}

func (m *Manager) save(ctx context.Context, cred *Credential) error {
	raw, err := cred.encode()
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := m.store.Put(ctx, m.tokenKey(), raw); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

func (m *Manager) clear(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.tokenKey(), m.verifierKey(), m.stateKey()); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

func (m *Manager) clearTransient(ctx context.Context) {
	if err := m.store.Delete(ctx, m.verifierKey(), m.stateKey()); err != nil {
		m.log.WithError(err).Warn("failed to clear code verifier")
	}
}
