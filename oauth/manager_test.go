package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/eivy/smartthings-weather/tokenstore"
)

// tokenServer is a fake token endpoint recording the forms it receives.
type tokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	forms    []url.Values
	auths    []string
	status   int
	response string
	calls    atomic.Int32
	delay    time.Duration
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		status:   http.StatusOK,
		response: `{"access_token":"access-1","refresh_token":"refresh-1","expires_in":3600,"token_type":"bearer"}`,
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		ts.mu.Lock()
		delay := ts.delay
		ts.mu.Unlock()
		time.Sleep(delay)
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		ts.mu.Lock()
		ts.forms = append(ts.forms, form)
		ts.auths = append(ts.auths, r.Header.Get("Authorization"))
		status, response := ts.status, ts.response
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) respond(status int, body string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status, ts.response = status, body
}

func (ts *tokenServer) lastForm() (url.Values, string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.forms) == 0 {
		return nil, ""
	}
	return ts.forms[len(ts.forms)-1], ts.auths[len(ts.auths)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingObserver struct {
	mu     sync.Mutex
	grants []string
}

func (o *recordingObserver) ObserveTokenRequest(grant string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.grants = append(o.grants, grant)
}

func newTestManager(t *testing.T, ts *tokenServer, secret string) (*Manager, *tokenstore.Memory, *fakeClock) {
	t.Helper()
	store := tokenstore.NewMemory()
	clock := &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	logger, _ := test.NewNullLogger()
	m := NewManager(Config{
		ClientID:     "client-id",
		ClientSecret: secret,
		RedirectURI:  "https://example.com/callback",
		Scopes:       []string{"r:devices:*", "r:locations:*"},
		AuthURL:      ts.URL + "/oauth/authorize",
		TokenURL:     ts.URL + "/oauth/token",
	}, store, WithClock(clock.Now), WithLogger(logger), WithHTTPClient(ts.Client()))
	return m, store, clock
}

func storeCredential(t *testing.T, store tokenstore.Store, c Credential) {
	t.Helper()
	raw, err := c.encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(context.Background(), "smartthings_oauth_tokens", raw); err != nil {
		t.Fatal(err)
	}
}

func TestBeginAuthorizationPKCE(t *testing.T) {
	ts := newTokenServer(t)
	m, store, _ := newTestManager(t, ts, "")
	ctx := context.Background()

	req, err := m.BeginAuthorization(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != http.MethodGet || !req.PKCE {
		t.Errorf("unexpected request %+v", req)
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/oauth/authorize" {
		t.Errorf("Expected authorize path, got %s", u.Path)
	}
	q := u.Query()
	verifier, err := store.Get(ctx, "smartthings_code_verifier")
	if err != nil {
		t.Fatalf("Expected stored verifier: %v", err)
	}
	if len(verifier) != 128 || !ValidCodeVerifier(verifier) {
		t.Errorf("invalid verifier %q", verifier)
	}
	want := map[string]string{
		"client_id":             "client-id",
		"response_type":         "code",
		"redirect_uri":          "https://example.com/callback",
		"scope":                 "r:devices:* r:locations:*",
		"code_challenge":        ComputeS256Challenge(verifier),
		"code_challenge_method": "S256",
		"state":                 req.State,
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}
	if len(req.State) != 32 {
		t.Errorf("Expected 32 character state, got %d", len(req.State))
	}

	again, err := m.BeginAuthorization(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := store.Get(ctx, "smartthings_code_verifier")
	if second == verifier || again.State == req.State {
		t.Error("Expected a new verifier and state on every authorization")
	}
}

func TestBeginAuthorizationWithSecretOmitsPKCE(t *testing.T) {
	ts := newTokenServer(t)
	m, store, _ := newTestManager(t, ts, "shh")
	ctx := context.Background()
	store.Put(ctx, "smartthings_code_verifier", "stale")

	req, err := m.BeginAuthorization(ctx)
	if err != nil {
		t.Fatal(err)
	}
	q, _ := url.ParseQuery(strings.SplitN(req.URL, "?", 2)[1])
	if q.Has("code_challenge") || q.Has("code_challenge_method") {
		t.Errorf("Expected no PKCE params, got %s", req.URL)
	}
	if _, err := store.Get(ctx, "smartthings_code_verifier"); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Error("Expected stale verifier to be removed")
	}
}

func TestCompleteAuthorizationPKCE(t *testing.T) {
	ts := newTokenServer(t)
	m, store, clock := newTestManager(t, ts, "")
	ctx := context.Background()
	if m.IsAuthorized(ctx) {
		t.Fatal("Expected fresh manager to be unauthorized")
	}

	if _, err := m.BeginAuthorization(ctx); err != nil {
		t.Fatal(err)
	}
	verifier, _ := store.Get(ctx, "smartthings_code_verifier")

	cred, err := m.CompleteAuthorization(ctx, "the-code")
	if err != nil {
		t.Fatal(err)
	}
	form, auth := ts.lastForm()
	if auth != "" {
		t.Errorf("Expected no Authorization header, got %q", auth)
	}
	want := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "the-code",
		"redirect_uri":  "https://example.com/callback",
		"client_id":     "client-id",
		"code_verifier": verifier,
	}
	for k, v := range want {
		if got := form.Get(k); got != v {
			t.Errorf("form %s = %q, want %q", k, got, v)
		}
	}
	if form.Has("client_secret") {
		t.Error("Expected no client_secret in body")
	}

	if cred.AccessToken != "access-1" || cred.RefreshToken != "refresh-1" || cred.ExpiresIn != 3600 {
		t.Errorf("unexpected credential %+v", cred)
	}
	if cred.IssuedAt != clock.Now().UnixMilli() {
		t.Errorf("Expected IssuedAt %d, got %d", clock.Now().UnixMilli(), cred.IssuedAt)
	}
	if !m.IsAuthorized(ctx) {
		t.Error("Expected IsAuthorized after exchange")
	}
	for _, k := range []string{"smartthings_code_verifier", "smartthings_oauth_state"} {
		if _, err := store.Get(ctx, k); !errors.Is(err, tokenstore.ErrNotFound) {
			t.Errorf("Expected %s to be removed after exchange", k)
		}
	}
}

func TestCompleteAuthorizationWithSecretUsesBasicAuth(t *testing.T) {
	for _, secret := range []string{"shh", "s3cr+t/x=", "50%:off&more"} {
		t.Run(secret, func(t *testing.T) {
			ts := newTokenServer(t)
			m, _, _ := newTestManager(t, ts, secret)
			ctx := context.Background()
			if _, err := m.BeginAuthorization(ctx); err != nil {
				t.Fatal(err)
			}
			if _, err := m.CompleteAuthorization(ctx, "code"); err != nil {
				t.Fatal(err)
			}
			form, auth := ts.lastForm()
			wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("client-id:"+secret))
			if auth != wantAuth {
				t.Errorf("Authorization = %q, want %q", auth, wantAuth)
			}
			for _, k := range []string{"client_id", "code_verifier", "client_secret"} {
				if form.Has(k) {
					t.Errorf("Expected %s to be absent from body", k)
				}
			}
			if form.Get("grant_type") != "authorization_code" || form.Get("code") != "code" {
				t.Errorf("unexpected form %v", form)
			}
		})
	}
}

func TestCompleteAuthorizationDefaults(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond(http.StatusOK, `{"access_token":"only-access"}`)
	m, _, _ := newTestManager(t, ts, "")
	cred, err := m.CompleteAuthorization(context.Background(), "code")
	if err != nil {
		t.Fatal(err)
	}
	if cred.RefreshToken != "" || cred.ExpiresIn != 86400 || cred.TokenType != "Bearer" {
		t.Errorf("Expected defaults, got %+v", cred)
	}
}

func TestCompleteAuthorizationFailure(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond(http.StatusBadRequest, `{"error":"invalid_grant"}`)
	m, store, _ := newTestManager(t, ts, "")
	ctx := context.Background()
	if _, err := m.BeginAuthorization(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := m.CompleteAuthorization(ctx, "bad-code")
	var exErr *AuthExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("Expected AuthExchangeError, got %T %v", err, err)
	}
	if exErr.StatusCode != http.StatusBadRequest || !strings.Contains(exErr.Body, "invalid_grant") {
		t.Errorf("unexpected error details %+v", exErr)
	}
	if m.IsAuthorized(ctx) {
		t.Error("Expected to stay unauthorized")
	}
	if store.Len() != 0 {
		t.Errorf("Expected verifier and state removed after failure, %d keys left", store.Len())
	}
}

func TestCompleteAuthorizationMissingAccessToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond(http.StatusOK, `{"refresh_token":"r"}`)
	m, _, _ := newTestManager(t, ts, "")
	_, err := m.CompleteAuthorization(context.Background(), "code")
	var exErr *AuthExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("Expected AuthExchangeError, got %v", err)
	}
}

func TestCompleteAuthorizationNetworkError(t *testing.T) {
	ts := newTokenServer(t)
	m, store, _ := newTestManager(t, ts, "")
	ctx := context.Background()
	if _, err := m.BeginAuthorization(ctx); err != nil {
		t.Fatal(err)
	}
	ts.Close()

	_, err := m.CompleteAuthorization(ctx, "code")
	var exErr *AuthExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("Expected AuthExchangeError, got %v", err)
	}
	if exErr.StatusCode != 0 {
		t.Errorf("Expected no status for a transport failure, got %d", exErr.StatusCode)
	}
	if store.Len() != 0 {
		t.Error("Expected verifier removed after transport failure")
	}
}

func TestCompleteAuthorizationEmptyCode(t *testing.T) {
	ts := newTokenServer(t)
	m, _, _ := newTestManager(t, ts, "")
	var exErr *AuthExchangeError
	if _, err := m.CompleteAuthorization(context.Background(), "  "); !errors.As(err, &exErr) {
		t.Fatalf("Expected AuthExchangeError, got %v", err)
	}
	if ts.calls.Load() != 0 {
		t.Error("Expected no token request for an empty code")
	}
}

func TestAccessTokenRefreshBuffer(t *testing.T) {
	tests := []struct {
		name        string
		remaining   time.Duration
		wantRefresh bool
	}{
		{"six minutes left", 6 * time.Minute, false},
		{"exactly five minutes left", 5 * time.Minute, true},
		{"four minutes left", 4 * time.Minute, true},
		{"already expired", -30 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			ts.respond(http.StatusOK, `{"access_token":"access-2","expires_in":7200}`)
			m, store, clock := newTestManager(t, ts, "")
			issued := clock.Now().Add(-time.Hour)
			storeCredential(t, store, Credential{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				ExpiresIn:    int64((time.Hour + tt.remaining) / time.Second),
				TokenType:    "Bearer",
				IssuedAt:     issued.UnixMilli(),
			})

			token, err := m.AccessToken(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			refreshed := ts.calls.Load() == 1
			if refreshed != tt.wantRefresh {
				t.Fatalf("refreshed = %v, want %v", refreshed, tt.wantRefresh)
			}
			want := "access-1"
			if tt.wantRefresh {
				want = "access-2"
				form, _ := ts.lastForm()
				if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "refresh-1" || form.Get("client_id") != "client-id" {
					t.Errorf("unexpected refresh form %v", form)
				}
				if form.Has("redirect_uri") || form.Has("code_verifier") {
					t.Errorf("Expected refresh without redirect_uri or verifier, got %v", form)
				}
				cred, _ := m.Credential(context.Background())
				if cred.RefreshToken != "refresh-1" {
					t.Errorf("Expected refresh token kept when none is returned, got %q", cred.RefreshToken)
				}
			}
			if token != want {
				t.Errorf("token = %q, want %q", token, want)
			}
		})
	}
}

func TestAccessTokenRefreshFailureClears(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond(http.StatusBadRequest, `{"error":"invalid_grant"}`)
	m, store, clock := newTestManager(t, ts, "")
	storeCredential(t, store, Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresIn:    60,
		IssuedAt:     clock.Now().UnixMilli(),
	})
	ctx := context.Background()

	_, err := m.AccessToken(ctx)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("Expected ErrNotAuthorized, got %v", err)
	}
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) || refreshErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected wrapped RefreshError with status 400, got %v", err)
	}
	if m.IsAuthorized(ctx) {
		t.Error("Expected IsAuthorized false after failed refresh")
	}

	if _, err := m.AccessToken(ctx); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized on second call, got %v", err)
	}
	if ts.calls.Load() != 1 {
		t.Errorf("Expected a single refresh attempt, got %d", ts.calls.Load())
	}
}

func TestAccessTokenWithoutRefreshTokenClears(t *testing.T) {
	ts := newTokenServer(t)
	m, store, clock := newTestManager(t, ts, "")
	storeCredential(t, store, Credential{AccessToken: "a", ExpiresIn: 60, IssuedAt: clock.Now().UnixMilli()})

	_, err := m.AccessToken(context.Background())
	if !errors.Is(err, ErrNotAuthorized) || !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("Expected not authorized due to missing refresh token, got %v", err)
	}
	if ts.calls.Load() != 0 {
		t.Error("Expected no request without a refresh token")
	}
	if m.IsAuthorized(context.Background()) {
		t.Error("Expected credential cleared")
	}
}

func TestAccessTokenNotAuthorized(t *testing.T) {
	ts := newTokenServer(t)
	m, store, _ := newTestManager(t, ts, "")
	if _, err := m.AccessToken(context.Background()); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized, got %v", err)
	}
	store.Put(context.Background(), "smartthings_oauth_tokens", "not json")
	if _, err := m.AccessToken(context.Background()); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized for an unreadable record, got %v", err)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	m, store, clock := newTestManager(t, ts, "")
	storeCredential(t, store, Credential{AccessToken: "a", ExpiresIn: 3600, IssuedAt: clock.Now().UnixMilli()})

	_, err := m.Refresh(context.Background())
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) || !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("Expected RefreshError wrapping ErrNoRefreshToken, got %v", err)
	}
	if ts.calls.Load() != 0 {
		t.Error("Expected no token request")
	}
}

func TestRefreshWithSecret(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond(http.StatusOK, `{"access_token":"access-2","refresh_token":"refresh-2","expires_in":100}`)
	m, store, clock := newTestManager(t, ts, "shh")
	storeCredential(t, store, Credential{AccessToken: "a", RefreshToken: "refresh-1", ExpiresIn: 3600, IssuedAt: clock.Now().UnixMilli()})

	cred, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cred.RefreshToken != "refresh-2" || cred.ExpiresIn != 100 {
		t.Errorf("unexpected credential %+v", cred)
	}
	form, auth := ts.lastForm()
	if !strings.HasPrefix(auth, "Basic ") || form.Has("client_id") {
		t.Errorf("Expected Basic client auth, got header %q form %v", auth, form)
	}
}

func TestRefreshKeepsRefreshTokenWhenOmitted(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond(http.StatusOK, `{"access_token":"access-2","expires_in":100}`)
	m, store, clock := newTestManager(t, ts, "")
	storeCredential(t, store, Credential{AccessToken: "a", RefreshToken: "refresh-1", ExpiresIn: 3600, IssuedAt: clock.Now().UnixMilli()})

	cred, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "access-2" || cred.RefreshToken != "refresh-1" {
		t.Errorf("Expected the previous refresh token kept, got %+v", cred)
	}
	stored, err := m.Credential(context.Background())
	if err != nil || stored.RefreshToken != "refresh-1" {
		t.Errorf("Expected the previous refresh token stored, got %+v, %v", stored, err)
	}
}

func TestRefreshIsSingleFlight(t *testing.T) {
	ts := newTokenServer(t)
	ts.mu.Lock()
	ts.delay = 50 * time.Millisecond
	ts.mu.Unlock()
	m, store, clock := newTestManager(t, ts, "")
	storeCredential(t, store, Credential{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60, IssuedAt: clock.Now().UnixMilli()})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := m.AccessToken(context.Background())
			if err == nil && token != "access-1" {
				err = fmt.Errorf("unexpected token %q", token)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("Expected one refresh request, got %d", n)
	}
}

func TestAccessTokenCallerCancelKeepsCredential(t *testing.T) {
	ts := newTokenServer(t)
	ts.mu.Lock()
	ts.delay = 300 * time.Millisecond
	ts.mu.Unlock()
	m, store, clock := newTestManager(t, ts, "")
	storeCredential(t, store, Credential{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60, IssuedAt: clock.Now().UnixMilli()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.AccessToken(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, ErrNotAuthorized) {
		t.Errorf("Expected a cancelled caller not to report ErrNotAuthorized, got %v", err)
	}
	if !m.IsAuthorized(context.Background()) {
		t.Error("Expected credential kept after the caller gave up")
	}

	token, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "access-1" {
		t.Errorf("Expected the refreshed token, got %q", token)
	}
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("Expected the refresh to be shared, got %d requests", n)
	}
	cred, err := m.Credential(context.Background())
	if err != nil || cred.RefreshToken != "refresh-1" {
		t.Errorf("Expected the refreshed credential stored, got %+v, %v", cred, err)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	ts := newTokenServer(t)
	m, store, _ := newTestManager(t, ts, "")
	ctx := context.Background()
	if _, err := m.CompleteAuthorization(ctx, "code"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.BeginAuthorization(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if m.IsAuthorized(ctx) || store.Len() != 0 {
		t.Errorf("Expected empty store after logout, %d keys left", store.Len())
	}
}

func TestReauthorize(t *testing.T) {
	ts := newTokenServer(t)
	m, _, _ := newTestManager(t, ts, "")
	ctx := context.Background()
	if _, err := m.CompleteAuthorization(ctx, "code"); err != nil {
		t.Fatal(err)
	}
	req, err := m.Reauthorize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.IsAuthorized(ctx) {
		t.Error("Expected credential cleared by Reauthorize")
	}
	if err := m.ValidateState(ctx, req.State); err != nil {
		t.Errorf("Expected new state to validate: %v", err)
	}
}

func TestValidateState(t *testing.T) {
	ts := newTokenServer(t)
	m, _, _ := newTestManager(t, ts, "")
	ctx := context.Background()
	if err := m.ValidateState(ctx, "anything"); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Expected mismatch without a pending authorization, got %v", err)
	}
	req, err := m.BeginAuthorization(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.ValidateState(ctx, req.State+"x"); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Expected mismatch, got %v", err)
	}
	if err := m.ValidateState(ctx, req.State); err != nil {
		t.Errorf("Expected state to validate, got %v", err)
	}
}

func TestObserverSeesTokenRequests(t *testing.T) {
	ts := newTokenServer(t)
	obs := &recordingObserver{}
	m := NewManager(Config{ClientID: "c", TokenURL: ts.URL}, tokenstore.NewMemory(),
		WithObserver(obs), WithHTTPClient(ts.Client()), WithLogger(logrus.New()))
	if _, err := m.CompleteAuthorization(context.Background(), "code"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if strings.Join(obs.grants, ",") != "authorization_code,refresh_token" {
		t.Errorf("unexpected grants %v", obs.grants)
	}
}
