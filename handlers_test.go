package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"sso-portal/groups"
	"sso-portal/oauth2"
	"sso-portal/statestore"
)

// testIdP serves the token and user-info endpoints a callback needs.
func testIdP(t *testing.T, userBody map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1"})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// wireFlow points the handler globals at a test flow and restores them after.
func wireFlow(t *testing.T, idpURL string) {
	t.Helper()

	prevFlow, prevKey, prevResolver := authFlow, sessionKey, groupResolver
	t.Cleanup(func() {
		authFlow, sessionKey, groupResolver = prevFlow, prevKey, prevResolver
	})

	secret := []byte("test-session-secret")
	codec, err := oauth2.NewStateCodec(secret, 0)
	if err != nil {
		t.Fatalf("NewStateCodec: %v", err)
	}
	key, err := oauth2.DeriveKey(secret, "session-cookie")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	sessionKey = key
	groupResolver = nil
	authFlow = oauth2.Service{
		Config: &oauth2.Config{
			AuthorizationEndpoint: idpURL + "/authorize",
			TokenEndpoint:         idpURL + "/token",
			UserInfoEndpoint:      idpURL + "/userinfo",
			RedirectURI:           "http://localhost:8089/auth/callback",
			ClientID:              "portal-client",
			ClientSecret:          "s3cret",
			Issuer:                idpURL,
			MaxStateValidity:      10 * time.Minute,
		},
		States: codec,
		Used:   statestore.NewMemoryStore(),
	}
}

func callbackRequest(t *testing.T, code string) *http.Request {
	t.Helper()
	state, err := authFlow.States.Generate(10 * time.Minute)
	if err != nil {
		t.Fatalf("generate state: %v", err)
	}
	q := url.Values{"code": {code}, "state": {state}}
	return httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil)
}

func TestHandleLoginRedirectsToIdP(t *testing.T) {
	idp := testIdP(t, map[string]any{"username": "alice"})
	wireFlow(t, idp.URL)

	rec := httptest.NewRecorder()
	handleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if loc.Path != "/authorize" {
		t.Fatalf("Location path = %q", loc.Path)
	}
	if loc.Query().Get("state") == "" || loc.Query().Get("client_id") != "portal-client" {
		t.Fatalf("Location query incomplete: %v", loc.Query())
	}
}

func TestHandleLoginConfigError(t *testing.T) {
	idp := testIdP(t, nil)
	wireFlow(t, idp.URL)
	authFlow.Config.ClientID = ""

	rec := httptest.NewRecorder()
	handleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandleCallbackEstablishesSession(t *testing.T) {
	idp := testIdP(t, map[string]any{"username": "alice", "groups": []string{"ops", "dev"}})
	wireFlow(t, idp.URL)

	rec := httptest.NewRecorder()
	handleCallback(rec, callbackRequest(t, "code-1"))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/home" {
		t.Fatalf("Location = %q, want /home", loc)
	}

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("expected a session cookie")
	}
	if !session.HttpOnly {
		t.Fatal("session cookie must be HTTP-only")
	}

	// The cookie must round-trip through /home.
	home := httptest.NewRequest(http.MethodGet, "/home", nil)
	home.AddCookie(session)
	rec = httptest.NewRecorder()
	handleHome(rec, home)

	if rec.Code != http.StatusOK {
		t.Fatalf("home status = %d, want 200", rec.Code)
	}
	var body struct {
		Username string   `json:"username"`
		Groups   []string `json:"groups"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode home body: %v", err)
	}
	if body.Username != "alice" {
		t.Fatalf("username = %q", body.Username)
	}
	if !reflect.DeepEqual(body.Groups, []string{"dev", "ops"}) {
		t.Fatalf("groups = %v", body.Groups)
	}
}

func TestHandleCallbackFailureBouncesBackToIdP(t *testing.T) {
	idp := testIdP(t, map[string]any{"email": "no-username@example.com"})
	wireFlow(t, idp.URL)

	rec := httptest.NewRecorder()
	handleCallback(rec, callbackRequest(t, "code-1"))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, idp.URL+"/authorize") {
		t.Fatalf("failed callback must redirect to the IdP, got %q", loc)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			t.Fatal("failed callback must not establish a session")
		}
	}
}

func TestHandleCallbackMissingStateBouncesBackToIdP(t *testing.T) {
	idp := testIdP(t, map[string]any{"username": "alice"})
	wireFlow(t, idp.URL)

	rec := httptest.NewRecorder()
	handleCallback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, idp.URL+"/authorize") {
		t.Fatalf("Location = %q", loc)
	}
}

func TestHandleHomeWithoutSessionStartsLogin(t *testing.T) {
	idp := testIdP(t, nil)
	wireFlow(t, idp.URL)

	rec := httptest.NewRecorder()
	handleHome(rec, httptest.NewRequest(http.MethodGet, "/home", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, idp.URL+"/authorize") {
		t.Fatalf("Location = %q", loc)
	}
}

func TestHandleLogoutExpiresSession(t *testing.T) {
	idp := testIdP(t, nil)
	wireFlow(t, idp.URL)

	rec := httptest.NewRecorder()
	handleLogout(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	if session == nil || session.MaxAge >= 0 {
		t.Fatalf("expected an expiring session cookie, got %+v", session)
	}
}

type staticResolver struct {
	groups []string
	err    error
}

func (s staticResolver) Groups(context.Context, string) ([]string, error) {
	return s.groups, s.err
}

func TestResolveGroupsMergesDirectory(t *testing.T) {
	idp := testIdP(t, nil)
	wireFlow(t, idp.URL)
	groupResolver = staticResolver{groups: []string{"admins", "dev"}}

	got := resolveGroups(httptest.NewRequest(http.MethodGet, "/", nil), oauth2.Identity{
		Username: "alice",
		Groups:   []string{"dev", "ops"},
	})
	if want := []string{"admins", "dev", "ops"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("resolveGroups = %v, want %v", got, want)
	}
}

func TestResolveGroupsSurvivesDirectoryOutage(t *testing.T) {
	idp := testIdP(t, nil)
	wireFlow(t, idp.URL)
	groupResolver = staticResolver{err: errors.New("directory unreachable")}

	got := resolveGroups(httptest.NewRequest(http.MethodGet, "/", nil), oauth2.Identity{
		Username: "alice",
		Groups:   []string{"ops"},
	})
	if want := []string{"ops"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("resolveGroups = %v, want %v", got, want)
	}
}

var _ groups.Resolver = staticResolver{}
