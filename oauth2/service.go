package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"sso-portal/statestore"
)

// Identity is the outcome of a successful callback: who logged in and which
// groups the IdP says they belong to. Groups may be empty; Username never is.
type Identity struct {
	Username string
	Groups   []string
}

// Request carries the only pieces of an incoming host request the flow cares
// about: the optional authorization code and the echoed state value.
type Request struct {
	Code  string
	State string
}

// RequestFromQuery extracts a Request from raw callback query parameters.
func RequestFromQuery(q url.Values) Request {
	return Request{
		Code:  q.Get("code"),
		State: q.Get("state"),
	}
}

// Outcome is the two-variant result of an authentication attempt: exactly one
// of Identity (authenticated) or LoginURL (send the browser back to the IdP)
// is set. There are no other terminal states.
type Outcome struct {
	Identity *Identity
	LoginURL string
}

// Authenticated reports whether the attempt produced an identity.
func (o Outcome) Authenticated() bool { return o.Identity != nil }

// Service drives the authorization-code login flow against one configured
// identity provider. It holds no per-attempt state and is safe for
// concurrent use; every attempt is a single pass through Authenticate.
type Service struct {
	Config *Config

	// States mints and checks the anti-forgery state values.
	States *StateCodec

	// Used enforces one-time consumption of state values. Optional: when
	// nil, states are still signature- and expiry-checked but may be
	// presented more than once within their validity window.
	Used statestore.Store

	// Client overrides the shared HTTP client, mainly for tests.
	Client *http.Client
}

func (s Service) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return httpx
}

// LoginURL builds the authorization redirect the host should send the
// browser to. Each call mints a fresh state value; everything else is
// pinned by configuration. Fails only when configuration is incomplete.
func (s Service) LoginURL(_ context.Context) (string, error) {
	if err := s.Config.Validate(); err != nil {
		return "", err
	}

	u, err := url.Parse(s.Config.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: invalid authorization endpoint: %v", ErrConfig, err)
	}

	state, err := s.States.Generate(s.Config.stateValidity())
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("scope", s.Config.scope())
	q.Set("response_type", "code")
	q.Set("client_id", s.Config.ClientID)
	q.Set("redirect_uri", s.Config.RedirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Authenticate runs one pass of the callback state machine:
//
//  1. no code on the request -> redirect outcome, no outbound calls;
//  2. state missing, forged, expired, or already consumed -> redirect;
//  3. code exchange fails -> redirect;
//  4. user-info retrieval fails or lacks the username claim -> redirect;
//  5. otherwise the authenticated identity.
//
// Every collapsed failure is logged with its diagnostic detail before the
// end user is pointed back at the IdP login page; only configuration errors
// surface to the caller.
func (s Service) Authenticate(ctx context.Context, req Request) (Outcome, error) {
	if err := s.Config.Validate(); err != nil {
		return Outcome{}, err
	}

	if req.Code == "" {
		debugf("oauth2 authenticate: no authorization code, redirecting to IdP")
		return s.redirect(ctx)
	}

	if err := s.verifyState(ctx, req.State); err != nil {
		warnf("oauth2 authenticate: %v", err)
		return s.redirect(ctx)
	}

	accessToken, err := s.ExchangeCode(ctx, req.Code)
	if err != nil {
		warnf("oauth2 authenticate: code exchange failed: %v", err)
		return s.redirect(ctx)
	}

	identity, err := s.FetchUserInfo(ctx, accessToken)
	if err != nil {
		warnf("oauth2 authenticate: user-info retrieval failed: %v", err)
		return s.redirect(ctx)
	}

	debugf("oauth2 authenticate: %q authenticated with %d group(s)",
		identity.Username, len(identity.Groups))
	return Outcome{Identity: &identity}, nil
}

func (s Service) redirect(ctx context.Context) (Outcome, error) {
	loginURL, err := s.LoginURL(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{LoginURL: loginURL}, nil
}

// verifyState checks that the echoed state was issued by us, is still
// inside its validity window, and has not been consumed before.
func (s Service) verifyState(ctx context.Context, state string) error {
	if state == "" {
		return fmt.Errorf("%w: state parameter missing", ErrInvalidAttempt)
	}
	id, expiresAt, err := s.States.Validate(state)
	if err != nil {
		return err
	}
	if s.Used == nil {
		return nil
	}
	if err := s.Used.Consume(ctx, id, expiresAt); err != nil {
		if errors.Is(err, statestore.ErrAlreadyUsed) {
			return fmt.Errorf("%w: state already used", ErrInvalidAttempt)
		}
		// A broken replay store should not lock every user out; fall back
		// to expiry-only validation and make noise for the operators.
		warnf("oauth2 authenticate: state store unavailable, skipping replay check: %v", err)
	}
	return nil
}
