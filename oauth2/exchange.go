package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ExchangeCode trades an authorization code for an access token at the
// configured token endpoint. Exactly one outbound request, no retries:
// a failed exchange means the whole attempt starts over anyway.
func (s Service) ExchangeCode(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: authorization code is empty", ErrInvalidAttempt)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.Config.RedirectURI)
	form.Set("client_id", s.Config.ClientID)
	form.Set("client_secret", s.Config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Config.TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %v", ErrConfig, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	debugf("oauth2 token POST %s", s.Config.TokenEndpoint)

	resp, err := s.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint read: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint HTTP %d: %s",
			ErrTransport, resp.StatusCode, snippet(raw, 200))
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("%w: token endpoint decode: %v body=%q",
			ErrProtocol, err, snippet(raw, 200))
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint response has no access_token", ErrProtocol)
	}
	return body.AccessToken, nil
}
