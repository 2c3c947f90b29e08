package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// FetchUserInfo retrieves the authenticated user's claims with the given
// access token. The username claim is mandatory; the groups claim is not,
// and anything that is not a JSON array counts as "no groups".
func (s Service) FetchUserInfo(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Config.UserInfoEndpoint, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: build user-info request: %v", ErrConfig, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	debugf("oauth2 user-info GET %s", s.Config.UserInfoEndpoint)

	resp, err := s.client().Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: user-info endpoint: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: user-info read: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("%w: user-info endpoint HTTP %d: %s",
			ErrTransport, resp.StatusCode, snippet(raw, 200))
	}

	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: user-info decode: %v body=%q",
			ErrProtocol, err, snippet(raw, 200))
	}

	username := claimString(claims[s.Config.usernameClaim()])
	if username == "" {
		return Identity{}, fmt.Errorf("%w: required claim %q missing from user-info response",
			ErrProtocol, s.Config.usernameClaim())
	}

	return Identity{
		Username: username,
		Groups:   claimGroups(claims[s.Config.groupsClaim()]),
	}, nil
}

// claimString renders a scalar claim value the way the IdP meant it;
// explicit null and absent both come back empty.
func claimString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers arrive as float64; whole values print without decimals.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// claimGroups converts a groups claim to a deduplicated, sorted set of
// strings. A missing or non-array claim is an empty set, never an error.
func claimGroups(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(arr))
	for _, elem := range arr {
		g := claimString(elem)
		if g == "" {
			continue
		}
		seen[g] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
