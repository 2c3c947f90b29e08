package oauth2

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized property names. These match the keys the host's properties
// store uses, so a deployment can be moved over without renaming anything.
const (
	PropAuthorizationEndpoint = "oauth2-authorization-endpoint"
	PropTokenEndpoint         = "oauth2-token-endpoint"
	PropUserInfoEndpoint      = "oauth2-user-info-endpoint"
	PropRedirectURI           = "oauth2-redirect-uri"
	PropClientID              = "oauth2-client-id"
	PropClientSecret          = "oauth2-client-secret"
	PropIssuer                = "oauth2-issuer"
	PropUsernameClaimType     = "oauth2-username-claim-type"
	PropGroupsClaimType       = "oauth2-groups-claim-type"
	PropScope                 = "oauth2-scope"
	PropMaxStateValidity      = "oauth2-max-state-validity"
	PropAllowedClockSkew      = "oauth2-allowed-clock-skew"
)

const (
	defaultUsernameClaimType = "username"
	defaultGroupsClaimType   = "groups"
	defaultScope             = "email profile"
	defaultMaxStateValidity  = 10 * time.Minute
	defaultAllowedClockSkew  = 30 * time.Second
)

// Config holds every setting the flow needs. It is populated once at
// startup and read concurrently afterwards; nothing mutates it.
type Config struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	RedirectURI           string
	ClientID              string
	ClientSecret          string

	// Issuer is required for parity with the properties surface but is
	// only consumed once ID-token signature verification lands.
	Issuer string

	UsernameClaimType string
	GroupsClaimType   string
	Scope             string

	// MaxStateValidity bounds how long an issued state value is accepted.
	MaxStateValidity time.Duration

	// AllowedClockSkew is the leeway granted when judging state expiry,
	// so slightly desynchronized clocks do not bounce logins.
	AllowedClockSkew time.Duration
}

// FromProperties builds a Config from a flat name/value snapshot, applying
// defaults for the optional keys. Unknown names are ignored.
func FromProperties(props map[string]string) (*Config, error) {
	get := func(name string) string { return strings.TrimSpace(props[name]) }

	cfg := &Config{
		AuthorizationEndpoint: get(PropAuthorizationEndpoint),
		TokenEndpoint:         get(PropTokenEndpoint),
		UserInfoEndpoint:      get(PropUserInfoEndpoint),
		RedirectURI:           get(PropRedirectURI),
		ClientID:              get(PropClientID),
		ClientSecret:          get(PropClientSecret),
		Issuer:                get(PropIssuer),
		UsernameClaimType:     get(PropUsernameClaimType),
		GroupsClaimType:       get(PropGroupsClaimType),
		Scope:                 get(PropScope),
	}

	cfg.applyDefaults()

	// Explicit values in the store win over defaults, including a skew of 0.
	if raw := get(PropMaxStateValidity); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive integer (minutes), got %q",
				ErrConfig, PropMaxStateValidity, raw)
		}
		cfg.MaxStateValidity = time.Duration(minutes) * time.Minute
	}

	if raw := get(PropAllowedClockSkew); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			return nil, fmt.Errorf("%w: %s must be a non-negative integer (seconds), got %q",
				ErrConfig, PropAllowedClockSkew, raw)
		}
		cfg.AllowedClockSkew = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.UsernameClaimType == "" {
		c.UsernameClaimType = defaultUsernameClaimType
	}
	if c.GroupsClaimType == "" {
		c.GroupsClaimType = defaultGroupsClaimType
	}
	if c.Scope == "" {
		c.Scope = defaultScope
	}
	if c.MaxStateValidity <= 0 {
		c.MaxStateValidity = defaultMaxStateValidity
	}
	c.AllowedClockSkew = defaultAllowedClockSkew
}

// Validate reports the first missing required setting as an ErrConfig.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{PropAuthorizationEndpoint, c.AuthorizationEndpoint},
		{PropTokenEndpoint, c.TokenEndpoint},
		{PropUserInfoEndpoint, c.UserInfoEndpoint},
		{PropRedirectURI, c.RedirectURI},
		{PropClientID, c.ClientID},
		{PropClientSecret, c.ClientSecret},
		{PropIssuer, c.Issuer},
	}
	for _, req := range required {
		if strings.TrimSpace(req.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrConfig, req.name)
		}
	}
	return nil
}

func (c *Config) usernameClaim() string {
	if c.UsernameClaimType == "" {
		return defaultUsernameClaimType
	}
	return c.UsernameClaimType
}

func (c *Config) groupsClaim() string {
	if c.GroupsClaimType == "" {
		return defaultGroupsClaimType
	}
	return c.GroupsClaimType
}

func (c *Config) scope() string {
	if c.Scope == "" {
		return defaultScope
	}
	return c.Scope
}

func (c *Config) stateValidity() time.Duration {
	if c.MaxStateValidity <= 0 {
		return defaultMaxStateValidity
	}
	return c.MaxStateValidity
}
