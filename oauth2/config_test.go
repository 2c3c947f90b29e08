package oauth2

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validProps() map[string]string {
	return map[string]string{
		PropAuthorizationEndpoint: "https://idp.example.com/authorize",
		PropTokenEndpoint:         "https://idp.example.com/token",
		PropUserInfoEndpoint:      "https://idp.example.com/userinfo",
		PropRedirectURI:           "https://portal.example.com/auth/callback",
		PropClientID:              "portal-client",
		PropClientSecret:          "s3cret",
		PropIssuer:                "https://idp.example.com",
	}
}

func TestFromPropertiesDefaults(t *testing.T) {
	cfg, err := FromProperties(validProps())
	if err != nil {
		t.Fatalf("FromProperties: %v", err)
	}
	if cfg.UsernameClaimType != "username" {
		t.Fatalf("username claim default: %q", cfg.UsernameClaimType)
	}
	if cfg.GroupsClaimType != "groups" {
		t.Fatalf("groups claim default: %q", cfg.GroupsClaimType)
	}
	if cfg.Scope != "email profile" {
		t.Fatalf("scope default: %q", cfg.Scope)
	}
	if cfg.MaxStateValidity != 10*time.Minute {
		t.Fatalf("state validity default: %s", cfg.MaxStateValidity)
	}
	if cfg.AllowedClockSkew != 30*time.Second {
		t.Fatalf("clock skew default: %s", cfg.AllowedClockSkew)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFromPropertiesOverrides(t *testing.T) {
	props := validProps()
	props[PropUsernameClaimType] = "preferred_username"
	props[PropScope] = "openid email"
	props[PropMaxStateValidity] = "5"
	props[PropAllowedClockSkew] = "0"

	cfg, err := FromProperties(props)
	if err != nil {
		t.Fatalf("FromProperties: %v", err)
	}
	if cfg.UsernameClaimType != "preferred_username" {
		t.Fatalf("username claim: %q", cfg.UsernameClaimType)
	}
	if cfg.Scope != "openid email" {
		t.Fatalf("scope: %q", cfg.Scope)
	}
	if cfg.MaxStateValidity != 5*time.Minute {
		t.Fatalf("state validity: %s", cfg.MaxStateValidity)
	}
	if cfg.AllowedClockSkew != 0 {
		t.Fatalf("clock skew should honour explicit zero, got %s", cfg.AllowedClockSkew)
	}
}

func TestFromPropertiesBadIntegers(t *testing.T) {
	for _, tc := range []struct{ name, value string }{
		{PropMaxStateValidity, "soon"},
		{PropMaxStateValidity, "-3"},
		{PropAllowedClockSkew, "skewy"},
	} {
		props := validProps()
		props[tc.name] = tc.value
		if _, err := FromProperties(props); !errors.Is(err, ErrConfig) {
			t.Fatalf("%s=%q: expected config error, got %v", tc.name, tc.value, err)
		}
	}
}

func TestValidateReportsMissingKey(t *testing.T) {
	for _, missing := range []string{
		PropAuthorizationEndpoint,
		PropTokenEndpoint,
		PropUserInfoEndpoint,
		PropRedirectURI,
		PropClientID,
		PropClientSecret,
		PropIssuer,
	} {
		props := validProps()
		delete(props, missing)
		cfg, err := FromProperties(props)
		if err != nil {
			t.Fatalf("FromProperties: %v", err)
		}
		err = cfg.Validate()
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("missing %s: expected config error, got %v", missing, err)
		}
		if !strings.Contains(err.Error(), missing) {
			t.Fatalf("error should name %s, got %q", missing, err)
		}
	}
}
