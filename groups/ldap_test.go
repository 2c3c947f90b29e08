package groups

import (
	"context"
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	cases := []struct {
		name      string
		claim     []string
		directory []string
		want      []string
	}{
		{
			name:      "disjoint sets",
			claim:     []string{"ops"},
			directory: []string{"dev"},
			want:      []string{"dev", "ops"},
		},
		{
			name:      "overlap collapses",
			claim:     []string{"ops", "dev"},
			directory: []string{"dev", "admins"},
			want:      []string{"admins", "dev", "ops"},
		},
		{
			name:      "blank entries dropped",
			claim:     []string{"  ", "ops"},
			directory: []string{""},
			want:      []string{"ops"},
		},
		{
			name:      "directory only",
			claim:     nil,
			directory: []string{"dev"},
			want:      []string{"dev"},
		},
		{
			name:      "both empty",
			claim:     nil,
			directory: []string{},
			want:      nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Merge(tc.claim, tc.directory)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Merge(%v, %v) = %v, want %v", tc.claim, tc.directory, got, tc.want)
			}
		})
	}
}

func TestLDAPConfigDefaults(t *testing.T) {
	cfg := LDAPConfig{}
	if got := cfg.userAttr(); got != "uid" {
		t.Fatalf("userAttr() = %q", got)
	}
	if got := cfg.groupAttr(); got != "cn" {
		t.Fatalf("groupAttr() = %q", got)
	}
	if got := cfg.memberAttr(); got != "member" {
		t.Fatalf("memberAttr() = %q", got)
	}

	cfg = LDAPConfig{UserAttr: "sAMAccountName", GroupAttr: "name", MemberAttr: "uniqueMember"}
	if cfg.userAttr() != "sAMAccountName" || cfg.groupAttr() != "name" || cfg.memberAttr() != "uniqueMember" {
		t.Fatal("explicit attributes must not be overridden")
	}
}

func TestNewLDAPResolverValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  LDAPConfig
	}{
		{"missing host", LDAPConfig{UserBaseDN: "ou=people,dc=example,dc=com", GroupBaseDN: "ou=groups,dc=example,dc=com"}},
		{"missing user base", LDAPConfig{Host: "ldap.example.com", GroupBaseDN: "ou=groups,dc=example,dc=com"}},
		{"missing group base", LDAPConfig{Host: "ldap.example.com", UserBaseDN: "ou=people,dc=example,dc=com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewLDAPResolver(tc.cfg); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}

	valid := LDAPConfig{
		Host:        "ldap.example.com",
		UserBaseDN:  "ou=people,dc=example,dc=com",
		GroupBaseDN: "ou=groups,dc=example,dc=com",
	}
	if _, err := NewLDAPResolver(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestGroupsRejectsEmptyUsername(t *testing.T) {
	resolver, err := NewLDAPResolver(LDAPConfig{
		Host:        "ldap.example.com",
		UserBaseDN:  "ou=people,dc=example,dc=com",
		GroupBaseDN: "ou=groups,dc=example,dc=com",
	})
	if err != nil {
		t.Fatalf("NewLDAPResolver: %v", err)
	}
	if _, err := resolver.Groups(context.Background(), "   "); err == nil {
		t.Fatal("expected an error for an empty username")
	}
}
