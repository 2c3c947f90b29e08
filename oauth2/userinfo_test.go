package oauth2

import (
	"reflect"
	"testing"
)

func TestClaimString(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"absent", nil, ""},
		{"string", "alice", "alice"},
		{"whole number", float64(1138), "1138"},
		{"fractional number", 3.5, "3.5"},
		{"bool", true, "true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := claimString(tc.in); got != tc.want {
				t.Fatalf("claimString(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestClaimGroups(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
	}{
		{"absent", nil, nil},
		{"not an array", "ops", nil},
		{"object", map[string]any{"a": 1}, nil},
		{"strings", []any{"ops", "dev"}, []string{"dev", "ops"}},
		{"duplicates collapse", []any{"ops", "ops", "dev"}, []string{"dev", "ops"}},
		{"mixed element types", []any{"ops", float64(7), nil, ""}, []string{"7", "ops"}},
		{"empty array", []any{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := claimGroups(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("claimGroups(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
