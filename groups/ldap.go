// Package groups augments the group memberships an identity provider
// reports with groups looked up in an LDAP directory. The lookup is
// best-effort: the portal logs and proceeds with claim groups alone when
// the directory is unreachable.
package groups

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

const ldapTimeout = 10 * time.Second

// Resolver looks up directory groups for an authenticated username.
type Resolver interface {
	Groups(ctx context.Context, username string) ([]string, error)
}

// LDAPConfig describes how to reach and query the directory.
type LDAPConfig struct {
	// Host is "host[:port]" or a full ldap:// / ldaps:// URL.
	Host     string
	StartTLS bool

	BindDN       string
	BindPassword string

	// UserBaseDN is searched for the user entry; UserAttr is the attribute
	// holding the login name (default "uid").
	UserBaseDN string
	UserAttr   string

	// GroupBaseDN is searched for group entries whose MemberAttr (default
	// "member") references the user's DN; GroupAttr (default "cn") names
	// the group in the result.
	GroupBaseDN string
	GroupAttr   string
	MemberAttr  string
}

func (c LDAPConfig) validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("groups: ldap host is required")
	}
	if strings.TrimSpace(c.UserBaseDN) == "" {
		return errors.New("groups: ldap user base DN is required")
	}
	if strings.TrimSpace(c.GroupBaseDN) == "" {
		return errors.New("groups: ldap group base DN is required")
	}
	return nil
}

func (c LDAPConfig) userAttr() string {
	if c.UserAttr == "" {
		return "uid"
	}
	return c.UserAttr
}

func (c LDAPConfig) groupAttr() string {
	if c.GroupAttr == "" {
		return "cn"
	}
	return c.GroupAttr
}

func (c LDAPConfig) memberAttr() string {
	if c.MemberAttr == "" {
		return "member"
	}
	return c.MemberAttr
}

// LDAPResolver implements Resolver against one directory server. A fresh
// connection per lookup keeps the resolver free of shared mutable state.
type LDAPResolver struct {
	Config LDAPConfig
}

func NewLDAPResolver(cfg LDAPConfig) (*LDAPResolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &LDAPResolver{Config: cfg}, nil
}

func (r *LDAPResolver) Groups(ctx context.Context, username string) ([]string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("groups: username is empty")
	}

	conn, err := dialLDAP(r.Config.Host, r.Config.StartTLS)
	if err != nil {
		return nil, fmt.Errorf("groups: dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}

	if r.Config.BindDN != "" {
		if err := conn.Bind(r.Config.BindDN, r.Config.BindPassword); err != nil {
			return nil, fmt.Errorf("groups: bind: %w", err)
		}
	}

	userDN, err := r.findUserDN(conn, username)
	if err != nil {
		return nil, err
	}

	return r.findGroups(conn, userDN)
}

func (r *LDAPResolver) findUserDN(conn *ldap.Conn, username string) (string, error) {
	req := ldap.NewSearchRequest(
		r.Config.UserBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(%s=%s)", r.Config.userAttr(), ldap.EscapeFilter(username)),
		[]string{"dn"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return "", fmt.Errorf("groups: user search: %w", err)
	}
	if len(res.Entries) == 0 {
		return "", fmt.Errorf("groups: no directory entry for %q", username)
	}
	return res.Entries[0].DN, nil
}

func (r *LDAPResolver) findGroups(conn *ldap.Conn, userDN string) ([]string, error) {
	req := ldap.NewSearchRequest(
		r.Config.GroupBaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(%s=%s)", r.Config.memberAttr(), ldap.EscapeFilter(userDN)),
		[]string{r.Config.groupAttr()},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("groups: group search: %w", err)
	}

	var groups []string
	for _, entry := range res.Entries {
		if name := strings.TrimSpace(entry.GetAttributeValue(r.Config.groupAttr())); name != "" {
			groups = append(groups, name)
		}
	}
	return groups, nil
}

func dialLDAP(host string, startTLS bool) (*ldap.Conn, error) {
	d := &net.Dialer{Timeout: ldapTimeout}
	url := host
	if !strings.HasPrefix(host, "ldap://") && !strings.HasPrefix(host, "ldaps://") {
		url = "ldap://" + host
	}
	conn, err := ldap.DialURL(url, ldap.DialWithDialer(d))
	if err != nil {
		return nil, err
	}
	if startTLS {
		if err := conn.StartTLS(nil); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// Merge combines claim groups and directory groups into one deduplicated,
// sorted set.
func Merge(claimGroups, directoryGroups []string) []string {
	seen := make(map[string]struct{}, len(claimGroups)+len(directoryGroups))
	for _, g := range claimGroups {
		if g = strings.TrimSpace(g); g != "" {
			seen[g] = struct{}{}
		}
	}
	for _, g := range directoryGroups {
		if g = strings.TrimSpace(g); g != "" {
			seen[g] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	merged := make([]string, 0, len(seen))
	for g := range seen {
		merged = append(merged, g)
	}
	sort.Strings(merged)
	return merged
}
