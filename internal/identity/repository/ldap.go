package repository

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"mfa-orphans/internal/identity/domain"
)

const (
	ldapDialTimeout = 5 * time.Second
	ldapOpTimeout   = 15 * time.Second
	ldapPageSize    = 500
)

// LDAPConfig configures LDAPDirectory. Attribute names default to uid, mail and memberOf.
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	UserFilter   string
	UIDAttr      string
	MailAttr     string
	GroupAttr    string
}

// LDAPDirectory implements Directory with a fresh connection per call. Results are never cached.
type LDAPDirectory struct {
	cfg LDAPConfig
}

// NewLDAPDirectory returns a Directory backed by the LDAP server in cfg.
func NewLDAPDirectory(cfg LDAPConfig) *LDAPDirectory {
	if cfg.UserFilter == "" {
		cfg.UserFilter = "(objectClass=inetOrgPerson)"
	}
	if cfg.UIDAttr == "" {
		cfg.UIDAttr = "uid"
	}
	if cfg.MailAttr == "" {
		cfg.MailAttr = "mail"
	}
	if cfg.GroupAttr == "" {
		cfg.GroupAttr = "memberOf"
	}
	return &LDAPDirectory{cfg: cfg}
}

func (d *LDAPDirectory) connect(ctx context.Context) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := ldap.DialURL(d.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: ldapDialTimeout}))
	if err != nil {
		return nil, fmt.Errorf("ldap: dial: %w", err)
	}
	conn.SetTimeout(ldapOpTimeout)
	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ldap: bind: %w", err)
		}
	}
	return conn, nil
}

func (d *LDAPDirectory) search(ctx context.Context, filter string, attrs []string) ([]*ldap.Entry, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, attrs, nil,
	)
	res, err := conn.SearchWithPaging(req, ldapPageSize)
	if err != nil {
		return nil, fmt.Errorf("ldap: search: %w", err)
	}
	return res.Entries, nil
}

// ListIdentities returns every entry matching the user filter that carries a UID.
func (d *LDAPDirectory) ListIdentities(ctx context.Context) ([]*domain.Identity, error) {
	entries, err := d.search(ctx, d.cfg.UserFilter, []string{d.cfg.UIDAttr, d.cfg.MailAttr})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Identity, 0, len(entries))
	for _, e := range entries {
		uid := strings.TrimSpace(e.GetAttributeValue(d.cfg.UIDAttr))
		if uid == "" {
			continue
		}
		out = append(out, &domain.Identity{UID: uid, Email: strings.TrimSpace(e.GetAttributeValue(d.cfg.MailAttr))})
	}
	return out, nil
}

// GroupMembership returns the group names (first RDN value of each group DN) for uid.
func (d *LDAPDirectory) GroupMembership(ctx context.Context, uid string) ([]string, error) {
	entries, err := d.search(ctx, d.userFilter(uid), []string{d.cfg.GroupAttr})
	if err != nil {
		return nil, err
	}
	var groups []string
	for _, e := range entries {
		for _, v := range e.GetAttributeValues(d.cfg.GroupAttr) {
			if name := groupName(v); name != "" {
				groups = append(groups, name)
			}
		}
	}
	return groups, nil
}

// LookupEmail returns the mail attribute of uid.
func (d *LDAPDirectory) LookupEmail(ctx context.Context, uid string) (string, error) {
	entries, err := d.search(ctx, d.userFilter(uid), []string{d.cfg.MailAttr})
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if mail := strings.TrimSpace(e.GetAttributeValue(d.cfg.MailAttr)); mail != "" {
			return mail, nil
		}
	}
	return "", ErrIdentityNotFound
}

// userFilter narrows the configured user filter to one escaped uid.
func (d *LDAPDirectory) userFilter(uid string) string {
	return fmt.Sprintf("(&%s(%s=%s))", d.cfg.UserFilter, d.cfg.UIDAttr, ldap.EscapeFilter(uid))
}

// groupName returns the leading RDN value of a group DN ("cn=admins,ou=groups,..." -> "admins").
// Values that are not DNs are returned as-is.
func groupName(v string) string {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, "=") {
		return v
	}
	dn, err := ldap.ParseDN(v)
	if err != nil || len(dn.RDNs) == 0 || len(dn.RDNs[0].Attributes) == 0 {
		return ""
	}
	return dn.RDNs[0].Attributes[0].Value
}
