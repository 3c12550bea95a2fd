package domain

import "strings"

// Identity is a canonical directory account. UID is case-preserved and compared case-insensitively.
type Identity struct {
	UID   string
	Email string // empty if the directory has no mail attribute for the account
}

// MatchPolicy controls how MFA subjects are matched against directory identities.
// UID-only matching is the default so stale email aliases cannot hide true orphans.
type MatchPolicy struct {
	MatchEmail bool
}

// FoldUID returns the comparison key for a UID.
func FoldUID(uid string) string {
	return strings.ToLower(strings.TrimSpace(uid))
}

// FoldEmail lower-cases an email and strips a plus tag from the local part,
// so user+tag@example.com and user@example.com compare equal. Returns "" if s is not an email.
func FoldEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return ""
	}
	local, host := s[:at], s[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	if local == "" {
		return ""
	}
	return local + "@" + host
}
