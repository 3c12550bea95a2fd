// Package orphan finds MFA subjects with active credentials but no matching directory identity.
// Everything here is a pure function of its inputs and safe for concurrent use.
package orphan

import (
	identitydomain "mfa-orphans/internal/identity/domain"
	mfadomain "mfa-orphans/internal/mfastatus/domain"
)

// WebAuthnOrphan is an orphaned subject with its active device count.
type WebAuthnOrphan struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

// Result is the resolver output. Both lists keep snapshot order and may share subjects.
type Result struct {
	TOTP        []string         `json:"orphan_totp"`
	WebAuthn    []WebAuthnOrphan `json:"orphan_webauthn"`
	TotalUnique int              `json:"total_unique_subjects"`
}

// Index answers "is this subject a known identity" under one MatchPolicy.
type Index struct {
	policy identitydomain.MatchPolicy
	uids   map[string]struct{}
	emails map[string]struct{}
}

// NewIndex builds the lookup sets for identities. Emails are only indexed when the policy matches on them.
func NewIndex(identities []*identitydomain.Identity, policy identitydomain.MatchPolicy) *Index {
	idx := &Index{
		policy: policy,
		uids:   make(map[string]struct{}, len(identities)),
		emails: make(map[string]struct{}),
	}
	for _, id := range identities {
		if id == nil {
			continue
		}
		if k := identitydomain.FoldUID(id.UID); k != "" {
			idx.uids[k] = struct{}{}
		}
		if policy.MatchEmail {
			if e := identitydomain.FoldEmail(id.Email); e != "" {
				idx.emails[e] = struct{}{}
			}
		}
	}
	return idx
}

// Known reports whether subject matches a directory identity.
func (idx *Index) Known(subject string) bool {
	if _, ok := idx.uids[identitydomain.FoldUID(subject)]; ok {
		return true
	}
	if !idx.policy.MatchEmail {
		return false
	}
	if e := identitydomain.FoldEmail(subject); e != "" {
		_, ok := idx.emails[e]
		return ok
	}
	return false
}

// IsOrphan is the negation of Known.
func (idx *Index) IsOrphan(subject string) bool {
	return !idx.Known(subject)
}

// Resolve set-differences the snapshot's active subjects against the identity snapshot.
func Resolve(snapshot *mfadomain.Snapshot, identities []*identitydomain.Identity, policy identitydomain.MatchPolicy) Result {
	return ResolveWithIndex(snapshot, NewIndex(identities, policy))
}

// ResolveWithIndex is Resolve with a prebuilt Index.
func ResolveWithIndex(snapshot *mfadomain.Snapshot, idx *Index) Result {
	res := Result{TOTP: []string{}, WebAuthn: []WebAuthnOrphan{}}
	if snapshot == nil {
		return res
	}
	seen := make(map[string]struct{})
	for _, e := range snapshot.TOTP {
		if !e.Present || !idx.IsOrphan(e.Subject) {
			continue
		}
		res.TOTP = append(res.TOTP, e.Subject)
		seen[identitydomain.FoldUID(e.Subject)] = struct{}{}
	}
	for _, e := range snapshot.WebAuthn {
		if e.Count <= 0 || !idx.IsOrphan(e.Subject) {
			continue
		}
		res.WebAuthn = append(res.WebAuthn, WebAuthnOrphan{Subject: e.Subject, Count: e.Count})
		seen[identitydomain.FoldUID(e.Subject)] = struct{}{}
	}
	res.TotalUnique = len(seen)
	return res
}
