// Package domain defines the normalized MFA status snapshot published by the privileged worker.
package domain

// TOTPEntry is one subject of the snapshot's totp map.
type TOTPEntry struct {
	Subject string
	Present bool
}

// WebAuthnEntry is one subject of the snapshot's webauthn map with its normalized device count.
type WebAuthnEntry struct {
	Subject string
	Count   int
}

// Snapshot is the worker's point-in-time view of MFA enrollment. Entries keep document order.
// Internal code never sees the int-or-object wire form; Parse normalizes counts.
type Snapshot struct {
	GeneratedTS int64
	TOTP        []TOTPEntry
	WebAuthn    []WebAuthnEntry

	totpIdx     map[string]int
	webauthnIdx map[string]int
}

// NewSnapshot builds a Snapshot from already-normalized entries. Later duplicates overwrite earlier
// values but keep the first position.
func NewSnapshot(generatedTS int64, totp []TOTPEntry, webauthn []WebAuthnEntry) *Snapshot {
	s := &Snapshot{
		GeneratedTS: generatedTS,
		totpIdx:     make(map[string]int, len(totp)),
		webauthnIdx: make(map[string]int, len(webauthn)),
	}
	for _, e := range totp {
		if i, ok := s.totpIdx[e.Subject]; ok {
			s.TOTP[i].Present = e.Present
			continue
		}
		s.totpIdx[e.Subject] = len(s.TOTP)
		s.TOTP = append(s.TOTP, e)
	}
	for _, e := range webauthn {
		if e.Count < 0 {
			e.Count = 0
		}
		if i, ok := s.webauthnIdx[e.Subject]; ok {
			s.WebAuthn[i].Count = e.Count
			continue
		}
		s.webauthnIdx[e.Subject] = len(s.WebAuthn)
		s.WebAuthn = append(s.WebAuthn, e)
	}
	return s
}

// HasTOTP reports whether subject has a TOTP secret present.
func (s *Snapshot) HasTOTP(subject string) bool {
	if s == nil {
		return false
	}
	i, ok := s.totpIdx[subject]
	return ok && s.TOTP[i].Present
}

// WebAuthnCount returns the effective device count for subject (0 if absent).
func (s *Snapshot) WebAuthnCount(subject string) int {
	if s == nil {
		return 0
	}
	i, ok := s.webauthnIdx[subject]
	if !ok {
		return 0
	}
	return s.WebAuthn[i].Count
}
