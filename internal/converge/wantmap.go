package converge

import (
	"sort"
	"sync"
	"time"

	actiondomain "mfa-orphans/internal/action/domain"
	statusdomain "mfa-orphans/internal/mfastatus/domain"
)

// Snapshot strategy timings. Tries scale with how much work one poll is waiting for.
const (
	SnapshotInterval = 3 * time.Second

	SingleOpTries   = 80
	CombinedOpTries = 100
	BulkTries       = 120
)

// Dimension is one enrollment kind tracked per subject.
type Dimension string

const (
	DimTOTP     Dimension = "totp"
	DimWebAuthn Dimension = "webauthn"
)

// Want is the expected post-state for one subject. A nil field is not tracked.
// TOTP false is satisfied when no secret is present. WebAuthn n is satisfied when the
// effective device count is at most n.
type Want struct {
	TOTP     *bool `json:"totp,omitempty"`
	WebAuthn *int  `json:"webauthn,omitempty"`
}

// WantMap maps subjects to their expected post-state.
type WantMap map[string]Want

// WantFor returns the post-state req should produce. snap is only consulted for a single-device
// webauthn delete, where the expectation is one fewer than the current count; without a snapshot
// that case is not tracked and ok is false.
func WantFor(req actiondomain.Request, snap *statusdomain.Snapshot) (Want, bool) {
	switch req.Op {
	case actiondomain.OpTOTPDelete:
		f := false
		return Want{TOTP: &f}, true
	case actiondomain.OpWebAuthnDelete:
		n := 0
		if req.Target != nil && req.Target.Scope == actiondomain.ScopeOne {
			if snap == nil {
				return Want{}, false
			}
			n = snap.WebAuthnCount(req.User) - 1
			if n < 0 {
				n = 0
			}
		}
		return Want{WebAuthn: &n}, true
	}
	return Want{}, false
}

// Add merges w into the map for subject. Conflicting expectations keep the stricter one.
func (m WantMap) Add(subject string, w Want) {
	cur := m[subject]
	if w.TOTP != nil {
		v := *w.TOTP
		if cur.TOTP != nil {
			v = v && *cur.TOTP
		}
		cur.TOTP = &v
	}
	if w.WebAuthn != nil {
		v := *w.WebAuthn
		if cur.WebAuthn != nil && *cur.WebAuthn < v {
			v = *cur.WebAuthn
		}
		cur.WebAuthn = &v
	}
	m[subject] = cur
}

// Merge folds other into m.
func (m WantMap) Merge(other WantMap) {
	for s, w := range other {
		m.Add(s, w)
	}
}

// Tries returns the snapshot poll budget for the map: one dimension of one subject, both
// dimensions of one subject, or several subjects.
func (m WantMap) Tries() int {
	switch {
	case len(m) > 1:
		return BulkTries
	case len(m) == 1:
		for _, w := range m {
			if w.TOTP != nil && w.WebAuthn != nil {
				return CombinedOpTries
			}
		}
	}
	return SingleOpTries
}

// Row is one (subject, dimension) pair still awaiting its expected state.
type Row struct {
	Subject   string
	Dimension Dimension
}

// Board tracks outstanding rows. Rows are removed as soon as they are satisfied and never return,
// even if a later snapshot regresses. It is safe for concurrent use.
type Board struct {
	mu      sync.Mutex
	want    WantMap
	pending map[Row]struct{}
}

// NewBoard returns a Board with one row per tracked dimension in want.
func NewBoard(want WantMap) *Board {
	b := &Board{want: make(WantMap, len(want)), pending: make(map[Row]struct{})}
	b.want.Merge(want)
	for s, w := range b.want {
		if w.TOTP != nil {
			b.pending[Row{Subject: s, Dimension: DimTOTP}] = struct{}{}
		}
		if w.WebAuthn != nil {
			b.pending[Row{Subject: s, Dimension: DimWebAuthn}] = struct{}{}
		}
	}
	return b
}

// Evaluate drops every row snap satisfies and reports whether the board is empty.
// A nil snapshot changes nothing and never counts as converged.
func (b *Board) Evaluate(snap *statusdomain.Snapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if snap == nil {
		return false
	}
	for r := range b.pending {
		w := b.want[r.Subject]
		switch r.Dimension {
		case DimTOTP:
			if snap.HasTOTP(r.Subject) == *w.TOTP {
				delete(b.pending, r)
			}
		case DimWebAuthn:
			if snap.WebAuthnCount(r.Subject) <= *w.WebAuthn {
				delete(b.pending, r)
			}
		}
	}
	return len(b.pending) == 0
}

// Done reports whether every row has been satisfied.
func (b *Board) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) == 0
}

// Pending returns the outstanding rows sorted by subject then dimension.
func (b *Board) Pending() []Row {
	b.mu.Lock()
	out := make([]Row, 0, len(b.pending))
	for r := range b.pending {
		out = append(out, r)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].Dimension < out[j].Dimension
	})
	return out
}
