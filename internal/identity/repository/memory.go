package repository

import (
	"context"
	"strings"
	"sync"

	"mfa-orphans/internal/identity/domain"
)

// MemoryDirectory is an in-memory Directory for tests and local development.
type MemoryDirectory struct {
	mu         sync.RWMutex
	identities []*domain.Identity
	groups     map[string][]string
	err        error
}

// NewMemoryDirectory returns a directory holding the given identities.
func NewMemoryDirectory(identities ...*domain.Identity) *MemoryDirectory {
	return &MemoryDirectory{identities: identities, groups: make(map[string][]string)}
}

// SetGroups replaces the group memberships of uid.
func (d *MemoryDirectory) SetGroups(uid string, groups ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[domain.FoldUID(uid)] = groups
}

// SetError makes every subsequent call fail with err (nil clears it).
func (d *MemoryDirectory) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *MemoryDirectory) ListIdentities(ctx context.Context) ([]*domain.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make([]*domain.Identity, len(d.identities))
	copy(out, d.identities)
	return out, nil
}

func (d *MemoryDirectory) GroupMembership(ctx context.Context, uid string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]string(nil), d.groups[domain.FoldUID(uid)]...), nil
}

func (d *MemoryDirectory) LookupEmail(ctx context.Context, uid string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return "", d.err
	}
	for _, i := range d.identities {
		if strings.EqualFold(i.UID, uid) && i.Email != "" {
			return i.Email, nil
		}
	}
	return "", ErrIdentityNotFound
}
