package repository

import (
	"context"
	"errors"

	"mfa-orphans/internal/identity/domain"
)

// ErrIdentityNotFound is returned by lookups for a UID the directory does not know.
var ErrIdentityNotFound = errors.New("identity not found")

// Directory is the read-only identity collaborator (LDAP in production).
type Directory interface {
	// ListIdentities returns every canonical identity currently in the directory.
	ListIdentities(ctx context.Context) ([]*domain.Identity, error)
	// GroupMembership returns the group names uid belongs to. Unknown uids return an empty list.
	GroupMembership(ctx context.Context, uid string) ([]string, error)
	// LookupEmail returns the contact email for uid, or ErrIdentityNotFound.
	LookupEmail(ctx context.Context, uid string) (string, error)
}
