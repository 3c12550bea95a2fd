package engine

import "context"

// GroupResolver resolves a subject's directory group memberships.
type GroupResolver interface {
	GroupMembership(ctx context.Context, uid string) ([]string, error)
}

// ProtectionEvaluator decides whether a subject is exempt from MFA revocation.
type ProtectionEvaluator interface {
	// Protected reports whether uid belongs to the administrative group.
	// A non-nil error means the decision could not be made and callers must refuse the action.
	Protected(ctx context.Context, uid string) (bool, error)
}
