package repository

import (
	"context"

	"mfa-orphans/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListRecent returns entries newest first.
	ListRecent(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error)
	// ListBySubject returns entries for one subject, newest first.
	ListBySubject(ctx context.Context, subject string, limit int32) ([]*domain.AuditLog, error)
}
