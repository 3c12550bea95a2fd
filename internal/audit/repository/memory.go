package repository

import (
	"context"
	"strings"
	"sync"

	"mfa-orphans/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process. Used when DATABASE_URL is unset and in tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MemoryRepository) ListRecent(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditLog
	skipped := int32(0)
	for i := len(r.entries) - 1; i >= 0 && int32(len(out)) < limit; i-- {
		if skipped < offset {
			skipped++
			continue
		}
		cp := *r.entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) ListBySubject(ctx context.Context, subject string, limit int32) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditLog
	for i := len(r.entries) - 1; i >= 0 && int32(len(out)) < limit; i-- {
		if strings.EqualFold(r.entries[i].Subject, subject) {
			cp := *r.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
