package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"mfa-orphans/internal/audit/domain"
	auditrepo "mfa-orphans/internal/audit/repository"
)

// SystemAdminUID is recorded for events with no authenticated administrator (e.g. notifications).
const SystemAdminUID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event about a queued action.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, adminUID, action, subject, actionID, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, adminUID, action, subject, actionID, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if adminUID == "" {
		adminUID = SystemAdminUID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		AdminUID:  adminUID,
		Action:    action,
		Subject:   subject,
		ActionID:  actionID,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, subject, err)
	}
}

// Recent returns the newest entries, or only those for subject when it is non-empty.
func (l *Logger) Recent(ctx context.Context, subject string, limit, offset int32) ([]*domain.AuditLog, error) {
	if l == nil || l.repo == nil {
		return nil, nil
	}
	if subject != "" {
		return l.repo.ListBySubject(ctx, subject, limit)
	}
	return l.repo.ListRecent(ctx, limit, offset)
}
