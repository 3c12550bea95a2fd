package audit

import (
	"context"
	"errors"
	"testing"

	"mfa-orphans/internal/audit/domain"
	auditrepo "mfa-orphans/internal/audit/repository"
)

// mockAuditRepo implements audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListRecent(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func (m *mockAuditRepo) ListBySubject(ctx context.Context, subject string, limit int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	ipExtractor := func(ctx context.Context) string {
		return "192.168.1.1"
	}
	logger := NewLogger(repo, ipExtractor)
	ctx := context.Background()

	logger.LogEvent(ctx, "root", domain.ActionEnqueued, "alice", "20240101T000000Z-deadbeef", `{"op":"totp.delete"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.AdminUID != "root" {
		t.Errorf("admin_uid = %q, want %q", entry.AdminUID, "root")
	}
	if entry.Action != domain.ActionEnqueued {
		t.Errorf("action = %q, want %q", entry.Action, domain.ActionEnqueued)
	}
	if entry.Subject != "alice" {
		t.Errorf("subject = %q, want %q", entry.Subject, "alice")
	}
	if entry.ActionID != "20240101T000000Z-deadbeef" {
		t.Errorf("action_id = %q", entry.ActionID)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_LogEvent_NilIPExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "root", "action", "alice", "", "")

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("ip = %q, want %q", repo.entries[0].IP, "unknown")
	}
}

func TestLogger_LogEvent_SystemAdmin(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "", domain.ActionNotified, "alice", "id", "")

	if repo.entries[0].AdminUID != SystemAdminUID {
		t.Errorf("admin_uid = %q, want %q", repo.entries[0].AdminUID, SystemAdminUID)
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	logger := NewLogger(repo, nil)

	// best-effort: must not panic
	logger.LogEvent(context.Background(), "root", "action", "alice", "", "")
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	logger := NewLogger(nil, nil)
	logger.LogEvent(context.Background(), "root", "action", "alice", "", "")
	var nilLogger *Logger
	nilLogger.LogEvent(context.Background(), "root", "action", "alice", "", "")
}

func TestLogger_Recent_MemoryRepository(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	logger := NewLogger(repo, nil)
	ctx := context.Background()
	logger.LogEvent(ctx, "root", domain.ActionEnqueued, "alice", "1", "")
	logger.LogEvent(ctx, "root", domain.ActionEnqueued, "bob", "2", "")
	logger.LogEvent(ctx, "root", domain.ActionNotified, "Alice", "1", "")

	all, err := logger.Recent(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 || all[0].Action != domain.ActionNotified {
		t.Errorf("Recent = %d entries, first %+v; want 3 newest first", len(all), all[0])
	}
	page, _ := logger.Recent(ctx, "", 1, 1)
	if len(page) != 1 || page[0].Subject != "bob" {
		t.Errorf("Recent(limit 1, offset 1) = %+v, want bob", page)
	}
	alice, _ := logger.Recent(ctx, "alice", 10, 0)
	if len(alice) != 2 {
		t.Errorf("Recent(alice) = %d entries, want 2", len(alice))
	}
}
