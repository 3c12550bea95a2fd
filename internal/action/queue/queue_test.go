package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mfa-orphans/internal/action/domain"
	auditdomain "mfa-orphans/internal/audit/domain"
	"mfa-orphans/internal/storage"
)

// mockGate implements engine.ProtectionEvaluator for tests.
type mockGate struct {
	protected map[string]bool
	err       error
	calls     int
}

func (m *mockGate) Protected(ctx context.Context, uid string) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.protected[strings.ToLower(uid)], nil
}

// mockAudit implements audit.AuditLogger for tests.
type mockAudit struct {
	mu      sync.Mutex
	actions []string
}

func (m *mockAudit) LogEvent(ctx context.Context, adminUID, action, subject, actionID, metadata string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

// existsOnceStore fails the first PutIfAbsent with ErrExists.
type existsOnceStore struct {
	*storage.MemoryStore
	failed bool
}

func (s *existsOnceStore) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	if !s.failed {
		s.failed = true
		return storage.ErrExists
	}
	return s.MemoryStore.PutIfAbsent(ctx, name, data)
}

var root = domain.Requester{AdminUID: "root", IP: "10.0.0.1", UA: "test"}

func newWriter(t *testing.T, gate *mockGate) (*Writer, *storage.MemoryStore, *storage.MemoryStore, *mockAudit) {
	t.Helper()
	q, r := storage.NewMemoryStore(), storage.NewMemoryStore()
	a := &mockAudit{}
	w := NewWriter(q, r, gate, WithAudit(a))
	return w, q, r, a
}

func TestEnqueue_WritesActionAndMeta(t *testing.T) {
	fixed := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	q, r := storage.NewMemoryStore(), storage.NewMemoryStore()
	w := NewWriter(q, r, &mockGate{}, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	id, err := w.Enqueue(ctx, Request{Op: domain.OpTOTPDelete, User: "alice", Requester: root})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !domain.ValidActionID(id) || !strings.HasPrefix(id, "20240203T040506Z-") {
		t.Errorf("action_id = %q", id)
	}

	raw, err := q.Get(ctx, domain.QueueName(id))
	if err != nil {
		t.Fatalf("queue entry missing: %v", err)
	}
	var a domain.Action
	if err := json.Unmarshal(raw, &a); err != nil {
		t.Fatalf("queue entry is not JSON: %v", err)
	}
	if a.Schema != domain.SchemaV1 || a.ActionID != id || a.Op != domain.OpTOTPDelete || a.User != "alice" {
		t.Errorf("action = %+v", a)
	}
	if a.RequestTS != fixed.Unix() || a.Requester != root {
		t.Errorf("request_ts/requester = %d/%+v", a.RequestTS, a.Requester)
	}
	if a.Target != nil {
		t.Errorf("totp.delete must not carry a target, got %+v", a.Target)
	}

	rawMeta, err := r.Get(ctx, domain.MetaName(id))
	if err != nil {
		t.Fatalf("meta side-car missing: %v", err)
	}
	var m domain.Meta
	if err := json.Unmarshal(rawMeta, &m); err != nil {
		t.Fatal(err)
	}
	if m.ActionID != id || m.User != "alice" || m.Requester.AdminUID != "root" {
		t.Errorf("meta = %+v", m)
	}
}

func TestEnqueue_WebAuthnTarget(t *testing.T) {
	w, q, _, _ := newWriter(t, &mockGate{})
	idx := 2
	id, err := w.Enqueue(context.Background(), Request{
		Op: domain.OpWebAuthnDelete, User: "bob", Target: &domain.Target{Scope: domain.ScopeOne, Index: &idx}, Requester: root,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	raw, _ := q.Get(context.Background(), domain.QueueName(id))
	if !strings.Contains(string(raw), `"target":{"scope":"one","index":2}`) {
		t.Errorf("queue entry = %s, want target", raw)
	}
}

func TestEnqueue_ValidationBeforeAnyIO(t *testing.T) {
	gate := &mockGate{}
	w, q, r, a := newWriter(t, gate)
	ctx := context.Background()
	bad := []Request{
		{Op: domain.OpTOTPDelete, User: "../../etc/passwd"},
		{Op: domain.OpTOTPDelete, User: ""},
		{Op: "totp.rotate", User: "alice"},
		{Op: domain.OpWebAuthnDelete, User: "alice"},
		{Op: domain.OpWebAuthnDelete, User: "alice", Target: &domain.Target{Scope: domain.ScopeOne}},
	}
	for _, req := range bad {
		if _, err := w.Enqueue(ctx, req); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Enqueue(%+v) = %v, want ErrValidation", req, err)
		}
	}
	if gate.calls != 0 {
		t.Errorf("gate called %d times, want 0 for invalid requests", gate.calls)
	}
	assertEmpty(t, q, r)
	if len(a.actions) != len(bad) || a.actions[0] != auditdomain.ActionRejected {
		t.Errorf("audit actions = %v, want %d rejections", a.actions, len(bad))
	}
}

func TestEnqueue_AdminProtectedCreatesNothing(t *testing.T) {
	gate := &mockGate{protected: map[string]bool{"root": true}}
	w, q, r, a := newWriter(t, gate)
	ctx := context.Background()

	for _, user := range []string{"root", "ROOT"} {
		for _, op := range []domain.Op{domain.OpTOTPDelete, domain.OpWebAuthnDelete} {
			req := Request{Op: op, User: user, Target: &domain.Target{Scope: domain.ScopeAll}, Requester: root}
			id, err := w.Enqueue(ctx, req)
			if !errors.Is(err, domain.ErrAdminProtected) {
				t.Errorf("Enqueue(%s, %s) = %v, want ErrAdminProtected", op, user, err)
			}
			if id != "" {
				t.Errorf("action_id = %q, want empty", id)
			}
		}
	}
	assertEmpty(t, q, r)
	for _, act := range a.actions {
		if act != auditdomain.ActionBlocked {
			t.Errorf("audit action = %q, want only %q", act, auditdomain.ActionBlocked)
		}
	}
}

func TestEnqueue_ProtectionCheckFailsClosed(t *testing.T) {
	w, q, r, _ := newWriter(t, &mockGate{err: errors.New("ldap: connection refused")})
	_, err := w.Enqueue(context.Background(), Request{Op: domain.OpTOTPDelete, User: "alice", Requester: root})
	if !errors.Is(err, domain.ErrProtectionCheck) {
		t.Fatalf("Enqueue = %v, want ErrProtectionCheck", err)
	}
	assertEmpty(t, q, r)
}

func TestEnqueue_QueueUnavailable(t *testing.T) {
	w, q, r, _ := newWriter(t, &mockGate{})
	q.PutErr = errors.New("disk full")
	_, err := w.Enqueue(context.Background(), Request{Op: domain.OpTOTPDelete, User: "alice", Requester: root})
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("Enqueue = %v, want ErrQueueUnavailable", err)
	}
	q.PutErr = nil
	assertEmpty(t, q, r)
}

func TestEnqueue_MetaFailureIsBestEffort(t *testing.T) {
	w, q, r, _ := newWriter(t, &mockGate{})
	r.PutErr = errors.New("results dir read-only")
	id, err := w.Enqueue(context.Background(), Request{Op: domain.OpTOTPDelete, User: "alice", Requester: root})
	if err != nil {
		t.Fatalf("Enqueue should succeed without meta: %v", err)
	}
	if ok, _ := q.Exists(context.Background(), domain.QueueName(id)); !ok {
		t.Error("queue entry should exist")
	}
}

func TestEnqueue_RetriesTakenID(t *testing.T) {
	q := &existsOnceStore{MemoryStore: storage.NewMemoryStore()}
	w := NewWriter(q, storage.NewMemoryStore(), &mockGate{})
	id, err := w.Enqueue(context.Background(), Request{Op: domain.OpTOTPDelete, User: "alice", Requester: root})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if ok, _ := q.Exists(context.Background(), domain.QueueName(id)); !ok {
		t.Error("queue entry should exist after retry")
	}
}

func TestEnqueue_ThousandDistinctIDs(t *testing.T) {
	w, q, _, _ := newWriter(t, &mockGate{})
	ctx := context.Background()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := w.Enqueue(ctx, Request{Op: domain.OpTOTPDelete, User: "alice", Requester: root})
		if err != nil {
			t.Fatalf("Enqueue #%d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate action_id %q", id)
		}
		seen[id] = struct{}{}
	}
	names, _ := q.List(ctx)
	if len(names) != 1000 {
		t.Errorf("queue holds %d entries, want 1000 (requests are never merged)", len(names))
	}
}

func TestEnqueue_FSStoreBlockedLeavesDirUnchanged(t *testing.T) {
	dir := t.TempDir()
	fsq := storage.NewFSStore(dir)
	w := NewWriter(fsq, storage.NewMemoryStore(), &mockGate{protected: map[string]bool{"admin": true}})
	ctx := context.Background()
	before, _ := fsq.List(ctx)
	if _, err := w.Enqueue(ctx, Request{Op: domain.OpTOTPDelete, User: "Admin", Requester: root}); !errors.Is(err, domain.ErrAdminProtected) {
		t.Fatalf("Enqueue = %v, want ErrAdminProtected", err)
	}
	after, _ := fsq.List(ctx)
	if len(before) != 0 || len(after) != 0 {
		t.Errorf("queue listing changed: before=%v after=%v", before, after)
	}
}

func assertEmpty(t *testing.T, stores ...*storage.MemoryStore) {
	t.Helper()
	for _, s := range stores {
		names, err := s.List(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(names) != 0 {
			t.Errorf("store not empty: %v", names)
		}
	}
}
