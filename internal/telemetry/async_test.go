package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mfa-orphans/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	ctxErrs []error
	vals    []interface{}
	block   chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.vals = append(m.vals, ctx.Value(ctxKey{}))
	return m.emitErr
}

func (m *mockEventEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	EmitAsync(nil, context.Background(), NewEvent(domain.EventActionEnqueued, "id", "totp.delete", "alice", "root"))

	emitter := &mockEventEmitter{}
	EmitAsync(emitter, context.Background(), nil)
	time.Sleep(10 * time.Millisecond)
	if emitter.count() != 0 {
		t.Errorf("expected 0 events, got %d", emitter.count())
	}
}

type ctxKey struct{}

func TestEmitAsync_DetachesCancellation(t *testing.T) {
	emitter := &mockEventEmitter{}
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "span"))
	cancel()

	EmitAsync(emitter, ctx, NewEvent(domain.EventActionEnqueued, "id", "totp.delete", "alice", "root"))
	waitFor(t, func() bool { return emitter.count() == 1 })

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.ctxErrs[0] != nil {
		t.Errorf("emit context err = %v, want nil (request cancellation must not propagate)", emitter.ctxErrs[0])
	}
	ev := emitter.events[0]
	if emitter.vals[0] != "span" {
		t.Errorf("emit context value = %v, want request values kept", emitter.vals[0])
	}
	if ev.ID == "" || ev.Source != Source || ev.CreatedAt.IsZero() {
		t.Errorf("NewEvent did not fill id/source/created_at: %+v", ev)
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: errors.New("kafka down")}
	EmitAsync(emitter, context.Background(), NewEvent("t", "", "", "", ""))
	waitFor(t, func() bool { return emitter.count() == 1 })
}

func TestDrain_WaitsForInflightEmits(t *testing.T) {
	emitter := &mockEventEmitter{block: make(chan struct{})}
	EmitAsync(emitter, context.Background(), NewEvent(domain.EventActionEnqueued, "id", "totp.delete", "alice", "root"))

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if Drain(short) {
		t.Fatal("Drain reported done while an emit was blocked")
	}

	close(emitter.block)
	if !Drain(context.Background()) {
		t.Fatal("Drain did not finish after the emit was released")
	}
	if emitter.count() != 1 {
		t.Errorf("events = %d, want 1", emitter.count())
	}
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &mockEventEmitter{}
	bad := &mockEventEmitter{emitErr: errors.New("boom")}
	m := Multi{ok, nil, bad}
	err := m.Emit(context.Background(), NewEvent("t", "", "", "", ""))
	if err == nil {
		t.Fatal("Multi.Emit should return the failing emitter's error")
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", ok.count(), bad.count())
	}
	if err := (Multi{ok}).Emit(context.Background(), NewEvent("t", "", "", "", "")); err != nil {
		t.Errorf("Multi.Emit = %v, want nil", err)
	}
}
