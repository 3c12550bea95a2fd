// Package queue writes delete-intents into the action queue for the privileged worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"mfa-orphans/internal/action/domain"
	"mfa-orphans/internal/audit"
	auditdomain "mfa-orphans/internal/audit/domain"
	"mfa-orphans/internal/policy/engine"
	"mfa-orphans/internal/storage"
	"mfa-orphans/internal/telemetry"
	telemetrydomain "mfa-orphans/internal/telemetry/domain"
)

// maxIDAttempts bounds regeneration when a fresh action_id is already taken in the queue.
const maxIDAttempts = 3

// Request is one enqueue call.
type Request = domain.Request

// Writer is the action queue writer. It is safe for concurrent use.
type Writer struct {
	queue   storage.Store
	results storage.Store
	gate    engine.ProtectionEvaluator
	audit   audit.AuditLogger
	events  telemetry.EventEmitter
	metrics *telemetry.ActionMetrics
	now     func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithAudit records enqueue attempts in the audit log.
func WithAudit(l audit.AuditLogger) Option { return func(w *Writer) { w.audit = l } }

// WithEvents emits telemetry events for enqueue attempts.
func WithEvents(e telemetry.EventEmitter) Option { return func(w *Writer) { w.events = e } }

// WithMetrics counts enqueue attempts.
func WithMetrics(m *telemetry.ActionMetrics) Option { return func(w *Writer) { w.metrics = m } }

// WithClock overrides time.Now for action ids and request_ts.
func WithClock(now func() time.Time) Option { return func(w *Writer) { w.now = now } }

// NewWriter returns a Writer that publishes to queue and writes meta side-cars to results.
func NewWriter(queue, results storage.Store, gate engine.ProtectionEvaluator, opts ...Option) *Writer {
	w := &Writer{queue: queue, results: results, gate: gate, now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Enqueue validates req, checks admin protection and atomically publishes the action.
// Nothing is written unless validation and the protection check both pass.
// Duplicate requests are never merged: each successful call gets its own action_id.
func (w *Writer) Enqueue(ctx context.Context, req Request) (string, error) {
	err := domain.ValidateUser(req.User)
	if err == nil {
		err = domain.ValidateOp(req.Op, req.Target)
	}
	if err != nil {
		if w.audit != nil {
			w.audit.LogEvent(ctx, req.Requester.AdminUID, auditdomain.ActionRejected, "", "", err.Error())
		}
		w.metrics.RecordEnqueue(ctx, string(req.Op), telemetry.OutcomeInvalid)
		return "", err
	}
	target := req.Target
	if req.Op != domain.OpWebAuthnDelete {
		target = nil
	}

	protected, err := w.gate.Protected(ctx, req.User)
	if err != nil {
		log.Printf("queue: protection check for %s failed: %v", req.User, err)
		w.metrics.RecordEnqueue(ctx, string(req.Op), telemetry.OutcomeError)
		return "", fmt.Errorf("%w: %v", domain.ErrProtectionCheck, err)
	}
	if protected {
		w.record(ctx, auditdomain.ActionBlocked, telemetrydomain.EventActionBlocked, "", req)
		w.metrics.RecordEnqueue(ctx, string(req.Op), telemetry.OutcomeProtected)
		return "", domain.ErrAdminProtected
	}

	now := w.now().UTC()
	action := &domain.Action{
		Schema:    domain.SchemaV1,
		RequestTS: now.Unix(),
		Requester: req.Requester,
		Op:        req.Op,
		User:      req.User,
		Target:    target,
	}
	id, err := w.publish(ctx, action, now)
	if err != nil {
		w.metrics.RecordEnqueue(ctx, string(req.Op), telemetry.OutcomeError)
		return "", err
	}

	if meta, err := json.Marshal(domain.MetaOf(action)); err == nil {
		if err := w.results.Put(ctx, domain.MetaName(id), meta); err != nil {
			log.Printf("queue: meta side-car for %s not written: %v", id, err)
		}
	}
	w.record(ctx, auditdomain.ActionEnqueued, telemetrydomain.EventActionEnqueued, id, req)
	w.metrics.RecordEnqueue(ctx, string(req.Op), telemetry.OutcomeOK)
	return id, nil
}

func (w *Writer) publish(ctx context.Context, action *domain.Action, now time.Time) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := domain.NewActionID(now)
		if err != nil {
			return "", fmt.Errorf("%w: generate id: %v", domain.ErrQueueUnavailable, err)
		}
		action.ActionID = id
		body, err := json.Marshal(action)
		if err != nil {
			return "", fmt.Errorf("%w: encode action: %v", domain.ErrQueueUnavailable, err)
		}
		err = w.queue.PutIfAbsent(ctx, domain.QueueName(id), body)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, storage.ErrExists) {
			log.Printf("queue: write %s failed: %v", id, err)
			return "", fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
		}
	}
	return "", fmt.Errorf("%w: no free action id after %d attempts", domain.ErrQueueUnavailable, maxIDAttempts)
}

func (w *Writer) record(ctx context.Context, auditAction, eventType, actionID string, req Request) {
	meta, _ := json.Marshal(map[string]interface{}{
		"op":     req.Op,
		"target": req.Target,
		"ua":     req.Requester.UA,
	})
	if w.audit != nil {
		w.audit.LogEvent(ctx, req.Requester.AdminUID, auditAction, req.User, actionID, string(meta))
	}
	ev := telemetry.NewEvent(eventType, actionID, string(req.Op), req.User, req.Requester.AdminUID)
	ev.Metadata = meta
	telemetry.EmitAsync(w.events, ctx, ev)
}
