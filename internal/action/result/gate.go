// Package result reads worker results and dispatches the outcome notification on first observed success.
//
// The .notified marker is written after dispatch, so a crash between the two can repeat
// the notification on the next fetch: delivery is at-least-once. Concurrent fetches of the
// same action in one process are collapsed into a single dispatch.
package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"mfa-orphans/internal/action/domain"
	"mfa-orphans/internal/audit"
	auditdomain "mfa-orphans/internal/audit/domain"
	identitydomain "mfa-orphans/internal/identity/domain"
	identityrepo "mfa-orphans/internal/identity/repository"
	"mfa-orphans/internal/notify"
	"mfa-orphans/internal/storage"
	"mfa-orphans/internal/telemetry"
	telemetrydomain "mfa-orphans/internal/telemetry/domain"
)

// notifyTimeout bounds one dispatch. It is detached from the request so a client hanging up
// does not abort a half-sent notification.
const notifyTimeout = 30 * time.Second

// EmailResolver resolves a subject's contact address.
type EmailResolver interface {
	LookupEmail(ctx context.Context, uid string) (string, error)
}

// Gate is the result & notification gate.
type Gate struct {
	results storage.Store
	queue   storage.Store
	emails  EmailResolver
	mail    notify.Sink
	alert   notify.Sink

	legacyKeyword bool

	audit   audit.AuditLogger
	events  telemetry.EventEmitter
	metrics *telemetry.ActionMetrics

	flight singleflight.Group
}

// Config wires a Gate. Nil sinks default to notify.Noop.
type Config struct {
	Results storage.Store
	Queue   storage.Store
	Emails  EmailResolver
	Mail    notify.Sink
	Alert   notify.Sink
	// LegacySuccessKeyword accepts results without an explicit success flag whose details contain "success".
	// Deprecated: remove once every worker emits the explicit flag.
	LegacySuccessKeyword bool

	Audit   audit.AuditLogger
	Events  telemetry.EventEmitter
	Metrics *telemetry.ActionMetrics
}

// NewGate returns a Gate for cfg.
func NewGate(cfg Config) *Gate {
	g := &Gate{
		results:       cfg.Results,
		queue:         cfg.Queue,
		emails:        cfg.Emails,
		mail:          cfg.Mail,
		alert:         cfg.Alert,
		legacyKeyword: cfg.LegacySuccessKeyword,
		audit:         cfg.Audit,
		events:        cfg.Events,
		metrics:       cfg.Metrics,
	}
	if g.mail == nil {
		g.mail = notify.Noop{}
	}
	if g.alert == nil {
		g.alert = notify.Noop{}
	}
	if cfg.LegacySuccessKeyword {
		log.Printf("result: LEGACY_SUCCESS_KEYWORD is enabled; details-keyword success detection is deprecated")
	}
	return g
}

// FetchResult returns the worker result for id verbatim.
// ErrNotReady: the action is known (queued or has a meta side-car) but has no result yet.
// ErrNotFound: the id is malformed or unknown.
// On a successful result the outcome notification is dispatched once; its failures are only logged.
func (g *Gate) FetchResult(ctx context.Context, id string) (*domain.Result, error) {
	if !domain.ValidActionID(id) {
		return nil, domain.ErrNotFound
	}
	raw, err := g.results.Get(ctx, domain.ResultName(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, g.pendingOrUnknown(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("result: read %s: %w", id, err)
	}
	res, err := domain.ParseResult(raw)
	if err != nil {
		// A torn document is transient; the worker republishes it whole.
		log.Printf("result: %s unreadable, treating as not ready: %v", id, err)
		return nil, domain.ErrNotReady
	}
	if res.ActionID == "" {
		res.ActionID = id
	}

	outcome := res.Classify(g.legacyKeyword)
	if outcome == domain.OutcomeSucceeded && res.UsedLegacyKeyword() {
		log.Printf("result: %s accepted via deprecated details keyword; worker should emit \"success\"", id)
	}
	if outcome != domain.OutcomeUnknown {
		g.observeCompletion(ctx, id, res, outcome)
	}
	if outcome == domain.OutcomeSucceeded {
		g.notifyOnce(ctx, id, res)
	}
	return res, nil
}

// Classify exposes the gate's success policy to callers that poll results.
func (g *Gate) Classify(res *domain.Result) domain.Outcome {
	return res.Classify(g.legacyKeyword)
}

func (g *Gate) pendingOrUnknown(ctx context.Context, id string) error {
	if g.queue != nil {
		ok, err := g.queue.Exists(ctx, domain.QueueName(id))
		if err != nil {
			return fmt.Errorf("result: check queue for %s: %w", id, err)
		}
		if ok {
			return domain.ErrNotReady
		}
	}
	ok, err := g.results.Exists(ctx, domain.MetaName(id))
	if err != nil {
		return fmt.Errorf("result: check meta for %s: %w", id, err)
	}
	if ok {
		return domain.ErrNotReady
	}
	return domain.ErrNotFound
}

// observeCompletion reports a terminal result once across fetches and processes.
// The .completed marker is claimed with PutIfAbsent; only the winner emits.
func (g *Gate) observeCompletion(ctx context.Context, id string, res *domain.Result, outcome domain.Outcome) {
	err := g.results.PutIfAbsent(ctx, domain.CompletedName(id), []byte(outcome.String()))
	if errors.Is(err, storage.ErrExists) {
		return
	}
	if err != nil {
		log.Printf("result: write completion marker for %s: %v", id, err)
		return
	}
	o := g.outcomeContext(ctx, id, res)
	g.metrics.RecordCompleted(ctx, o.Op, outcome.String())
	meta, _ := json.Marshal(map[string]string{"outcome": outcome.String(), "details": res.Details})
	ev := telemetry.NewEvent(telemetrydomain.EventActionCompleted, id, o.Op, o.User, o.AdminUID)
	ev.Metadata = meta
	telemetry.EmitAsync(g.events, ctx, ev)
}

func (g *Gate) notifyOnce(ctx context.Context, id string, res *domain.Result) {
	_, _, _ = g.flight.Do(id, func() (interface{}, error) {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		done, err := g.results.Exists(nctx, domain.MarkerName(id))
		if err != nil {
			log.Printf("result: check marker for %s: %v", id, err)
			return nil, nil
		}
		if done {
			return nil, nil
		}
		g.dispatch(nctx, id, res)
		if err := g.results.PutIfAbsent(nctx, domain.MarkerName(id), []byte{}); err != nil && !errors.Is(err, storage.ErrExists) {
			log.Printf("result: write marker for %s: %v", id, err)
		}
		return nil, nil
	})
}

func (g *Gate) dispatch(ctx context.Context, id string, res *domain.Result) {
	o := g.outcomeContext(ctx, id, res)
	userMsg, alertMsg := notify.ComposeOutcome(o)

	mailOutcome := telemetry.OutcomeSkipped
	if to := g.resolveEmail(ctx, o.User); to != "" {
		userMsg.To = []string{to}
		if err := g.mail.Send(ctx, userMsg); err != nil {
			log.Printf("result: mail for %s failed: %v", id, err)
			mailOutcome = telemetry.OutcomeError
		} else {
			mailOutcome = telemetry.OutcomeOK
		}
	} else {
		log.Printf("result: no email for %s, skipping subject mail for %s", o.User, id)
	}
	g.metrics.RecordNotify(ctx, "mail", mailOutcome)

	alertOutcome := telemetry.OutcomeOK
	if err := g.alert.Send(ctx, alertMsg); err != nil {
		log.Printf("result: alert for %s failed: %v", id, err)
		alertOutcome = telemetry.OutcomeError
	}
	g.metrics.RecordNotify(ctx, "chat", alertOutcome)

	meta, _ := json.Marshal(map[string]string{"mail": mailOutcome, "chat": alertOutcome})
	if g.audit != nil {
		g.audit.LogEvent(ctx, o.AdminUID, auditdomain.ActionNotified, o.User, id, string(meta))
	}
	eventType := telemetrydomain.EventNotifySent
	if mailOutcome == telemetry.OutcomeError || alertOutcome == telemetry.OutcomeError {
		eventType = telemetrydomain.EventNotifyFailed
	}
	ev := telemetry.NewEvent(eventType, id, o.Op, o.User, o.AdminUID)
	ev.Metadata = meta
	telemetry.EmitAsync(g.events, ctx, ev)
}

// outcomeContext prefers the meta side-car and falls back to fields echoed in the result.
func (g *Gate) outcomeContext(ctx context.Context, id string, res *domain.Result) notify.Outcome {
	o := notify.Outcome{ActionID: id, Op: string(res.Op), User: res.User, Details: res.Details}
	if res.Requester != nil {
		o.AdminUID = res.Requester.AdminUID
	}
	raw, err := g.results.Get(ctx, domain.MetaName(id))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("result: read meta for %s: %v", id, err)
		}
		return o
	}
	var m domain.Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Printf("result: decode meta for %s: %v", id, err)
		return o
	}
	if m.Op != "" {
		o.Op = string(m.Op)
	}
	if m.User != "" {
		o.User = m.User
	}
	if m.Requester.AdminUID != "" {
		o.AdminUID = m.Requester.AdminUID
	}
	return o
}

// resolveEmail asks the directory first. Orphans are usually gone from it, so a subject that
// is itself an address is used as-is.
func (g *Gate) resolveEmail(ctx context.Context, user string) string {
	if user == "" {
		return ""
	}
	if g.emails != nil {
		addr, err := g.emails.LookupEmail(ctx, user)
		if err == nil && strings.TrimSpace(addr) != "" {
			return strings.TrimSpace(addr)
		}
		if err != nil && !errors.Is(err, identityrepo.ErrIdentityNotFound) {
			log.Printf("result: email lookup for %s: %v", user, err)
		}
	}
	if identitydomain.FoldEmail(user) != "" {
		return user
	}
	return ""
}
