package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome attribute values.
const (
	OutcomeOK        = "ok"
	OutcomeInvalid   = "invalid"
	OutcomeProtected = "protected"
	OutcomeError     = "error"
	OutcomeSkipped   = "skipped"
)

// ActionMetrics counts enqueue attempts, observed completions and notification dispatches.
// A nil *ActionMetrics records nothing.
type ActionMetrics struct {
	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	notified  metric.Int64Counter
}

// NewActionMetrics registers the action counters on meter.
func NewActionMetrics(meter metric.Meter) (*ActionMetrics, error) {
	enqueued, err := meter.Int64Counter("mfa.actions.enqueue",
		metric.WithDescription("Enqueue attempts by op and outcome."),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}
	completed, err := meter.Int64Counter("mfa.actions.completed",
		metric.WithDescription("Worker results first observed, by op and outcome."),
		metric.WithUnit("{action}"))
	if err != nil {
		return nil, err
	}
	notified, err := meter.Int64Counter("mfa.actions.notify",
		metric.WithDescription("Notification dispatches by channel and outcome."),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}
	return &ActionMetrics{enqueued: enqueued, completed: completed, notified: notified}, nil
}

// RecordEnqueue counts one enqueue attempt.
func (m *ActionMetrics) RecordEnqueue(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	m.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome)))
}

// RecordNotify counts one notification dispatch on channel ("mail" or "chat").
func (m *ActionMetrics) RecordNotify(ctx context.Context, channel, outcome string) {
	if m == nil {
		return
	}
	m.notified.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel), attribute.String("outcome", outcome)))
}

// RecordCompleted counts one worker result the first time it is observed.
func (m *ActionMetrics) RecordCompleted(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	m.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome)))
}

// RegisterQueueDepth reports the number of actions waiting for the worker as mfa.queue.depth.
// depth is called on every collection; an error skips that observation.
func RegisterQueueDepth(meter metric.Meter, depth func(context.Context) (int64, error)) error {
	_, err := meter.Int64ObservableGauge("mfa.queue.depth",
		metric.WithDescription("Actions queued and not yet consumed by the worker."),
		metric.WithUnit("{action}"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			n, err := depth(ctx)
			if err != nil {
				log.Printf("telemetry: queue depth: %v", err)
				return nil
			}
			o.Observe(n)
			return nil
		}))
	return err
}
