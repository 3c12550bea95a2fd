package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mfa-orphans/internal/telemetry/domain"
)

// Source is recorded on every event emitted by this service.
const Source = "mfa-orphans"

// EventEmitter emits telemetry events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// NewEvent returns an event with ID, Source and CreatedAt filled.
func NewEvent(eventType, actionID, op, subject, adminUID string) *domain.Event {
	return &domain.Event{
		ID:        uuid.New().String(),
		EventType: eventType,
		Source:    Source,
		ActionID:  actionID,
		Op:        op,
		Subject:   subject,
		AdminUID:  adminUID,
		CreatedAt: time.Now().UTC(),
	}
}

// Multi fans an event out to every non-nil emitter and joins their errors.
type Multi []EventEmitter

func (m Multi) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, em := range m {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
