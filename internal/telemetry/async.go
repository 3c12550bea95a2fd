package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"mfa-orphans/internal/telemetry/domain"
)

// emitTimeout bounds a single background emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest Drain waits for background emits. It covers one emitTimeout.
const ShutdownDrainDuration = emitTimeout

var inflight sync.WaitGroup

// EmitAsync emits event in the background so enqueue and result paths never wait on Kafka or OTLP.
// The emit keeps ctx's values (trace span) but not its cancellation. Errors are logged.
// A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: %s for %s not emitted: %v", event.EventType, event.ActionID, err)
		}
	}()
}

// Drain blocks until background emits finish or ctx is done, and reports whether they all finished.
// Call it after the servers stop and before closing the emitters.
func Drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
