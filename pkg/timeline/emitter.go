package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weftlabs/substrate/pkg/contracts"
)

// NonFatalError marks a failed side effect that must never fail the caller's
// primary operation. Audit loss is acceptable; mutation loss is not.
type NonFatalError struct {
	Op  string
	Err error
}

func (e *NonFatalError) Error() string {
	return fmt.Sprintf("non-fatal %s failure: %v", e.Op, e.Err)
}

func (e *NonFatalError) Unwrap() error { return e.Err }

// CascadePublisher fans an appended event out to downstream consumers
// (reflections, notifications). Best-effort like the store append.
type CascadePublisher interface {
	Publish(ctx context.Context, ev contracts.TimelineEvent) error
}

// Emitter appends audit events for governance and substrate actions.
// Emission is best-effort: failures are logged and reported as *NonFatalError
// so mutation paths can ignore them without losing the distinction at the
// type level.
type Emitter struct {
	store   Store
	cascade CascadePublisher
	logger  *slog.Logger
	clock   func() time.Time
}

// NewEmitter creates an emitter. cascade may be nil.
func NewEmitter(store Store, cascade CascadePublisher, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, cascade: cascade, logger: logger, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (e *Emitter) WithClock(clock func() time.Time) *Emitter {
	e.clock = clock
	return e
}

// Emit appends one event, filling in id and timestamp. The returned error is
// always nil or *NonFatalError; callers on the mutation path ignore it.
func (e *Emitter) Emit(ctx context.Context, ev contracts.TimelineEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.TS.IsZero() {
		ev.TS = e.clock().UTC()
	}
	if ev.Origin == "" {
		ev.Origin = contracts.OriginSystem
	}

	if err := e.store.Append(ctx, &ev); err != nil {
		e.logger.Warn("timeline append failed, event dropped",
			"basket_id", ev.BasketID, "kind", ev.Kind, "ref_id", ev.RefID, "error", err)
		return &NonFatalError{Op: "timeline append", Err: err}
	}

	if e.cascade != nil {
		if err := e.cascade.Publish(ctx, ev); err != nil {
			e.logger.Warn("cascade publish failed",
				"basket_id", ev.BasketID, "kind", ev.Kind, "error", err)
			return &NonFatalError{Op: "cascade publish", Err: err}
		}
	}
	return nil
}

// EmitAll emits a batch in order, continuing past individual failures.
func (e *Emitter) EmitAll(ctx context.Context, events []contracts.TimelineEvent) {
	for _, ev := range events {
		_ = e.Emit(ctx, ev)
	}
}
