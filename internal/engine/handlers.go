package engine

import (
	"context"

	"github.com/roach88/timekeep/internal/model"
	"github.com/roach88/timekeep/internal/schedule"
)

// RegisterHandlers routes every callback kind the engine schedules to its
// handler. Stale callbacks resolve to no-op outcomes, which complete the
// callback; only store failures are retried.
func (e *Engine) RegisterHandlers(d *schedule.Dispatcher) {
	d.Register(model.CallbackInterruptCheck, func(ctx context.Context, args model.CallbackArgs) error {
		_, err := e.Check(ctx, args)
		return err
	})
	d.Register(model.CallbackInterruptAutoStop, func(ctx context.Context, args model.CallbackArgs) error {
		_, err := e.AutoStopIfNoAck(ctx, args)
		return err
	})
	d.Register(model.CallbackPomodoroTransition, func(ctx context.Context, args model.CallbackArgs) error {
		_, err := e.ProcessTransition(ctx, args)
		return err
	})
}
