// Package action guards user-triggered asynchronous operations so that each
// one is in flight at most once.
package action

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrBusy is returned when the control already has an operation in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrDisabled is returned when the caller marked the action as disabled.
	ErrDisabled = errors.New("action disabled")
)

// Control is a single trigger whose effective disabled state is the external
// condition ORed with its own in-flight flag. The zero value is ready to use.
type Control struct {
	busy atomic.Bool
}

// Busy reports whether an operation is in flight.
func (c *Control) Busy() bool {
	return c.busy.Load()
}

// Disabled reports the effective disabled state for the given external condition.
func (c *Control) Disabled(external bool) bool {
	return external || c.Busy()
}

// Run invokes op once unless disabled or already busy. The busy flag is
// cleared when op returns, including when it panics.
func (c *Control) Run(ctx context.Context, disabled bool, op func(context.Context) error) error {
	if disabled {
		return ErrDisabled
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)
	return op(ctx)
}
