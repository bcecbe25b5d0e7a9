// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jllopis/bastion/pkg/errors"
	"github.com/jllopis/bastion/pkg/locator"
	"github.com/jllopis/bastion/pkg/timeout"
)

// Execute runs fn on a bounded worker under the given budget and classifies
// the result. A zero or negative budget uses the per-call class default.
//
// On timeout the worker's context is canceled and the goroutine abandoned;
// the result channel is buffered so an abandoned worker can still complete
// and exit without leaking. Cancellation does not reach into the remote
// collaborator, which may keep running after the gateway has given up.
func Execute(ctx context.Context, budget time.Duration, fn func(context.Context) (any, error)) Outcome {
	if budget <= 0 {
		budget = timeout.Lookup(timeout.ClassPerCall)
	}

	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Exception(fmt.Sprintf("panic: %v", r))
			}
		}()
		value, err := fn(cctx)
		if err != nil {
			done <- Classify(err)
			return
		}
		done <- Ok(value)
	}()

	select {
	case <-cctx.Done():
		// A canceled parent (shutdown, abandoned client) is not a budget
		// overrun; only a deadline counts as a timeout.
		if stderrors.Is(cctx.Err(), context.Canceled) {
			return Exception("call canceled before completion")
		}
		return TimedOut(fmt.Sprintf("call exceeded %v budget", budget))
	case out := <-done:
		return out
	}
}

// Classify maps a call error to its outcome. Exit errors and timeout errors
// keep their own statuses; everything else is an exception.
func Classify(err error) Outcome {
	if err == nil {
		return Ok(nil)
	}
	var exit *locator.ExitError
	if stderrors.As(err, &exit) {
		return Exited(exit.Reason)
	}
	if be, ok := err.(*errors.BastionError); ok {
		switch be.Code {
		case errors.CodeTimeout:
			return TimedOut(be.Message)
		case errors.CodeNotAlive:
			return NotAlive(be.Message)
		case errors.CodeNotReady:
			return NotReady(be.Message)
		case errors.CodeExited:
			return Exited(be.Message)
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return TimedOut(err.Error())
	}
	return Exception(err.Error())
}
