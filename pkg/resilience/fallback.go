// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"fmt"
	"time"
)

// FallbackOpts controls WithFallback behavior.
type FallbackOpts struct {
	// Budget bounds the primary operation. Zero means the per-call default.
	Budget time.Duration

	// FallbackBudget bounds the fallback. Zero means the short class is
	// not applied and the fallback runs under the caller's context only.
	FallbackBudget time.Duration
}

// WithFallback runs primary under a bounded worker. If it succeeds the
// fallback is never invoked. If it fails or times out, fallback runs exactly
// once; its value is returned marked as a fallback result, and any fault it
// raises is classified as FallbackFailed rather than left unhandled.
func WithFallback(ctx context.Context, primary, fallback func(context.Context) (any, error), opts FallbackOpts) Outcome {
	out := Execute(ctx, opts.Budget, primary)
	if out.OK() {
		return out
	}

	fbOut := runFallback(ctx, fallback, opts.FallbackBudget)
	fbOut.FellBack = true
	return fbOut
}

func runFallback(ctx context.Context, fallback func(context.Context) (any, error), budget time.Duration) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = FallbackFailed(fmt.Sprintf("panic: %v", r))
		}
	}()

	fctx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	value, err := fallback(fctx)
	if err != nil {
		return FallbackFailed(err.Error())
	}
	return Ok(value)
}
