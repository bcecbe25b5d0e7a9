// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/jllopis/bastion/pkg/locator"
)

// SafeCall resolves target through the locator and performs a bounded
// synchronous call. It never blocks on a name whose owner is not ready:
//
//   - unregistered name            -> NotReady
//   - registered but initializing  -> NotReady
//   - crashed or dead connection   -> NotAlive
//   - budget exceeded              -> Timeout
//   - callee terminated mid-call   -> Exited
//   - any other fault              -> Exception
func SafeCall(ctx context.Context, loc locator.Locator, target string, msg any, budget time.Duration) Outcome {
	h, out := resolve(loc, target)
	if !out.OK() {
		return out
	}
	return Execute(ctx, budget, func(cctx context.Context) (any, error) {
		return h.Call(cctx, msg)
	})
}

// SafeCast resolves target and delivers msg without waiting for the callee
// to act on it. The returned outcome reflects delivery only.
func SafeCast(loc locator.Locator, target string, msg any) Outcome {
	h, out := resolve(loc, target)
	if !out.OK() {
		return out
	}
	if err := h.Cast(msg); err != nil {
		return Exception(err.Error())
	}
	return Ok(nil)
}

func resolve(loc locator.Locator, target string) (locator.Handle, Outcome) {
	h, ok := loc.Resolve(target)
	if !ok {
		return nil, NotReady(fmt.Sprintf("no collaborator registered as %q", target))
	}
	switch h.Readiness() {
	case locator.Ready:
	case locator.Crashed:
		return nil, NotAlive(fmt.Sprintf("collaborator %q crashed", target))
	default:
		return nil, NotReady(fmt.Sprintf("collaborator %q is %s", target, h.Readiness()))
	}
	if !h.Alive() {
		return nil, NotAlive(fmt.Sprintf("collaborator %q is not alive", target))
	}
	return h, Ok(nil)
}
