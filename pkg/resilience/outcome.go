// SPDX-License-Identifier: Apache-2.0
// Package resilience is the defensive execution layer of the gateway. Every
// call the gateway makes to a collaborator goes through this package, which
// classifies the result as a structured Outcome instead of letting faults
// escape. An Outcome is a value, never a panic.
package resilience

import (
	"github.com/jllopis/bastion/pkg/errors"
)

// Status tags an Outcome.
type Status string

const (
	// StatusOK means the call completed and Value holds its result.
	StatusOK Status = "ok"

	// StatusNotReady means the target name resolved to a collaborator that
	// has not finished its own initialization, or is not registered at all.
	StatusNotReady Status = "not_ready"

	// StatusNotAlive means the target resolved but its process or
	// connection is no longer alive.
	StatusNotAlive Status = "not_alive"

	// StatusTimeout means the call exceeded its budget and was abandoned.
	StatusTimeout Status = "timeout"

	// StatusExited means the callee terminated during the call.
	StatusExited Status = "exited"

	// StatusException means the call faulted for any other reason.
	StatusException Status = "exception"

	// StatusFallbackFailed means the fallback path itself faulted.
	StatusFallbackFailed Status = "fallback_failed"
)

// Outcome is the classified result of a defensive call.
type Outcome struct {
	Status Status
	Value  any
	Reason string

	// FellBack is set when Value was produced by a fallback rather than
	// the primary operation.
	FellBack bool
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

// Err maps a non-OK outcome to a typed error, for handlers that surface the
// failure to the caller. Returns nil for OK outcomes.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusOK:
		return nil
	case StatusNotReady:
		return errors.New(errors.CodeNotReady, reasonOr(o.Reason, "collaborator not ready"), nil).
			WithRecoverable(true)
	case StatusNotAlive:
		return errors.New(errors.CodeNotAlive, reasonOr(o.Reason, "collaborator not alive"), nil)
	case StatusTimeout:
		return errors.New(errors.CodeTimeout, reasonOr(o.Reason, "call exceeded budget"), nil).
			WithRecoverable(true)
	case StatusExited:
		return errors.New(errors.CodeExited, reasonOr(o.Reason, "callee exited"), nil)
	case StatusFallbackFailed:
		return errors.New(errors.CodeFallbackFailed, reasonOr(o.Reason, "fallback failed"), nil)
	default:
		return errors.New(errors.CodeInternal, reasonOr(o.Reason, "call failed"), nil)
	}
}

func reasonOr(reason, def string) string {
	if reason != "" {
		return reason
	}
	return def
}

// Ok builds a successful outcome.
func Ok(value any) Outcome {
	return Outcome{Status: StatusOK, Value: value}
}

// NotReady builds a not-ready outcome.
func NotReady(reason string) Outcome {
	return Outcome{Status: StatusNotReady, Reason: reason}
}

// NotAlive builds a not-alive outcome.
func NotAlive(reason string) Outcome {
	return Outcome{Status: StatusNotAlive, Reason: reason}
}

// TimedOut builds a timeout outcome.
func TimedOut(reason string) Outcome {
	return Outcome{Status: StatusTimeout, Reason: reason}
}

// Exited builds an exited outcome with the termination reason.
func Exited(reason string) Outcome {
	return Outcome{Status: StatusExited, Reason: reason}
}

// Exception builds an exception outcome with the fault message.
func Exception(reason string) Outcome {
	return Outcome{Status: StatusException, Reason: reason}
}

// FallbackFailed builds an outcome for a fallback that faulted.
func FallbackFailed(reason string) Outcome {
	return Outcome{Status: StatusFallbackFailed, Reason: reason}
}
