// SPDX-License-Identifier: Apache-2.0
// Package timeout defines the named time budget classes used by every layer
// of the gateway that issues a bounded call. Budgets form a strict hierarchy:
// an operation nested inside another must run under a smaller default budget
// than its enclosing operation.
package timeout

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Class names a time budget in the hierarchy.
type Class string

const (
	// ClassMCPTool is the outermost budget covering one whole tools/call.
	ClassMCPTool Class = "mcp_tool"

	// ClassQuery covers one collaborator query inside a tool call.
	ClassQuery Class = "query"

	// ClassPerCall covers a single defensive call to a collaborator.
	ClassPerCall Class = "per_call"

	// ClassDatabase covers one database round trip.
	ClassDatabase Class = "database"

	// ClassEmbedding covers one embedding computation.
	ClassEmbedding Class = "embedding"

	// ClassHTTP covers one outbound HTTP request.
	ClassHTTP Class = "http"

	// ClassConnect covers connection establishment.
	ClassConnect Class = "connect"

	// ClassLLM covers one LLM consultation.
	ClassLLM Class = "llm"

	// ClassLLMSynthesis covers a multi-step LLM synthesis.
	ClassLLMSynthesis Class = "llm_synthesis"

	// ClassShort covers cheap liveness and readiness probes.
	ClassShort Class = "short"
)

type budget struct {
	def    time.Duration
	parent Class // empty for the root class
}

// The compiled defaults. New classes must keep every child strictly below
// its parent; Validate enforces this and is run from main and from tests.
var table = map[Class]budget{
	ClassMCPTool:      {def: 300 * time.Second},
	ClassQuery:        {def: 45 * time.Second, parent: ClassMCPTool},
	ClassPerCall:      {def: 15 * time.Second, parent: ClassQuery},
	ClassLLM:          {def: 30 * time.Second, parent: ClassQuery},
	ClassLLMSynthesis: {def: 40 * time.Second, parent: ClassQuery},
	ClassHTTP:         {def: 30 * time.Second, parent: ClassQuery},
	ClassConnect:      {def: 5 * time.Second, parent: ClassHTTP},
	ClassDatabase:     {def: 5 * time.Second, parent: ClassPerCall},
	ClassEmbedding:    {def: 10 * time.Second, parent: ClassPerCall},
	ClassShort:        {def: 2 * time.Second, parent: ClassPerCall},
}

// envPrefix is the configuration surface: one override variable per class,
// in milliseconds, e.g. BASTION_TIMEOUT_PER_CALL_MS=20000.
const envPrefix = "BASTION_TIMEOUT_"

// EnvVar returns the override variable name for a class.
func EnvVar(class Class) string {
	return envPrefix + strings.ToUpper(string(class)) + "_MS"
}

// Default returns the compiled default budget for a class.
// Unknown classes get the per-call default.
func Default(class Class) time.Duration {
	if b, ok := table[class]; ok {
		return b.def
	}
	return table[ClassPerCall].def
}

// Lookup returns the effective budget for a class. The environment override
// is read at call time and accepted only if it parses as a positive integer
// number of milliseconds; anything else falls back to the compiled default.
func Lookup(class Class) time.Duration {
	if raw := os.Getenv(EnvVar(class)); raw != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return Default(class)
}

// Parent returns the enclosing class, or false for the root.
func Parent(class Class) (Class, bool) {
	b, ok := table[class]
	if !ok || b.parent == "" {
		return "", false
	}
	return b.parent, true
}

// Classes returns every known class name.
func Classes() []Class {
	out := make([]Class, 0, len(table))
	for c := range table {
		out = append(out, c)
	}
	return out
}

// Validate checks the nesting invariant of the compiled defaults: every
// class's default is strictly less than its parent's default.
func Validate() error {
	for class, b := range table {
		if b.parent == "" {
			continue
		}
		pb, ok := table[b.parent]
		if !ok {
			return fmt.Errorf("timeout class %q has unknown parent %q", class, b.parent)
		}
		if b.def >= pb.def {
			return fmt.Errorf("timeout class %q default %v must be below parent %q default %v",
				class, b.def, b.parent, pb.def)
		}
	}
	return nil
}
