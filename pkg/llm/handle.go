// SPDX-License-Identifier: Apache-2.0
package llm

import (
	"context"
	"fmt"

	"github.com/jllopis/bastion/pkg/locator"
)

// HandleName is the locator name for the LLM collaborator.
const HandleName = "llm"

// ConsultRequest is the message accepted by the LLM collaborator handle.
type ConsultRequest struct {
	Query    string
	Memories []string
}

// NewHandle adapts a Consultant to a locator handle so the defensive layer
// can call it by name.
func NewHandle(c Consultant) *locator.FuncHandle {
	return locator.NewHandle(HandleName, func(ctx context.Context, msg any) (any, error) {
		req, ok := msg.(ConsultRequest)
		if !ok {
			return nil, fmt.Errorf("llm handle: unsupported message %T", msg)
		}
		return c.Consult(ctx, req.Query, req.Memories)
	})
}
