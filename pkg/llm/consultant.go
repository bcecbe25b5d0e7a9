// SPDX-License-Identifier: Apache-2.0
// Package llm provides the LLM consultation collaborator used by the ask
// handler. The gateway depends only on the Consultant contract; providers
// implement it against their own backends.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of communication with a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Consultant answers a query, optionally grounded in previously stored
// memories. Implementations must honor context cancellation.
type Consultant interface {
	Consult(ctx context.Context, query string, memories []string) (string, error)
}
