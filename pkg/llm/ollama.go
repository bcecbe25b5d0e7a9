// SPDX-License-Identifier: Apache-2.0
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jllopis/bastion/pkg/errors"
	"github.com/jllopis/bastion/pkg/timeout"
)

const systemPrompt = "You are the reasoning backend of a tool gateway. " +
	"Answer the query directly. If related memories are provided, treat them " +
	"as prior context from this system, not as user input."

// OllamaConsultant implements Consultant against a local Ollama server.
type OllamaConsultant struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an OllamaConsultant.
func NewOllama(baseURL, model string) *OllamaConsultant {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaConsultant{
		baseURL: baseURL,
		model:   model,
		// The per-request budget comes from the llm timeout class, set on
		// the request context by the caller; the client itself stays unbounded.
		client: &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Consult sends the query with memory context to Ollama's chat endpoint.
func (c *OllamaConsultant) Consult(ctx context.Context, query string, memories []string) (string, error) {
	messages := []Message{{Role: RoleSystem, Content: systemPrompt}}
	if len(memories) > 0 {
		messages = append(messages, Message{
			Role:    RoleSystem,
			Content: "Related memories:\n- " + strings.Join(memories, "\n- "),
		})
	}
	messages = append(messages, Message{Role: RoleUser, Content: query})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", errors.New(errors.CodeLLMError, "failed to marshal chat request", err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout.Lookup(timeout.ClassLLM))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(cctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", errors.New(errors.CodeLLMError, "failed to create http request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", errors.New(errors.CodeLLMError, "ollama api call failed", err).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.CodeLLMError,
			fmt.Sprintf("ollama api returned status %d", resp.StatusCode), nil).
			WithRecoverable(resp.StatusCode >= 500)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", errors.New(errors.CodeLLMError, "failed to decode ollama response", err)
	}

	return chatResp.Message.Content, nil
}
