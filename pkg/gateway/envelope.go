// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the line-oriented JSON-RPC surface of the
// server: envelope decoding, method dispatch, tool routing, and response
// encoding. One request is fully handled before the next line is read, so
// responses are never interleaved on the output stream.
package gateway

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol tag carried by every envelope.
const Version = "2.0"

// ProtocolVersion is the tool-protocol revision announced by initialize.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeToolError      = -32000
)

// Request is an incoming envelope. ID is kept raw so it can be echoed back
// exactly as received, whatever JSON type the client chose.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the envelope carries no id and therefore
// must never be answered.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// ErrorObject is the error member of a response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is an outgoing envelope. Exactly one of Result and Error is set.
// A nil ID serializes as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: Version, Error: &ErrorObject{Code: code, Message: message}, ID: id}
}

// callParams is the params shape of tools/call.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// contentBlock is one element of a wrapped tool result.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolResult wraps a formatted tool result for the wire.
type toolResult struct {
	Content []contentBlock `json:"content"`
}

func wrapToolResult(v any) toolResult {
	return toolResult{Content: []contentBlock{{Type: "text", Text: formatResult(v)}}}
}

// formatResult renders a handler result as text. Strings pass through, maps
// are pretty-printed, anything else gets a diagnostic rendering.
func formatResult(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any:
		pretty, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(pretty)
	default:
		return fmt.Sprintf("%v", val)
	}
}
