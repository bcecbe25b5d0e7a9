// SPDX-License-Identifier: Apache-2.0
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/jllopis/bastion/pkg/telemetry"
)

const maxLineBytes = 4 * 1024 * 1024

const (
	methodInitialize = "initialize"
	methodToolsList  = "tools/list"
	methodToolsCall  = "tools/call"
)

// ServerInfo is the identity announced during the initialize handshake.
type ServerInfo struct {
	Name    string
	Version string
}

// Server runs the protocol loop over a line-oriented transport.
type Server struct {
	handlers *Handlers
	info     ServerInfo
	metrics  *telemetry.GatewayMetrics
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithMetrics attaches gateway metrics instruments.
func WithMetrics(m *telemetry.GatewayMetrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer wires the protocol loop over a tool executor.
func NewServer(handlers *Handlers, info ServerInfo, opts ...ServerOption) *Server {
	s := &Server{handlers: handlers, info: info}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads envelopes line by line until end-of-stream, context
// cancellation, or a transport fault. End-of-stream is a normal shutdown; a
// read or write fault is logged and returned. Each line is fully handled and
// answered before the next is read.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := writeResponse(w, resp); err != nil {
			slog.Error("transport write fault", "err", err)
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Error("transport read fault", "err", err)
		return err
	}
	return nil
}

// handleLine decodes and dispatches one envelope. A nil return means no
// response is written (notifications).
func (s *Server) handleLine(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		// Well-formed JSON of the wrong shape (array, non-string method)
		// is an invalid request, not a parse error.
		if json.Valid(line) {
			s.metrics.CountProtocolError(ctx, CodeInvalidRequest)
			return errorResponse(nil, CodeInvalidRequest, "invalid request: "+err.Error())
		}
		s.metrics.CountProtocolError(ctx, CodeParseError)
		return errorResponse(nil, CodeParseError, "parse error: "+err.Error())
	}

	if req.Method == "" {
		s.metrics.CountProtocolError(ctx, CodeInvalidRequest)
		return errorResponse(nil, CodeInvalidRequest, "invalid request: missing method")
	}

	// Notifications are never dispatched and never answered, whatever the
	// method names.
	if req.IsNotification() {
		slog.Debug("notification dropped", "method", req.Method)
		return nil
	}

	switch req.Method {
	case methodInitialize:
		return resultResponse(req.ID, s.initializeResult())
	case methodToolsList:
		return resultResponse(req.ID, map[string]any{"tools": s.handlers.registry.ListAll()})
	case methodToolsCall:
		return s.handleToolCall(ctx, &req)
	default:
		s.metrics.CountProtocolError(ctx, CodeMethodNotFound)
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleToolCall(ctx context.Context, req *Request) *Response {
	var params callParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeToolError, "invalid tools/call params: "+err.Error())
		}
	}

	start := time.Now()
	value, err := s.handlers.CallTool(ctx, params.Name, params.Arguments)
	s.metrics.ObserveToolCall(ctx, params.Name, time.Since(start), err)
	if err != nil {
		return errorResponse(req.ID, CodeToolError, err.Error())
	}
	return resultResponse(req.ID, wrapToolResult(value))
}

func (s *Server) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": true},
		},
		"serverInfo": map[string]any{
			"name":    s.info.Name,
			"version": s.info.Version,
		},
	}
}

func writeResponse(w io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
