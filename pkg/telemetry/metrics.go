// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/bastion/pkg/errors"
)

// GatewayMetrics tracks tool-call volume, latency, and protocol errors.
// A nil *GatewayMetrics is valid and records nothing, so callers never need
// to branch on whether metrics are enabled.
type GatewayMetrics struct {
	// toolCalls counts tools/call dispatches by tool and status
	toolCalls metric.Int64Counter

	// toolErrors counts handler failures by error code
	toolErrors metric.Int64Counter

	// toolDuration tracks end-to-end tool call latency in seconds
	toolDuration metric.Float64Histogram

	// protocolErrors counts malformed traffic by JSON-RPC error code
	protocolErrors metric.Int64Counter
}

// NewGatewayMetrics creates the gateway's metric instruments.
func NewGatewayMetrics() (*GatewayMetrics, error) {
	meter := otel.Meter("bastion/gateway")

	toolCalls, err := meter.Int64Counter(
		"bastion.tool.calls",
		metric.WithDescription("Tool calls by tool name and status"),
	)
	if err != nil {
		return nil, err
	}

	toolErrors, err := meter.Int64Counter(
		"bastion.tool.errors",
		metric.WithDescription("Tool call failures by error code"),
	)
	if err != nil {
		return nil, err
	}

	toolDuration, err := meter.Float64Histogram(
		"bastion.tool.duration",
		metric.WithDescription("Tool call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	protocolErrors, err := meter.Int64Counter(
		"bastion.protocol.errors",
		metric.WithDescription("Protocol-level errors by JSON-RPC code"),
	)
	if err != nil {
		return nil, err
	}

	return &GatewayMetrics{
		toolCalls:      toolCalls,
		toolErrors:     toolErrors,
		toolDuration:   toolDuration,
		protocolErrors: protocolErrors,
	}, nil
}

// ObserveToolCall records one completed tools/call dispatch.
func (gm *GatewayMetrics) ObserveToolCall(ctx context.Context, tool string, d time.Duration, err error) {
	if gm == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	gm.toolCalls.Add(ctx, 1, attrs)
	gm.toolDuration.Record(ctx, d.Seconds(), attrs)

	if err != nil {
		be := errors.AsBastionError(err)
		gm.toolErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("error.code", string(be.Code)),
				attribute.String("recoverable", be.RecoverableString()),
			),
		)
	}
}

// CountProtocolError records one malformed or unroutable envelope.
func (gm *GatewayMetrics) CountProtocolError(ctx context.Context, code int) {
	if gm == nil {
		return
	}
	gm.protocolErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("rpc.code", strconv.Itoa(code)),
		),
	)
}
