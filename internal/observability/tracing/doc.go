// Package tracing provides OpenTelemetry tracing support for HTTP handlers
// and internal operations.
//
// It exposes a shared tracer plus middleware that extracts W3C Trace Context
// from incoming requests, opens a server span, and reports the trace ID back
// to clients via the X-Trace-Id response header.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "quota.increment")
//	defer span.End()
package tracing
