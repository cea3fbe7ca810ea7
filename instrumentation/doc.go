// Package instrumentation provides OpenTelemetry metrics and tracing for the
// helix protocol engine. When disabled it substitutes no-op providers, so
// instrumented code paths carry no overhead and no conditionals.
package instrumentation
