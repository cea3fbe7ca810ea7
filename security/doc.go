// Package security provides the security primitives used across helix:
// random token generation, audit logging, per-identifier rate limiting,
// secure response headers, and request IDs.
package security
