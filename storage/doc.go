// Package storage defines the persistence contract consumed by the helix
// protocol engine: client registry lookup, TTL-bound authorization-code and
// access-token records, refresh-token records, and the client-user token
// index used for bulk revocation.
//
// The engine never talks to a concrete store directly; it is handed
// implementations of these interfaces at construction. Implementations are
// provided in subpackages:
//   - storage/memory: in-memory store for development and testing
//   - storage/valkey: Valkey/Redis-compatible store for production
package storage
