// Package valkey provides a Valkey-backed implementation of all storage
// interfaces, suitable for multi-instance deployments.
//
// Key layout (under the configured prefix, default "helix:"):
//
//	client:<clientID>            registered client, JSON
//	code:<clientID>:<code>       authorization code, JSON, TTL
//	access:<token>               access token grant, JSON, TTL
//	refresh:<clientID>:<token>   refresh token grant, JSON, no TTL
//	clientuser:<clientID>:<userID>  set of token keys for bulk revocation
//
// The take operations use a Lua script so retrieve-and-delete is one
// indivisible server-side step. Concurrent exchanges of the same code or
// rotations of the same refresh token therefore resolve to exactly one
// winner no matter how many server instances race.
package valkey
