// Package provider implements the OAuth 2.0 protocol engine: the
// authorization-code grant, the token-exchange and refresh-token grant
// flows, and bearer-token validation for resource access.
//
// AuthorizationProvider is the central state machine. It issues single-use
// authorization codes with a short TTL, exchanges them for access/refresh
// token pairs, and rotates refresh tokens on use. ResourceProvider validates
// inbound bearer credentials without mutating store state. Both consume the
// storage interfaces and are wired by dependency injection; the package
// holds no global state.
//
// Protocol failures are *Error values carrying one of the wire-level error
// kinds. Errors from the authorization endpoint that know a trustworthy
// redirect target carry it, so transport glue can deliver them as a
// redirect; all other errors are delivered as a JSON body.
package provider
