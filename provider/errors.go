package provider

import "errors"

// ErrorKind is a wire-level OAuth 2.0 error code.
type ErrorKind string

// The protocol error taxonomy. Each kind is produced at a specific
// validation step and maps deterministically to either the redirect or the
// JSON response shape depending on the endpoint that produced it.
const (
	KindUnsupportedResponseType ErrorKind = "unsupported_response_type"
	KindUnsupportedGrantType    ErrorKind = "unsupported_grant_type"
	KindUnauthorizedClient      ErrorKind = "unauthorized_client"
	KindInvalidScope            ErrorKind = "invalid_scope"
	KindInvalidRequest          ErrorKind = "invalid_request"
	KindInvalidClient           ErrorKind = "invalid_client"
	KindInvalidGrant            ErrorKind = "invalid_grant"
	KindAccessDenied            ErrorKind = "access_denied"
	KindServerError             ErrorKind = "server_error"
)

// Error is a protocol error. Kind is the only field ever exposed to clients.
// RedirectURI, when set, is the target an authorization-endpoint error
// should be delivered to as a redirect; when empty the error is delivered as
// a JSON body. The internal reason and cause stay in logs.
type Error struct {
	Kind        ErrorKind
	RedirectURI string

	reason string
	cause  error
}

func (e *Error) Error() string {
	if e.reason != "" {
		return string(e.Kind) + ": " + e.reason
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Reason returns the internal detail for logging. Never send it to clients.
func (e *Error) Reason() string {
	return e.reason
}

func newError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, reason: reason}
}

func newRedirectError(kind ErrorKind, redirectURI, reason string) *Error {
	return &Error{Kind: kind, RedirectURI: redirectURI, reason: reason}
}

// AsError extracts a protocol error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the protocol error kind for any error. Non-protocol errors
// are backend faults and report server_error. Returns "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if pe, ok := AsError(err); ok {
		return pe.Kind
	}
	return KindServerError
}
