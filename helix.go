// Package helix is an OAuth 2.0 authorization-server toolkit. It implements
// the authorization-code and refresh-token grants with single-use codes,
// rotating refresh tokens, bearer-token resource validation, and bulk
// revocation, over pluggable storage backends.
//
// The protocol engine lives in the provider package; storage contracts and
// the memory and valkey backends live under storage. This package adds the
// HTTP layer: Handler serves the authorization and token endpoints and
// provides bearer middleware for protected resources.
package helix

import "github.com/helixauth/helix/provider"

// Core types re-exported so embedders can depend on the root package alone.
type (
	Error                 = provider.Error
	ErrorKind             = provider.ErrorKind
	AuthorizationRequest  = provider.AuthorizationRequest
	AuthorizationGrant    = provider.AuthorizationGrant
	TokenRequest          = provider.TokenRequest
	TokenResponse         = provider.TokenResponse
	ResourceAuthorization = provider.ResourceAuthorization
)

// The protocol error taxonomy.
const (
	KindUnsupportedResponseType = provider.KindUnsupportedResponseType
	KindUnsupportedGrantType    = provider.KindUnsupportedGrantType
	KindUnauthorizedClient      = provider.KindUnauthorizedClient
	KindInvalidScope            = provider.KindInvalidScope
	KindInvalidRequest          = provider.KindInvalidRequest
	KindInvalidClient           = provider.KindInvalidClient
	KindInvalidGrant            = provider.KindInvalidGrant
	KindAccessDenied            = provider.KindAccessDenied
	KindServerError             = provider.KindServerError
)
