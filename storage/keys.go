package storage

// Index key constructors for the client-user token index. The engine records
// these under (client, user) via RevocationStore.IndexTokens; each backend
// derives the physical location of the token record from the member itself,
// so bulk revocation can delete the records straight from the index.

// AccessTokenKey builds the index member for an access token.
func AccessTokenKey(token string) string {
	return "access:" + token
}

// RefreshTokenKey builds the index member for a refresh token.
func RefreshTokenKey(clientID, token string) string {
	return "refresh:" + clientID + ":" + token
}
