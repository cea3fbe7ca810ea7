package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashClientSecret hashes a client secret for storage. Stores never hold the
// plaintext secret; registration glue calls this before SaveClient.
func HashClientSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("client secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing client secret: %w", err)
	}
	return string(hash), nil
}
