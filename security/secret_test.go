package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashClientSecret(t *testing.T) {
	hash, err := HashClientSecret("s3cr3t")
	if err != nil {
		t.Fatalf("HashClientSecret() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cr3t")); err != nil {
		t.Errorf("hash does not verify against the original secret: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")); err == nil {
		t.Error("hash verified against the wrong secret")
	}
}

func TestHashClientSecret_Empty(t *testing.T) {
	if _, err := HashClientSecret(""); err == nil {
		t.Error("HashClientSecret(\"\") should fail")
	}
}
