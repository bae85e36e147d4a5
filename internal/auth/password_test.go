package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=19923,t=2,p=1$") {
		t.Fatalf("unexpected hash envelope: %s", hash)
	}
	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredential", err)
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	a, err := HashPassword("same input")
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashPassword("same input")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	if err := VerifyPassword("not-a-phc-string", "anything"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestDummyHashNeverVerifies(t *testing.T) {
	if err := VerifyPassword(dummyHash, "anything"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("dummy hash verified: %v", err)
	}
}
