package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("senha-forte-123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := Verify("senha-forte-123", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}

	ok, err = Verify("outra-senha", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("legado123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if !IsLegacyHash(string(legacy)) {
		t.Fatalf("expected %q to be recognised as legacy", legacy)
	}

	ok, err := Verify("legado123", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected legacy match, got ok=%v err=%v", ok, err)
	}

	ok, err = Verify("errada", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected legacy mismatch, got ok=%v err=%v", ok, err)
	}
}
