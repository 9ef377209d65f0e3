package auth

import (
	"bytes"
	"errors"
	"testing"
)

func testSecret(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 64)
}

func TestNewTokenServiceRejectsShortSecret(t *testing.T) {
	if _, err := NewTokenService([]byte("short")); !errors.Is(err, ErrInvalidSecretLength) {
		t.Errorf("NewTokenService() error = %v, want ErrInvalidSecretLength", err)
	}
}

func TestMintAndParse(t *testing.T) {
	svc, err := NewTokenService(testSecret(1))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	token, err := svc.Mint("a@x")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	email, err := svc.Email(token)
	if err != nil {
		t.Fatalf("Email() error = %v", err)
	}
	if email != "a@x" {
		t.Errorf("email claim = %q, want a@x", email)
	}
}

func TestEmailRejectsGarbage(t *testing.T) {
	svc, err := NewTokenService(testSecret(1))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := svc.Email(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Email(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestEmailRejectsForeignSignature(t *testing.T) {
	minter, err := NewTokenService(testSecret(1))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	verifier, err := NewTokenService(testSecret(2))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	token, err := minter.Mint("a@x")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := verifier.Email(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Email() with wrong secret error = %v, want ErrInvalidToken", err)
	}
}

func TestEmailRejectsEmptyClaim(t *testing.T) {
	svc, err := NewTokenService(testSecret(1))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	token, err := svc.Mint("")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := svc.Email(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Email() with empty claim error = %v, want ErrInvalidToken", err)
	}
}
