package sso

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateCodeVerifier(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier() error = %v", err)
	}

	// 32 random bytes encode to 43 unpadded base64url characters.
	if len(verifier) != 43 {
		t.Errorf("verifier length = %d, want 43", len(verifier))
	}
	if strings.ContainsAny(verifier, "+/=") {
		t.Errorf("verifier %q contains non-URL-safe characters", verifier)
	}
	if _, err := base64.RawURLEncoding.DecodeString(verifier); err != nil {
		t.Errorf("verifier is not valid base64url: %v", err)
	}
}

func TestGenerateCodeVerifier_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		verifier, err := GenerateCodeVerifier()
		if err != nil {
			t.Fatalf("GenerateCodeVerifier() error = %v", err)
		}
		if seen[verifier] {
			t.Fatalf("duplicate verifier generated: %q", verifier)
		}
		seen[verifier] = true
	}
}

func TestGenerateCodeChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	got := GenerateCodeChallenge(verifier)

	sum := sha256.Sum256([]byte(verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if got != want {
		t.Errorf("GenerateCodeChallenge() = %q, want %q", got, want)
	}
}

func TestGenerateCodeChallenge_Deterministic(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier() error = %v", err)
	}

	first := GenerateCodeChallenge(verifier)
	second := GenerateCodeChallenge(verifier)
	if first != second {
		t.Errorf("challenge not deterministic: %q != %q", first, second)
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}

	// 16 random bytes encode to 22 unpadded base64url characters.
	if len(state) != 22 {
		t.Errorf("state length = %d, want 22", len(state))
	}

	other, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	if state == other {
		t.Error("two states are identical")
	}
}
