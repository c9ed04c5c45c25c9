package auth

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateKey_Shape(t *testing.T) {
	seen := make(map[string]bool)
	for range 8 {
		key, err := GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		body, ok := strings.CutPrefix(key, KeyPrefixLiteral)
		if !ok {
			t.Fatalf("%q lacks the %s prefix", key, KeyPrefixLiteral)
		}
		raw, err := base64.RawURLEncoding.DecodeString(body)
		if err != nil || len(raw) != 24 {
			t.Fatalf("body of %q decodes to %d bytes (%v), want 24", key, len(raw), err)
		}
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
}

func TestHashKey_Vectors(t *testing.T) {
	tests := map[string]string{
		"":    "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"abc": "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	}
	for in, want := range tests {
		if got := HashKey(in); got != want {
			t.Errorf("HashKey(%q) = %s, want %s", in, got, want)
		}
	}
	if HashKey("qtr_a") == HashKey("qtr_b") {
		t.Error("distinct keys hashed equal")
	}
}

func TestKeyPrefix_Truncates(t *testing.T) {
	for key, want := range map[string]string{
		"qtr_abcdefghijklmnopqrstuvwxyz012345": "qtr_abcdefgh",
		"qtr_abcdefgh":                         "qtr_abcdefgh",
		"qtr_1234":                             "qtr_1234",
		"":                                     "",
	} {
		if got := KeyPrefix(key); got != want {
			t.Errorf("KeyPrefix(%q) = %q, want %q", key, got, want)
		}
	}
}
