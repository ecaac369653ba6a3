package secrets

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := NewManager("test-key")

	cases := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"api key", "AIzaSy-fake-key-for-testing"},
		{"long string", strings.Repeat("0123456789", 80)},
		{"unicode", "clé secrète 鍵 🔑"},
		{"newlines", "line1\nline2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := m.Encrypt(tc.plaintext)
			if err != nil {
				t.Fatalf("Encrypt returned error: %v", err)
			}
			decrypted, err := m.Decrypt(encrypted)
			if err != nil {
				t.Fatalf("Decrypt returned error: %v", err)
			}
			if decrypted != tc.plaintext {
				t.Errorf("round-trip = %q, want %q", decrypted, tc.plaintext)
			}
		})
	}
}

func TestEncryptUsesRandomNonce(t *testing.T) {
	m := NewManager("test-key")
	a, err := m.Encrypt("same-input")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	b, err := m.Encrypt("same-input")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	encrypted, err := NewManager("key-one").Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if _, err := NewManager("key-two").Decrypt(encrypted); err == nil {
		t.Error("Decrypt with wrong key returned nil error, want error")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	m := NewManager("key")
	for _, in := range []string{"", "zz", "00112233"} {
		if _, err := m.Decrypt(in); err == nil {
			t.Errorf("Decrypt(%q) returned nil error, want error", in)
		}
	}
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey returned error: %v", err)
	}
	if len(k1) != 64 {
		t.Errorf("GenerateKey length = %d, want 64 hex chars", len(k1))
	}
	k2, _ := GenerateKey()
	if k1 == k2 {
		t.Error("two generated keys are identical")
	}
}
