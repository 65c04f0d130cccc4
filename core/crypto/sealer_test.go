package crypto

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	s, err := NewSealer("0123456789abcdef-master")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	for _, in := range []string{"", "1BVtsOK8Bu3", "session with spaces and ✓ unicode"} {
		blob, err := s.Encrypt(in)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if blob == in && in != "" {
			t.Fatalf("ciphertext equals plaintext")
		}
		out, err := s.Decrypt(blob)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if out != in {
			t.Fatalf("round trip = %q, want %q", out, in)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	s, _ := NewSealer("0123456789abcdef-master")
	a, _ := s.Encrypt("same")
	b, _ := s.Encrypt("same")
	if a == b {
		t.Fatalf("expected distinct ciphertexts")
	}
}

func TestDecryptRejects(t *testing.T) {
	s, _ := NewSealer("0123456789abcdef-master")
	other, _ := NewSealer("fedcba9876543210-master")
	blob, _ := s.Encrypt("secret")

	tampered := []byte(blob)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	cases := map[string]struct {
		sealer *Sealer
		blob   string
	}{
		"not base64": {s, "***"},
		"too short":  {s, "AAAA"},
		"tampered":   {s, string(tampered)},
		"wrong key":  {other, blob},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := tc.sealer.Decrypt(tc.blob); !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestNewSealerShortSecret(t *testing.T) {
	if _, err := NewSealer("short"); err == nil {
		t.Fatalf("expected error")
	}
}
