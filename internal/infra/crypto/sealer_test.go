package crypto

import (
	"bytes"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("Sup3rSecret!")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("Sup3rSecret!")) {
		t.Fatal("plaintext visible in sealed payload")
	}

	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "Sup3rSecret!" {
		t.Fatalf("opened = %q", opened)
	}
}

func TestSealNoncesDiffer(t *testing.T) {
	s, _ := NewSealer(testKey)
	a, err := s.Seal("same input")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Seal("same input")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same plaintext produced identical payloads")
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	s, _ := NewSealer(testKey)
	other, _ := NewSealer(strings.Repeat("ff", 32))

	sealed, err := s.Seal("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Open(sealed); err == nil {
		t.Fatal("wrong key opened the payload")
	}
}

func TestOpenRejectsTruncatedPayload(t *testing.T) {
	s, _ := NewSealer(testKey)
	if _, err := s.Open([]byte("short")); err == nil {
		t.Fatal("truncated payload opened")
	}
}

func TestNewSealerRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "zz", "abcd", strings.Repeat("ab", 16)} {
		if _, err := NewSealer(key); err == nil {
			t.Errorf("NewSealer(%q) accepted an invalid key", key)
		}
	}
}
