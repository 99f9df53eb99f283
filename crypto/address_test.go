package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, AddressLength)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr, err := NewAddress(raw)
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("unexpected raw bytes")
	}
}

func TestNewAddressRejectsBadLength(t *testing.T) {
	if _, err := NewAddress(make([]byte, 19)); err == nil {
		t.Fatal("expected error for short address")
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := DecodeAddress("nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqf58w54"); err == nil {
		t.Fatal("expected error for foreign prefix")
	}
}

func TestAddressIsZero(t *testing.T) {
	if !(Address{}).IsZero() {
		t.Fatal("empty address should be zero")
	}
	zero := MustNewAddress(make([]byte, AddressLength))
	if !zero.IsZero() {
		t.Fatal("all-zero address should be zero")
	}
	raw := make([]byte, AddressLength)
	raw[0] = 0x01
	if MustNewAddress(raw).IsZero() {
		t.Fatal("non-zero address reported zero")
	}
}
