package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable part of a bech32 encoded account
// identifier.
const AddressPrefix = "smx"

// AddressLength is the raw byte length of an account address.
const AddressLength = 20

// Address identifies an account within the issuance engine. Accounts are
// opaque external identities; the engine never derives anything from the
// bytes beyond ledger keys.
type Address struct {
	bytes []byte
}

// NewAddress wraps the provided raw bytes as an address.
func NewAddress(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressLength, len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{bytes: cloned}, nil
}

// GenerateAddress produces a random address, used when bootstrapping a
// default configuration.
func GenerateAddress() (Address, error) {
	buf := make([]byte, AddressLength)
	if _, err := rand.Read(buf); err != nil {
		return Address{}, fmt.Errorf("crypto: generate address: %w", err)
	}
	return NewAddress(buf)
}

// MustNewAddress wraps the provided raw bytes and panics on invalid length.
// Intended for tests and fixed well-known addresses.
func MustNewAddress(b []byte) Address {
	addr, err := NewAddress(b)
	if err != nil {
		panic(err)
	}
	return addr
}

// String renders the address in bech32 form with the engine prefix.
func (a Address) String() string {
	if len(a.bytes) == 0 {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Hex returns the raw bytes in lowercase hex, used for storage keys and
// journal records.
func (a Address) Hex() string {
	return hex.EncodeToString(a.bytes)
}

// Equal reports whether two addresses carry the same bytes.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// IsZero reports whether the address is unset or all zero bytes.
func (a Address) IsZero() bool {
	if len(a.bytes) == 0 {
		return true
	}
	for _, b := range a.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// DecodeAddress parses a bech32 account address.
func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" {
		return Address{}, fmt.Errorf("crypto: address required")
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return NewAddress(conv)
}
